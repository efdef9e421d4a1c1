// Package errors provides transport error classification and handling utilities.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

// TransportErrorType represents the type of transport error.
type TransportErrorType int

const (
	// ErrorTypeUnknown represents an unclassified transport error.
	ErrorTypeUnknown TransportErrorType = iota
	// ErrorTypeTimeout represents a dial, handshake or I/O deadline expiry.
	ErrorTypeTimeout
	// ErrorTypeRefused represents a dial rejected by the peer (ECONNREFUSED).
	ErrorTypeRefused
	// ErrorTypeReset represents an established connection dropped mid-stream (ECONNRESET, EPIPE).
	ErrorTypeReset
	// ErrorTypeDNS represents a name resolution failure.
	ErrorTypeDNS
	// ErrorTypePeerClosed represents a close frame received from the remote endpoint.
	ErrorTypePeerClosed
	// ErrorTypeCanceled represents an operation aborted by the caller's context.
	ErrorTypeCanceled
)

// String returns the log-friendly name of the error type.
func (t TransportErrorType) String() string {
	switch t {
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeRefused:
		return "refused"
	case ErrorTypeReset:
		return "reset"
	case ErrorTypeDNS:
		return "dns"
	case ErrorTypePeerClosed:
		return "peer_closed"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// TransportError wraps a network error with classification information.
type TransportError struct {
	Type        TransportErrorType
	OriginalErr error
	CloseCode   int // websocket close code (e.g., 1000, 1006), 0 when not applicable
	Message     string
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.CloseCode > 0 {
		return fmt.Sprintf("%s (close code %d): %v", e.Message, e.CloseCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *TransportError) Unwrap() error {
	return e.OriginalErr
}

// ClassifyTransportError classifies a network error into a specific error type.
//
// It handles context errors, websocket close frames, DNS failures and common
// socket errnos:
//   - context.Canceled → ErrorTypeCanceled
//   - context.DeadlineExceeded, net.Error timeouts → ErrorTypeTimeout
//   - websocket.CloseError → ErrorTypePeerClosed
//   - net.DNSError → ErrorTypeDNS
//   - ECONNREFUSED → ErrorTypeRefused
//   - ECONNRESET, EPIPE → ErrorTypeReset
//
// Message-pattern matching is the fallback for errors that reach us already
// flattened into strings (proxied dials, wrapped library errors).
func ClassifyTransportError(err error) *TransportError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return &TransportError{
			Type:        ErrorTypeCanceled,
			OriginalErr: err,
			Message:     "operation canceled",
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{
			Type:        ErrorTypeTimeout,
			OriginalErr: err,
			Message:     "operation deadline exceeded",
		}
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return classifyCloseError(closeErr)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &TransportError{
			Type:        ErrorTypeDNS,
			OriginalErr: err,
			Message:     "name resolution failed",
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &TransportError{
			Type:        ErrorTypeRefused,
			OriginalErr: err,
			Message:     "connection refused",
		}
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return &TransportError{
			Type:        ErrorTypeReset,
			OriginalErr: err,
			Message:     "connection reset by peer",
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{
			Type:        ErrorTypeTimeout,
			OriginalErr: err,
			Message:     "network timeout",
		}
	}

	// Fall back to message patterns for pre-stringified errors
	if classified := classifyByMessage(err); classified != nil {
		return classified
	}

	return &TransportError{
		Type:        ErrorTypeUnknown,
		OriginalErr: err,
		Message:     "unknown transport error",
	}
}

// classifyCloseError classifies a websocket close frame by its status code.
func classifyCloseError(err *websocket.CloseError) *TransportError {
	switch err.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway:
		// 1000: normal shutdown handshake
		// 1001: endpoint going away (server restart, browser navigation)
		return &TransportError{
			Type:        ErrorTypePeerClosed,
			OriginalErr: err,
			CloseCode:   err.Code,
			Message:     "peer closed connection",
		}

	case websocket.CloseAbnormalClosure:
		// 1006: connection dropped without a close frame
		return &TransportError{
			Type:        ErrorTypeReset,
			OriginalErr: err,
			CloseCode:   err.Code,
			Message:     "connection dropped without close frame",
		}

	default:
		return &TransportError{
			Type:        ErrorTypePeerClosed,
			OriginalErr: err,
			CloseCode:   err.Code,
			Message:     "peer closed connection",
		}
	}
}

// classifyByMessage checks common error message patterns from wrapped
// library errors that no longer expose their original type.
func classifyByMessage(err error) *TransportError {
	errMsg := err.Error()

	refusedKeywords := []string{"connection refused", "can't connect", "actively refused"}
	for _, keyword := range refusedKeywords {
		if contains(errMsg, keyword) {
			return &TransportError{
				Type:        ErrorTypeRefused,
				OriginalErr: err,
				Message:     "connection refused",
			}
		}
	}

	resetKeywords := []string{"connection reset", "broken pipe", "use of closed network connection", "unexpected EOF"}
	for _, keyword := range resetKeywords {
		if contains(errMsg, keyword) {
			return &TransportError{
				Type:        ErrorTypeReset,
				OriginalErr: err,
				Message:     "connection reset by peer",
			}
		}
	}

	dnsKeywords := []string{"no such host", "server misbehaving"}
	for _, keyword := range dnsKeywords {
		if contains(errMsg, keyword) {
			return &TransportError{
				Type:        ErrorTypeDNS,
				OriginalErr: err,
				Message:     "name resolution failed",
			}
		}
	}

	timeoutKeywords := []string{"timeout", "timed out", "deadline exceeded"}
	for _, keyword := range timeoutKeywords {
		if contains(errMsg, keyword) {
			return &TransportError{
				Type:        ErrorTypeTimeout,
				OriginalErr: err,
				Message:     "network timeout",
			}
		}
	}

	return nil
}

// contains checks if a string contains a substring (case-insensitive).
func contains(str, substr string) bool {
	// Simple case-insensitive check
	for i := 0; i <= len(str)-len(substr); i++ {
		match := true
		for j := 0; j < len(substr); j++ {
			c1 := str[i+j]
			c2 := substr[j]
			// Convert to lowercase
			if c1 >= 'A' && c1 <= 'Z' {
				c1 += 'a' - 'A'
			}
			if c2 >= 'A' && c2 <= 'Z' {
				c2 += 'a' - 'A'
			}
			if c1 != c2 {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the error is transient and the operation is
// worth retrying on a later attempt. Caller cancellation is never retryable.
func IsRetryable(err error) bool {
	tErr := ClassifyTransportError(err)
	if tErr == nil {
		return false
	}
	switch tErr.Type {
	case ErrorTypeTimeout, ErrorTypeRefused, ErrorTypeReset, ErrorTypeDNS, ErrorTypePeerClosed:
		return true
	default:
		return false
	}
}

// IsTimeoutError checks if the error is a deadline or I/O timeout.
func IsTimeoutError(err error) bool {
	tErr := ClassifyTransportError(err)
	return tErr != nil && tErr.Type == ErrorTypeTimeout
}

// IsCanceledError checks if the error is a caller-side cancellation.
func IsCanceledError(err error) bool {
	tErr := ClassifyTransportError(err)
	return tErr != nil && tErr.Type == ErrorTypeCanceled
}

// IsPeerClosedError checks if the error is a close frame from the remote endpoint.
func IsPeerClosedError(err error) bool {
	tErr := ClassifyTransportError(err)
	return tErr != nil && tErr.Type == ErrorTypePeerClosed
}
