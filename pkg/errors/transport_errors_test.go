package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestClassifyTransportError_ContextCanceled(t *testing.T) {
	err := fmt.Errorf("send envelope: %w", context.Canceled)
	tErr := ClassifyTransportError(err)

	assert.NotNil(t, tErr)
	assert.Equal(t, ErrorTypeCanceled, tErr.Type)
	assert.Equal(t, "operation canceled", tErr.Message)
	assert.True(t, errors.Is(tErr, context.Canceled))
}

func TestClassifyTransportError_DeadlineExceeded(t *testing.T) {
	tErr := ClassifyTransportError(context.DeadlineExceeded)

	assert.NotNil(t, tErr)
	assert.Equal(t, ErrorTypeTimeout, tErr.Type)
}

func TestClassifyTransportError_WebsocketClose(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected TransportErrorType
	}{
		{
			name:     "Normal closure (1000)",
			code:     websocket.CloseNormalClosure,
			expected: ErrorTypePeerClosed,
		},
		{
			name:     "Going away (1001)",
			code:     websocket.CloseGoingAway,
			expected: ErrorTypePeerClosed,
		},
		{
			name:     "Abnormal closure (1006)",
			code:     websocket.CloseAbnormalClosure,
			expected: ErrorTypeReset,
		},
		{
			name:     "Policy violation (1008)",
			code:     websocket.ClosePolicyViolation,
			expected: ErrorTypePeerClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closeErr := &websocket.CloseError{Code: tt.code, Text: "bye"}
			tErr := ClassifyTransportError(closeErr)

			assert.NotNil(t, tErr)
			assert.Equal(t, tt.expected, tErr.Type)
			assert.Equal(t, tt.code, tErr.CloseCode)
			assert.Contains(t, tErr.Error(), fmt.Sprintf("close code %d", tt.code))
		})
	}
}

func TestClassifyTransportError_DNSFailure(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "bridge.invalid", IsNotFound: true}
	tErr := ClassifyTransportError(fmt.Errorf("dial: %w", dnsErr))

	assert.NotNil(t, tErr)
	assert.Equal(t, ErrorTypeDNS, tErr.Type)
}

func TestClassifyTransportError_SocketErrnos(t *testing.T) {
	tests := []struct {
		name     string
		errno    error
		expected TransportErrorType
	}{
		{
			name:     "Connection refused",
			errno:    syscall.ECONNREFUSED,
			expected: ErrorTypeRefused,
		},
		{
			name:     "Connection reset",
			errno:    syscall.ECONNRESET,
			expected: ErrorTypeReset,
		},
		{
			name:     "Broken pipe",
			errno:    syscall.EPIPE,
			expected: ErrorTypeReset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opErr := &net.OpError{Op: "dial", Net: "tcp", Err: tt.errno}
			tErr := ClassifyTransportError(opErr)

			assert.NotNil(t, tErr)
			assert.Equal(t, tt.expected, tErr.Type)
		})
	}
}

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "i/o wait expired" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func TestClassifyTransportError_NetErrorTimeout(t *testing.T) {
	var err net.Error = fakeTimeoutError{}
	tErr := ClassifyTransportError(err)

	assert.NotNil(t, tErr)
	assert.Equal(t, ErrorTypeTimeout, tErr.Type)
}

func TestClassifyTransportError_MessagePatterns(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		expected TransportErrorType
	}{
		{
			name:     "Flattened refused",
			errMsg:   "proxy dial: Connection Refused by upstream",
			expected: ErrorTypeRefused,
		},
		{
			name:     "Flattened reset",
			errMsg:   "write tcp: broken pipe",
			expected: ErrorTypeReset,
		},
		{
			name:     "Flattened DNS",
			errMsg:   "lookup bridge.internal: no such host",
			expected: ErrorTypeDNS,
		},
		{
			name:     "Flattened timeout",
			errMsg:   "handshake timed out after 10s",
			expected: ErrorTypeTimeout,
		},
		{
			name:     "Unclassifiable",
			errMsg:   "malformed frame header",
			expected: ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tErr := ClassifyTransportError(errors.New(tt.errMsg))

			assert.NotNil(t, tErr)
			assert.Equal(t, tt.expected, tErr.Type)
		})
	}
}

func TestClassifyTransportError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyTransportError(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(syscall.ECONNREFUSED))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(errors.New("malformed frame header")))
	assert.False(t, IsRetryable(nil))
}

func TestIsTimeoutError(t *testing.T) {
	slowErr := &net.OpError{Op: "read", Net: "tcp", Err: fakeTimeoutError{}}
	assert.True(t, IsTimeoutError(slowErr))
	assert.False(t, IsTimeoutError(syscall.ECONNREFUSED))
}

func TestIsCanceledError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, IsCanceledError(ctx.Err()))
	assert.False(t, IsCanceledError(context.DeadlineExceeded))
}

func TestIsPeerClosedError(t *testing.T) {
	assert.True(t, IsPeerClosedError(&websocket.CloseError{Code: websocket.CloseNormalClosure}))
	assert.False(t, IsPeerClosedError(syscall.ECONNRESET))
}

func TestTransportErrorType_String(t *testing.T) {
	assert.Equal(t, "timeout", ErrorTypeTimeout.String())
	assert.Equal(t, "refused", ErrorTypeRefused.String())
	assert.Equal(t, "unknown", ErrorTypeUnknown.String())
}

func TestTransportError_Unwrap(t *testing.T) {
	base := syscall.ECONNRESET
	tErr := ClassifyTransportError(fmt.Errorf("read frame: %w", base))

	assert.True(t, errors.Is(tErr, syscall.ECONNRESET))

	var opErr *TransportError
	wrapped := fmt.Errorf("channel primary: %w", tErr)
	assert.True(t, errors.As(wrapped, &opErr))
}
