package service

import (
	"context"
	"encoding/json"
	"time"

	"RelayLane/internal/biz"
	"RelayLane/internal/data"
	"RelayLane/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// SubmitOperationRequest is the body of POST /v1/operations. OperationID is
// optional; the bridge generates one when absent.
type SubmitOperationRequest struct {
	OperationID string          `json:"operation_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// SubmitOperationResponse reports how a submission was accepted.
type SubmitOperationResponse struct {
	OperationID string `json:"operation_id"`
	Route       string `json:"route"`
	Status      string `json:"status"`
	QueueSize   int    `json:"queue_size,omitempty"`
}

// QueueEntryPreview is one queued operation without its payload. Payloads
// stay out of API responses the same way they stay out of logs.
type QueueEntryPreview struct {
	OperationID string    `json:"operation_id"`
	QueuedAt    time.Time `json:"queued_at"`
	Attempts    int32     `json:"attempts"`
	Status      string    `json:"status"`
	PayloadSize int       `json:"payload_size"`
}

// QueueResponse is the body of GET /v1/queue.
type QueueResponse struct {
	Size     int                  `json:"size"`
	Draining bool                 `json:"draining"`
	Entries  []*QueueEntryPreview `json:"entries"`
}

// DrainResponse is the body of POST /v1/queue/drain.
type DrainResponse struct {
	Delivered  int   `json:"delivered"`
	Requeued   int   `json:"requeued"`
	Exhausted  int   `json:"exhausted"`
	Dropped    int   `json:"dropped"`
	DurationMs int64 `json:"duration_ms"`
}

// ChannelActionResponse is the body of the per-channel management calls.
type ChannelActionResponse struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// BreakerResetResponse is the body of POST /v1/breaker/reset.
type BreakerResetResponse struct {
	State string `json:"state"`
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends"`
}

// BridgeService implements the management API on top of the bridge use case.
type BridgeService struct {
	uc     *biz.BridgeUseCase
	data   *data.Data
	logger *log.Helper
}

// NewBridgeService creates a new BridgeService instance.
func NewBridgeService(uc *biz.BridgeUseCase, d *data.Data, logger log.Logger) *BridgeService {
	return &BridgeService{
		uc:     uc,
		data:   d,
		logger: log.NewHelper(logger),
	}
}

// SubmitOperation routes one operation through the bridge. The outcome
// arrives asynchronously; this call only reports which path accepted it.
func (s *BridgeService) SubmitOperation(ctx context.Context, req *SubmitOperationRequest) (*SubmitOperationResponse, error) {
	if len(req.Payload) == 0 {
		return nil, errors.BadRequest("PAYLOAD_REQUIRED", "payload is required")
	}

	receipt, err := s.uc.Submit(ctx, req.OperationID, req.Payload, s.logOutcome, s.logProgress)
	if err != nil {
		s.logger.Errorw("failed to submit operation", "operation_id", req.OperationID, "error", err)
		return nil, err
	}

	resp := &SubmitOperationResponse{
		OperationID: receipt.OperationID,
		Route:       string(receipt.Route),
		Status:      "accepted",
		QueueSize:   receipt.QueueSize,
	}
	if receipt.Route == model.RouteQueued {
		resp.Status = "queued"
	}
	return resp, nil
}

// GetStatus returns the aggregate bridge health view.
func (s *BridgeService) GetStatus(ctx context.Context) (*biz.BridgeStatus, error) {
	return s.uc.Status(ctx), nil
}

// GetQueue returns queue depth and a payload-free preview of its entries.
func (s *BridgeService) GetQueue(ctx context.Context, limit int) (*QueueResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	ops, err := s.uc.QueueSnapshot(ctx, limit)
	if err != nil {
		s.logger.Errorw("failed to snapshot queue", "error", err)
		return nil, err
	}

	status := s.uc.Status(ctx)
	resp := &QueueResponse{
		Size:     status.QueueSize,
		Draining: status.Draining,
		Entries:  make([]*QueueEntryPreview, 0, len(ops)),
	}
	for _, op := range ops {
		resp.Entries = append(resp.Entries, &QueueEntryPreview{
			OperationID: op.ID,
			QueuedAt:    op.QueuedAt,
			Attempts:    op.Attempts,
			Status:      string(op.Status),
			PayloadSize: len(op.Payload),
		})
	}
	return resp, nil
}

// TriggerDrain kicks a drain cycle and reports what it moved.
func (s *BridgeService) TriggerDrain(ctx context.Context) (*DrainResponse, error) {
	s.logger.Infow("manual queue drain requested")

	stats, err := s.uc.TriggerDrain(ctx)
	if err != nil {
		return nil, err
	}

	return &DrainResponse{
		Delivered:  stats.Delivered,
		Requeued:   stats.Requeued,
		Exhausted:  stats.Exhausted,
		Dropped:    stats.Dropped,
		DurationMs: stats.Duration.Milliseconds(),
	}, nil
}

// ReconnectChannel explicitly (re)connects one channel. This is the external
// reset that leaves the terminal failed state.
func (s *BridgeService) ReconnectChannel(ctx context.Context, channel string) (*ChannelActionResponse, error) {
	name, err := parseChannel(channel)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("manual reconnect requested", "channel", name)
	if err := s.uc.ReconnectChannel(ctx, name); err != nil {
		return &ChannelActionResponse{
			Channel: string(name),
			Status:  "error",
			Message: err.Error(),
		}, nil
	}
	return &ChannelActionResponse{Channel: string(name), Status: "connecting"}, nil
}

// DisconnectChannel deliberately disconnects one channel. No reconnect is
// scheduled for a deliberate disconnect.
func (s *BridgeService) DisconnectChannel(ctx context.Context, channel string) (*ChannelActionResponse, error) {
	name, err := parseChannel(channel)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("manual disconnect requested", "channel", name)
	if err := s.uc.DisconnectChannel(name); err != nil {
		return nil, err
	}
	return &ChannelActionResponse{Channel: string(name), Status: "disconnected"}, nil
}

// ResetBreaker closes the circuit breaker and clears its counters.
func (s *BridgeService) ResetBreaker(ctx context.Context) (*BreakerResetResponse, error) {
	s.logger.Infow("manual breaker reset requested")
	s.uc.ResetBreaker()
	return &BreakerResetResponse{State: "closed"}, nil
}

// GetHealth reports backing store reachability. A degraded answer still
// returns 200; probes read the body.
func (s *BridgeService) GetHealth(ctx context.Context) (*HealthResponse, error) {
	backends := s.data.Ping(ctx)

	status := "ok"
	for _, st := range backends {
		if st == "unreachable" {
			status = "degraded"
		}
	}
	return &HealthResponse{Status: status, Backends: backends}, nil
}

// logOutcome is the response callback attached to API submissions; the
// operation outcome is observable in the log and the audit trail.
func (s *BridgeService) logOutcome(result json.RawMessage, err error) {
	if err != nil {
		s.logger.Warnw("operation finished with error", "error", err)
		return
	}
	s.logger.Infow("operation completed", "result_size", len(result))
}

// logProgress records non-terminal progress frames for API submissions.
func (s *BridgeService) logProgress(progress json.RawMessage) {
	s.logger.Debugw("operation progress", "progress_size", len(progress))
}

func parseChannel(channel string) (model.ChannelName, error) {
	switch model.ChannelName(channel) {
	case model.ChannelPrimary:
		return model.ChannelPrimary, nil
	case model.ChannelSecondary:
		return model.ChannelSecondary, nil
	default:
		return "", errors.BadRequest("UNKNOWN_CHANNEL", "channel must be primary or secondary")
	}
}
