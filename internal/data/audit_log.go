package data

import (
	"context"
	"encoding/json"
	"time"

	"RelayLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// DeliveryAuditLog is the GORM model for delivery_audit_logs table
type DeliveryAuditLog struct {
	ID          int64     `gorm:"primaryKey;column:id"`
	OperationID string    `gorm:"column:operation_id;type:varchar(64);not null;index"`
	EventType   string    `gorm:"column:event_type;type:varchar(50);not null"`
	Details     string    `gorm:"column:details;type:json"` // JSON string
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (DeliveryAuditLog) TableName() string {
	return "delivery_audit_logs"
}

// DeliveryAuditLogger implements biz.DeliveryAuditor. Records go through a
// buffered channel so the dispatch path never waits on MySQL; without a
// database the trail degrades to structured log lines.
type DeliveryAuditLogger struct {
	db      *gorm.DB
	logChan chan *DeliveryAuditLog
	logger  *log.Helper
}

// NewDeliveryAuditLogger creates a new delivery audit logger with async channel
func NewDeliveryAuditLogger(db *gorm.DB, logger log.Logger) *DeliveryAuditLogger {
	al := &DeliveryAuditLogger{
		db:      db,
		logChan: make(chan *DeliveryAuditLog, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	// Start background goroutine for async persistence
	if db != nil {
		go al.start()
	}

	return al
}

// start processes audit events from the channel
func (a *DeliveryAuditLogger) start() {
	for event := range a.logChan {
		ctx := context.Background()
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("failed to write delivery audit log",
				"operation_id", event.OperationID,
				"event_type", event.EventType,
				"error", err)
		} else {
			a.logger.Debugw("delivery audit log written",
				"operation_id", event.OperationID,
				"event_type", event.EventType)
		}
	}
}

// LogEnqueued records an operation admitted to the offline queue
func (a *DeliveryAuditLogger) LogEnqueued(ctx context.Context, op *model.QueuedOperation) {
	a.record(AuditEventEnqueued, op.ID, map[string]interface{}{
		"attempts":  op.Attempts,
		"status":    string(op.Status),
		"queued_at": op.QueuedAt.Format(time.RFC3339),
	})
}

// LogDelivered records a queued operation that was replayed successfully
func (a *DeliveryAuditLogger) LogDelivered(ctx context.Context, op *model.QueuedOperation) {
	a.record(AuditEventDelivered, op.ID, map[string]interface{}{
		"attempts": op.Attempts,
	})
}

// LogEvicted records an operation pushed out by newer arrivals at capacity
func (a *DeliveryAuditLogger) LogEvicted(ctx context.Context, op *model.QueuedOperation) {
	a.record(AuditEventEvicted, op.ID, map[string]interface{}{
		"attempts":  op.Attempts,
		"queued_at": op.QueuedAt.Format(time.RFC3339),
	})
}

// LogExhausted records an operation dropped after failing every replay attempt
func (a *DeliveryAuditLogger) LogExhausted(ctx context.Context, op *model.QueuedOperation) {
	a.record(AuditEventExhausted, op.ID, map[string]interface{}{
		"attempts": op.Attempts,
	})
}

// LogIndeterminate records an in-flight request whose channel dropped before
// any response arrived
func (a *DeliveryAuditLogger) LogIndeterminate(ctx context.Context, operationID string, channel model.ChannelName) {
	a.record(AuditEventIndeterminate, operationID, map[string]interface{}{
		"channel": string(channel),
	})
}

// LogCorrupted records a stored record dropped because it could no longer be
// decoded. operationID may be empty when the record was too damaged to identify.
func (a *DeliveryAuditLogger) LogCorrupted(ctx context.Context, operationID string, cause error) {
	a.record(AuditEventCorrupted, operationID, map[string]interface{}{
		"error": cause.Error(),
	})
}

// record marshals the event details and hands the row to the writer
// goroutine without blocking.
func (a *DeliveryAuditLogger) record(eventType AuditEventType, operationID string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	if a.db == nil {
		a.logger.Infow("delivery audit event",
			"operation_id", operationID,
			"event_type", eventType.String(),
			"details", string(detailsJSON))
		return
	}

	event := &DeliveryAuditLog{
		OperationID: operationID,
		EventType:   eventType.String(),
		Details:     string(detailsJSON),
	}

	// Send to channel (non-blocking)
	select {
	case a.logChan <- event:
		// Successfully queued
	default:
		a.logger.Warnw("audit log channel full, dropping event",
			"operation_id", operationID,
			"event_type", event.EventType)
	}
}
