package data

// AuditEventType defines audit event type constants.
// These constants are used for audit logging in delivery_audit_logs table.
type AuditEventType string

const (
	// AuditEventEnqueued is logged when an operation is admitted to the offline queue
	AuditEventEnqueued AuditEventType = "OPERATION_ENQUEUED"

	// AuditEventDelivered is logged when a queued operation is replayed successfully
	AuditEventDelivered AuditEventType = "OPERATION_DELIVERED"

	// AuditEventEvicted is logged when a full queue pushes out its oldest entry
	AuditEventEvicted AuditEventType = "QUEUE_CAPACITY_EVICTED"

	// AuditEventExhausted is logged when an operation fails every replay attempt
	AuditEventExhausted AuditEventType = "REPLAY_EXHAUSTED"

	// AuditEventIndeterminate is logged when a channel drops with a request in flight
	AuditEventIndeterminate AuditEventType = "OUTCOME_INDETERMINATE"

	// AuditEventCorrupted is logged when a stored record can no longer be
	// decoded and is dropped instead of replayed
	AuditEventCorrupted AuditEventType = "QUEUE_ENTRY_CORRUPTED"
)

// String returns the string representation of AuditEventType
func (e AuditEventType) String() string {
	return string(e)
}
