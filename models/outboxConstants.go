package models

// Outbox publish statuses for WebhookMessage.PublishStatus.
// Stored as strings in Firestore; keep values stable.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Webhook kinds; each maps to an outbound path on the notification service.
const (
	WebhookKindQCStatus = "qcstatus"
	WebhookKindProperty = "property"
)
