package reconciliation

import (
	"time"

	"gorm.io/datatypes"
)

// Event is one inbound signal (callback, webhook delivery or sync pass).
// The pair (source, idempotency_key) is unique.
type Event struct {
	ID               string         `db:"id"`
	Source           string         `db:"source"`
	EventType        string         `db:"event_type"`
	IdempotencyKey   string         `db:"idempotency_key"`
	GatewayOrderID   *string        `db:"gateway_order_id"`
	GatewayPaymentID *string        `db:"gateway_payment_id"`
	RawPayload       datatypes.JSON `db:"raw_payload"`
	SignatureValid   bool           `db:"signature_valid"`
	Outcome          *string        `db:"outcome"`
	ReceivedAt       time.Time      `db:"received_at"`
	ProcessedAt      *time.Time     `db:"processed_at"`
}
