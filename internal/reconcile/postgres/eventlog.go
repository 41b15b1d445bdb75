package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/reconciliation"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
)

const insertEventQuery = `
INSERT INTO reconciliation_events
	(id, source, event_type, idempotency_key, gateway_order_id, gateway_payment_id, raw_payload, signature_valid, received_at)
VALUES
	(:id, :source, :event_type, :idempotency_key, :gateway_order_id, :gateway_payment_id, :raw_payload, :signature_valid, :received_at)
ON CONFLICT (source, idempotency_key) DO NOTHING`

type EventLogRepository struct {
	db *sqlx.DB
}

func NewEventLogRepository(db *sqlx.DB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

var _ reconcile.EventLog = (*EventLogRepository)(nil)

func (r *EventLogRepository) Begin(ctx context.Context, e *reconciliation.Event) (bool, error) {
	result, err := r.db.NamedExecContext(ctx, insertEventQuery, e)
	if err != nil {
		return false, err
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 1 {
		return false, nil
	}

	stored, err := r.Find(ctx, e.Source, e.IdempotencyKey)
	if err != nil {
		return false, err
	}
	return stored != nil && stored.ProcessedAt != nil, nil
}

func (r *EventLogRepository) Complete(ctx context.Context, source, idempotencyKey, outcome string, at time.Time) error {
	query := r.db.Rebind(`UPDATE reconciliation_events SET processed_at = ?, outcome = ? WHERE source = ? AND idempotency_key = ?`)
	_, err := r.db.ExecContext(ctx, query, at, outcome, source, idempotencyKey)
	return err
}

func (r *EventLogRepository) Find(ctx context.Context, source, idempotencyKey string) (*reconciliation.Event, error) {
	var e reconciliation.Event
	query := r.db.Rebind(`SELECT * FROM reconciliation_events WHERE source = ? AND idempotency_key = ?`)
	if err := r.db.GetContext(ctx, &e, query, source, idempotencyKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// ListByOrder returns the deliveries recorded for a gateway order, newest first.
func (r *EventLogRepository) ListByOrder(ctx context.Context, gatewayOrderID string, limit int) ([]reconciliation.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []reconciliation.Event
	query := r.db.Rebind(`SELECT * FROM reconciliation_events WHERE gateway_order_id = ? ORDER BY received_at DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &out, query, gatewayOrderID, limit); err != nil {
		return nil, err
	}
	return out, nil
}
