package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/reconciliation"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/events"
	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
	"github.com/frahmantamala/razorpay-reconciliation/internal/review"
)

type OrderStore interface {
	Find(ctx context.Context, gatewayOrderID string) (*order.GatewayOrder, error)
	MarkAttempted(ctx context.Context, gatewayOrderID string) (bool, error)
	MarkPaid(ctx context.Context, gatewayOrderID string) (moved, linked bool, err error)
	MarkExpired(ctx context.Context, gatewayOrderID string) (bool, error)
	RecordAttempt(ctx context.Context, gatewayOrderID string) error
}

type PaymentStore interface {
	Upsert(ctx context.Context, p *payment.GatewayPayment) (*payment.UpsertResult, error)
	RecordRefund(ctx context.Context, in payment.RefundInput) (*payment.GatewayPayment, error)
	Find(ctx context.Context, gatewayPaymentID string) (*payment.GatewayPayment, error)
}

type ConflictRecorder interface {
	Record(ctx context.Context, in review.RecordInput) (*review.Conflict, bool, error)
}

type Provider interface {
	FetchOrder(ctx context.Context, gatewayOrderID string) (*razorpay.Order, error)
	FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]razorpay.Payment, error)
	FetchPaymentRefunds(ctx context.Context, gatewayPaymentID string) ([]razorpay.Refund, error)
}

// EventLog stores every delivery once per (source, idempotency key).
type EventLog interface {
	// Begin stores the event and reports whether an earlier delivery with the
	// same key already finished processing.
	Begin(ctx context.Context, e *reconciliation.Event) (bool, error)
	Complete(ctx context.Context, source, idempotencyKey, outcome string, at time.Time) error
}

type Publisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}

type Config struct {
	// ExpireAfter lets Sync expire unpaid orders older than this. Zero disables it.
	ExpireAfter time.Duration
}

// Engine applies payment reports from every source with the same rules:
// payment status only moves forward, contradictions go to the review queue,
// and the order is marked paid by exactly one caller.
type Engine struct {
	orders    OrderStore
	payments  PaymentStore
	conflicts ConflictRecorder
	provider  Provider
	log       EventLog
	publisher Publisher
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(orders OrderStore, payments PaymentStore, conflicts ConflictRecorder, provider Provider, log EventLog, publisher Publisher, config Config, logger *slog.Logger) *Engine {
	return &Engine{
		orders:    orders,
		payments:  payments,
		conflicts: conflicts,
		provider:  provider,
		log:       log,
		publisher: publisher,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Process runs fn at most once to completion per delivery key. A delivery
// whose earlier run failed is processed again; one that already completed
// returns OutcomeDuplicate without calling fn.
func (e *Engine) Process(ctx context.Context, d Delivery, fn func(ctx context.Context) (Outcome, error)) (Outcome, error) {
	payload := d.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	record := &reconciliation.Event{
		ID:             uuid.New().String(),
		Source:         string(d.Source),
		EventType:      d.EventType,
		IdempotencyKey: d.IdempotencyKey,
		RawPayload:     datatypes.JSON(payload),
		SignatureValid: d.SignatureValid,
		ReceivedAt:     e.now().UTC(),
	}
	if d.GatewayOrderID != "" {
		record.GatewayOrderID = &d.GatewayOrderID
	}
	if d.GatewayPaymentID != "" {
		record.GatewayPaymentID = &d.GatewayPaymentID
	}

	processed, err := e.log.Begin(ctx, record)
	if err != nil {
		return "", internal.NewInternalError("failed to record reconciliation event", err)
	}
	if processed {
		e.logger.Info("duplicate delivery acknowledged",
			"source", d.Source,
			"event_type", d.EventType,
			"idempotency_key", d.IdempotencyKey)
		return OutcomeDuplicate, nil
	}

	outcome, err := fn(ctx)
	if err != nil {
		return outcome, err
	}

	if err := e.log.Complete(ctx, string(d.Source), d.IdempotencyKey, string(outcome), e.now().UTC()); err != nil {
		// the work is done; a redelivery will be applied again as a no-op
		e.logger.Error("failed to mark event processed", "idempotency_key", d.IdempotencyKey, "error", err)
	}
	return outcome, nil
}

// ApplyPayment reconciles one reported payment state. Unknown orders come
// back as ErrOrderNotFound and conflicts as OutcomeConflict with the review
// entry attached.
func (e *Engine) ApplyPayment(ctx context.Context, source Source, snap PaymentSnapshot, raw []byte) (*Result, error) {
	ord, err := e.orders.Find(ctx, snap.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		e.logger.Warn("payment reported for unknown order",
			"source", source,
			"gateway_order_id", snap.GatewayOrderID,
			"gateway_payment_id", snap.GatewayPaymentID)
		return &Result{Outcome: OutcomeUnknownOrder}, internal.ErrOrderNotFound
	}

	incoming := snap.toPayment()
	if incoming.Amount == 0 {
		incoming.Amount = ord.Amount
	}
	if incoming.Currency == "" {
		incoming.Currency = ord.Currency
	}
	if ref := ord.LocalRef(); ref != "" {
		incoming.LocalOrderRef = &ref
	}
	// refund amounts are only ever recorded from refund entities
	if incoming.Status == payment.StatusRefunded {
		incoming.Status = payment.StatusCaptured
	}

	upserted, err := e.payments.Upsert(ctx, incoming)
	if err != nil {
		if errors.Is(err, internal.ErrStateConflict) {
			return e.recordConflict(ctx, source, ord, err, raw)
		}
		return nil, err
	}

	// only once the payment is accepted; a rejected report leaves the order as it was
	if _, err := e.orders.MarkAttempted(ctx, ord.GatewayOrderID); err != nil {
		return nil, err
	}

	result := &Result{Order: ord, Payment: upserted.Payment, Outcome: OutcomeIgnored}
	if upserted.Created || upserted.StatusChanged {
		result.Outcome = OutcomeApplied
	}
	if upserted.Created {
		if err := e.orders.RecordAttempt(ctx, ord.GatewayOrderID); err != nil {
			e.logger.Warn("failed to count payment attempt", "gateway_order_id", ord.GatewayOrderID, "error", err)
		}
	}

	switch {
	case upserted.Payment.Status.IsCaptured():
		moved, linked, err := e.orders.MarkPaid(ctx, ord.GatewayOrderID)
		if err != nil {
			return nil, err
		}
		if moved {
			result.MarkedPaid = true
			result.Outcome = OutcomeApplied
			e.afterPaid(ctx, source, ord.GatewayOrderID, linked, upserted.Payment)
		}
	case upserted.Payment.Status == payment.StatusFailed && upserted.StatusChanged:
		e.afterFailed(ctx, source, ord, upserted.Payment)
	}

	if fresh, err := e.orders.Find(ctx, ord.GatewayOrderID); err == nil && fresh != nil {
		result.Order = fresh
	}

	e.logger.Info("payment reconciled",
		"source", source,
		"gateway_order_id", ord.GatewayOrderID,
		"gateway_payment_id", upserted.Payment.GatewayPaymentID,
		"status", upserted.Payment.Status,
		"outcome", result.Outcome,
		"marked_paid", result.MarkedPaid)
	return result, nil
}

// afterPaid runs the side effect for the caller that won the paid transition.
// An order paid before its local order was attached is announced by the
// attach instead.
func (e *Engine) afterPaid(ctx context.Context, source Source, gatewayOrderID string, linked bool, p *payment.GatewayPayment) {
	if !linked {
		e.logger.Info("order paid before a local order was attached", "gateway_order_id", gatewayOrderID)
		return
	}
	// the reference never changes once set, so a reload is safe
	ord, err := e.orders.Find(ctx, gatewayOrderID)
	if err != nil || ord == nil {
		e.logger.Error("failed to reload paid order", "gateway_order_id", gatewayOrderID, "error", err)
		return
	}
	method := ""
	if p.Method != nil {
		method = *p.Method
	}
	e.publish(ctx, events.NewPaymentCapturedEvent(gatewayOrderID, p.GatewayPaymentID, ord.LocalRef(), p.Amount, p.Currency, method, string(source)))
}

func (e *Engine) afterFailed(ctx context.Context, source Source, ord *order.GatewayOrder, p *payment.GatewayPayment) {
	if ord.LocalRef() == "" || ord.IsPaid() {
		return
	}
	var code, desc string
	if p.ErrorCode != nil {
		code = *p.ErrorCode
	}
	if p.ErrorDescription != nil {
		desc = *p.ErrorDescription
	}
	e.publish(ctx, events.NewPaymentFailedEvent(ord.GatewayOrderID, p.GatewayPaymentID, ord.LocalRef(), code, desc, string(source)))
}

func (e *Engine) recordConflict(ctx context.Context, source Source, ord *order.GatewayOrder, cause error, raw []byte) (*Result, error) {
	appErr, ok := internal.IsAppError(cause)
	if !ok {
		return nil, cause
	}
	details, ok := appErr.Details.(payment.ConflictDetails)
	if !ok {
		return nil, cause
	}

	conflict, _, err := e.conflicts.Record(ctx, review.RecordInput{
		GatewayOrderID:   details.GatewayOrderID,
		GatewayPaymentID: details.GatewayPaymentID,
		LocalStatus:      string(details.LocalStatus),
		ReportedStatus:   string(details.ReportedStatus),
		Source:           string(source),
		Reason:           details.Reason,
		Payload:          raw,
	})
	if err != nil {
		return nil, err
	}

	current, err := e.payments.Find(ctx, details.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeConflict, Order: ord, Payment: current, Conflict: conflict}, nil
}

// ApplyRefund records a provider refund. A refund the local record cannot
// absorb is filed for review and leaves the payment unchanged.
func (e *Engine) ApplyRefund(ctx context.Context, source Source, refund razorpay.Refund, raw []byte) (*Result, error) {
	before, err := e.payments.Find(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}
	if before == nil {
		e.logger.Warn("refund for unknown payment", "gateway_payment_id", refund.PaymentID, "gateway_refund_id", refund.ID)
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	updated, err := e.payments.RecordRefund(ctx, payment.RefundInput{
		GatewayPaymentID: refund.PaymentID,
		GatewayRefundID:  refund.ID,
		Amount:           refund.Amount,
		Status:           refund.Status,
	})
	switch {
	case err == nil:
		outcome := OutcomeIgnored
		if updated.AmountRefunded != before.AmountRefunded {
			outcome = OutcomeApplied
		}
		return &Result{Outcome: outcome, Payment: updated}, nil
	case errors.Is(err, internal.ErrNotCaptured), errors.Is(err, internal.ErrRefundExceedsCaptured):
	default:
		return nil, err
	}

	conflict, _, recErr := e.conflicts.Record(ctx, review.RecordInput{
		GatewayOrderID:   before.GatewayOrderID,
		GatewayPaymentID: before.GatewayPaymentID,
		LocalStatus:      string(before.Status),
		ReportedStatus:   string(payment.StatusRefunded),
		Source:           string(source),
		Reason:           fmt.Sprintf("refund %s of %d could not be applied: %v", refund.ID, refund.Amount, err),
		Payload:          raw,
	})
	if recErr != nil {
		return nil, recErr
	}
	return &Result{Outcome: OutcomeConflict, Payment: before, Conflict: conflict}, nil
}

// Sync pulls the order and its payments from the provider and applies them
// as if they had been delivered.
func (e *Engine) Sync(ctx context.Context, gatewayOrderID string) (*SyncReport, error) {
	start := e.now()
	ord, err := e.orders.Find(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, internal.ErrOrderNotFound
	}

	remote, err := e.provider.FetchOrder(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	payments, err := e.provider.FetchOrderPayments(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{GatewayOrderID: gatewayOrderID, ProviderStatus: remote.Status, Payments: len(payments)}
	delivery := Delivery{
		Source:         SourceSync,
		EventType:      "order.sync",
		IdempotencyKey: fmt.Sprintf("sync:%s:%s", gatewayOrderID, uuid.New().String()),
		GatewayOrderID: gatewayOrderID,
		Payload:        []byte(fmt.Sprintf(`{"order_id":%q,"provider_status":%q,"payments":%d}`, gatewayOrderID, remote.Status, len(payments))),
		SignatureValid: true,
	}

	_, err = e.Process(ctx, delivery, func(ctx context.Context) (Outcome, error) {
		for _, p := range payments {
			if p.OrderID == "" {
				p.OrderID = gatewayOrderID
			}
			res, err := e.ApplyPayment(ctx, SourceSync, SnapshotFromProvider(p), nil)
			if err != nil {
				return "", err
			}
			report.count(res.Outcome)

			if p.AmountRefunded > 0 {
				if err := e.syncRefunds(ctx, p, report); err != nil {
					return "", err
				}
			}
		}

		if e.shouldExpire(ord, remote) {
			moved, err := e.orders.MarkExpired(ctx, gatewayOrderID)
			if err != nil {
				return "", err
			}
			report.Expired = moved
		}
		if report.Applied > 0 || report.Expired {
			return OutcomeApplied, nil
		}
		return OutcomeIgnored, nil
	})
	if err != nil {
		return nil, err
	}

	if fresh, err := e.orders.Find(ctx, gatewayOrderID); err == nil && fresh != nil {
		report.OrderStatus = string(fresh.Status)
	}
	report.Duration = e.now().Sub(start)
	e.logger.Info("order synced",
		"gateway_order_id", gatewayOrderID,
		"provider_status", remote.Status,
		"order_status", report.OrderStatus,
		"payments", report.Payments,
		"applied", report.Applied,
		"conflicts", report.Conflicts,
		"expired", report.Expired)
	return report, nil
}

func (e *Engine) syncRefunds(ctx context.Context, p razorpay.Payment, report *SyncReport) error {
	local, err := e.payments.Find(ctx, p.ID)
	if err != nil || local == nil || local.AmountRefunded >= p.AmountRefunded {
		return err
	}
	refunds, err := e.provider.FetchPaymentRefunds(ctx, p.ID)
	if err != nil {
		return err
	}
	for _, r := range refunds {
		if r.PaymentID == "" {
			r.PaymentID = p.ID
		}
		res, err := e.ApplyRefund(ctx, SourceSync, r, nil)
		if err != nil {
			return err
		}
		if res.Outcome == OutcomeApplied {
			report.Refunds++
		}
	}
	return nil
}

func (e *Engine) shouldExpire(ord *order.GatewayOrder, remote *razorpay.Order) bool {
	if e.config.ExpireAfter <= 0 || remote.Status == razorpay.OrderStatusPaid {
		return false
	}
	return e.now().Sub(ord.CreatedAt) >= e.config.ExpireAfter
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishSync(ctx, event); err != nil {
		e.logger.Error("side effect failed after reconciliation",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"error", err)
	}
}
