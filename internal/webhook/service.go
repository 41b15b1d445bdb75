package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
	"github.com/frahmantamala/razorpay-reconciliation/pkg/logger"
)

type Verifier interface {
	VerifyWebhook(rawBody []byte, signature string) error
}

type Engine interface {
	Process(ctx context.Context, d reconcile.Delivery, fn func(ctx context.Context) (reconcile.Outcome, error)) (reconcile.Outcome, error)
	ApplyPayment(ctx context.Context, source reconcile.Source, snap reconcile.PaymentSnapshot, raw []byte) (*reconcile.Result, error)
	ApplyRefund(ctx context.Context, source reconcile.Source, refund razorpay.Refund, raw []byte) (*reconcile.Result, error)
}

type Service struct {
	verifier Verifier
	engine   Engine
	logger   *slog.Logger
}

func NewService(verifier Verifier, engine Engine, logger *slog.Logger) *Service {
	return &Service{verifier: verifier, engine: engine, logger: logger}
}

// log tags entries with the request id carried by ctx.
func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.Scoped(ctx, s.logger)
}

// Ingest verifies and applies one webhook delivery. Every verified and
// parsable delivery yields an outcome; only infrastructure failures come back
// as errors, so the provider retries exactly those.
func (s *Service) Ingest(ctx context.Context, raw []byte, signature, deliveryID string) (reconcile.Outcome, error) {
	if err := s.verifier.VerifyWebhook(raw, signature); err != nil {
		s.log(ctx).Warn("webhook signature rejected", "delivery_id", deliveryID, "size", len(raw))
		return "", err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", internal.ErrInvalidPayload.WithCause(err)
	}
	if strings.TrimSpace(env.Event) == "" {
		return "", internal.ErrInvalidPayload.WithMessage("webhook event type is missing")
	}

	delivery := reconcile.Delivery{
		Source:           reconcile.SourceWebhook,
		EventType:        env.Event,
		IdempotencyKey:   idempotencyKey(env, raw, deliveryID),
		GatewayOrderID:   env.orderID(),
		GatewayPaymentID: env.paymentID(),
		Payload:          raw,
		SignatureValid:   true,
	}

	outcome, err := s.engine.Process(ctx, delivery, func(ctx context.Context) (reconcile.Outcome, error) {
		return s.dispatch(ctx, env, raw)
	})
	if err != nil {
		s.log(ctx).Error("webhook processing failed",
			"event", env.Event,
			"idempotency_key", delivery.IdempotencyKey,
			"error", err)
		return "", err
	}

	s.log(ctx).Info("webhook processed",
		"event", env.Event,
		"gateway_order_id", delivery.GatewayOrderID,
		"gateway_payment_id", delivery.GatewayPaymentID,
		"outcome", outcome)
	return outcome, nil
}

// idempotencyKey is event:payment:delivery, falling back to a digest of the
// body when the provider sent no delivery id.
func idempotencyKey(env Envelope, raw []byte, deliveryID string) string {
	attempt := strings.TrimSpace(deliveryID)
	if attempt == "" {
		sum := sha256.Sum256(raw)
		attempt = hex.EncodeToString(sum[:])
	}
	return env.Event + ":" + env.paymentID() + ":" + attempt
}

func (s *Service) dispatch(ctx context.Context, env Envelope, raw []byte) (reconcile.Outcome, error) {
	switch env.Event {
	case EventPaymentAuthorized, EventPaymentCaptured, EventPaymentFailed, EventOrderPaid:
		p := env.payment()
		if p == nil {
			s.log(ctx).Warn("webhook carries no payment entity", "event", env.Event, "gateway_order_id", env.orderID())
			return reconcile.OutcomeIgnored, nil
		}
		snap := reconcile.SnapshotFromProvider(*p)
		if snap.GatewayOrderID == "" {
			snap.GatewayOrderID = env.orderID()
		}
		if snap.Status == "" {
			snap.Status = impliedStatus(env.Event)
		}
		result, err := s.engine.ApplyPayment(ctx, reconcile.SourceWebhook, snap, raw)
		return s.settle(ctx, env, result, err)

	case EventRefundProcessed:
		r := env.refund()
		if r == nil {
			s.log(ctx).Warn("webhook carries no refund entity", "event", env.Event)
			return reconcile.OutcomeIgnored, nil
		}
		result, err := s.engine.ApplyRefund(ctx, reconcile.SourceWebhook, *r, raw)
		return s.settle(ctx, env, result, err)

	default:
		s.log(ctx).Debug("webhook event not handled", "event", env.Event)
		return reconcile.OutcomeUnhandled, nil
	}
}

// settle turns domain rejections into terminal outcomes. Retrying them
// would never succeed, so they are acknowledged like any other result.
func (s *Service) settle(ctx context.Context, env Envelope, result *reconcile.Result, err error) (reconcile.Outcome, error) {
	if err == nil {
		return result.Outcome, nil
	}
	if errors.Is(err, internal.ErrOrderNotFound) {
		return reconcile.OutcomeUnknownOrder, nil
	}
	if errors.Is(err, internal.ErrConcurrentUpdate) {
		return "", err
	}
	if appErr, ok := internal.IsAppError(err); ok && appErr.StatusCode < http.StatusInternalServerError {
		s.log(ctx).Warn("webhook rejected by reconciliation",
			"event", env.Event,
			"gateway_payment_id", env.paymentID(),
			"code", appErr.Code)
		return reconcile.OutcomeIgnored, nil
	}
	return "", err
}

func impliedStatus(event string) payment.Status {
	switch event {
	case EventPaymentAuthorized:
		return payment.StatusAuthorized
	case EventPaymentFailed:
		return payment.StatusFailed
	default:
		return payment.StatusCaptured
	}
}
