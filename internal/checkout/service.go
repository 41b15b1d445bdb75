package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/events"
	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
	"github.com/frahmantamala/razorpay-reconciliation/pkg/logger"
)

const (
	eventTypeCallback = "checkout.callback"
	eventTypeFailure  = "checkout.failure"
)

type OrderAPI interface {
	CreateOrder(ctx context.Context, dto order.CreateOrderDTO) (*order.GatewayOrder, error)
	AttachLocalOrder(ctx context.Context, gatewayOrderID, localOrderRef string) (*order.Attachment, error)
	Find(ctx context.Context, gatewayOrderID string) (*order.GatewayOrder, error)
	Get(ctx context.Context, gatewayOrderID string) (*order.GatewayOrder, error)
	MarkAttempted(ctx context.Context, gatewayOrderID string) (bool, error)
}

type PaymentReader interface {
	Find(ctx context.Context, gatewayPaymentID string) (*payment.GatewayPayment, error)
}

type Verifier interface {
	VerifyCallback(gatewayOrderID, gatewayPaymentID, signature string) error
}

type PaymentFetcher interface {
	FetchPayment(ctx context.Context, gatewayPaymentID string) (*razorpay.Payment, error)
}

type Engine interface {
	Process(ctx context.Context, d reconcile.Delivery, fn func(ctx context.Context) (reconcile.Outcome, error)) (reconcile.Outcome, error)
	ApplyPayment(ctx context.Context, source reconcile.Source, snap reconcile.PaymentSnapshot, raw []byte) (*reconcile.Result, error)
}

type AssetResolver interface {
	LogoURL() string
}

type Publisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}

type Options struct {
	KeyID        string
	MerchantName string
	ThemeColor   string
	CallbackURL  string
	// VerifyPaymentOnAPI asks the provider for the payment status instead of
	// trusting the signed callback alone.
	VerifyPaymentOnAPI bool
}

type Service struct {
	orders    OrderAPI
	payments  PaymentReader
	verifier  Verifier
	fetcher   PaymentFetcher
	engine    Engine
	assets    AssetResolver
	publisher Publisher
	options   Options
	logger    *slog.Logger
}

func NewService(orders OrderAPI, payments PaymentReader, verifier Verifier, fetcher PaymentFetcher, engine Engine, assets AssetResolver, publisher Publisher, options Options, logger *slog.Logger) *Service {
	return &Service{
		orders:    orders,
		payments:  payments,
		verifier:  verifier,
		fetcher:   fetcher,
		engine:    engine,
		assets:    assets,
		publisher: publisher,
		options:   options,
		logger:    logger,
	}
}

// log tags entries with the request id carried by ctx.
func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.Scoped(ctx, s.logger)
}

// StartCheckout creates the gateway order, binds the platform's order to it
// and returns the checkout handoff.
func (s *Service) StartCheckout(ctx context.Context, dto StartCheckoutDTO) (*Handoff, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	ord, err := s.orders.CreateOrder(ctx, dto.orderDTO())
	if err != nil {
		return nil, err
	}
	if dto.LocalOrderRef != "" {
		ord, err = s.AttachLocalOrder(ctx, ord.GatewayOrderID, dto.LocalOrderRef)
		if err != nil {
			return nil, err
		}
	}

	handoff := &Handoff{
		OrderID:     ord.GatewayOrderID,
		Amount:      ord.Amount,
		Currency:    ord.Currency,
		KeyID:       s.options.KeyID,
		Name:        s.options.MerchantName,
		Description: dto.Description,
		CallbackURL: s.options.CallbackURL,
		Prefill: Prefill{
			Name:    dto.Customer.Name,
			Email:   dto.Customer.Email,
			Contact: dto.Customer.Contact,
		},
		Theme:         Theme{Color: s.options.ThemeColor},
		Notes:         ord.Notes,
		LocalOrderRef: ord.LocalRef(),
	}
	if s.assets != nil {
		handoff.Image = s.assets.LogoURL()
	}
	return handoff, nil
}

// AttachLocalOrder binds a local order and, if the gateway order was already
// paid, announces the link so the platform can still be told.
func (s *Service) AttachLocalOrder(ctx context.Context, gatewayOrderID, localOrderRef string) (*order.GatewayOrder, error) {
	a, err := s.orders.AttachLocalOrder(ctx, gatewayOrderID, localOrderRef)
	if err != nil {
		return nil, err
	}
	if a.Attached && a.AfterPaid && s.publisher != nil {
		event := events.NewLocalOrderLinkedEvent(a.Order.GatewayOrderID, localOrderRef, string(a.Order.Status))
		if err := s.publisher.PublishSync(ctx, event); err != nil {
			s.log(ctx).Error("failed to publish local order link", "gateway_order_id", gatewayOrderID, "error", err)
		}
	}
	return a.Order, nil
}

// HandleCallback verifies and applies the success callback. A replay of a
// callback that was already processed succeeds without side effects.
func (s *Service) HandleCallback(ctx context.Context, dto CallbackDTO) (*CallbackResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.verifier.VerifyCallback(dto.GatewayOrderID, dto.GatewayPaymentID, dto.Signature); err != nil {
		s.log(ctx).Warn("callback signature rejected",
			"gateway_order_id", dto.GatewayOrderID,
			"gateway_payment_id", dto.GatewayPaymentID)
		return nil, err
	}

	if _, err := s.orders.Get(ctx, dto.GatewayOrderID); err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(dto)
	delivery := reconcile.Delivery{
		Source:           reconcile.SourceCallback,
		EventType:        eventTypeCallback,
		IdempotencyKey:   dto.GatewayPaymentID + ":" + dto.Signature,
		GatewayOrderID:   dto.GatewayOrderID,
		GatewayPaymentID: dto.GatewayPaymentID,
		Payload:          raw,
		SignatureValid:   true,
	}

	var result *reconcile.Result
	outcome, err := s.engine.Process(ctx, delivery, func(ctx context.Context) (reconcile.Outcome, error) {
		snap, err := s.snapshot(ctx, dto)
		if err != nil {
			return "", err
		}
		result, err = s.engine.ApplyPayment(ctx, reconcile.SourceCallback, snap, raw)
		if err != nil {
			return "", err
		}
		return result.Outcome, nil
	})
	if err != nil {
		return nil, err
	}

	if outcome == reconcile.OutcomeConflict {
		return nil, internal.ErrStateConflict.WithDetails(map[string]interface{}{
			"gateway_order_id":   dto.GatewayOrderID,
			"gateway_payment_id": dto.GatewayPaymentID,
			"conflict_id":        result.Conflict.ID,
		})
	}

	return s.callbackResult(ctx, dto, outcome == reconcile.OutcomeDuplicate)
}

// snapshot builds the reported payment. With API verification on, the
// provider's view wins; if the provider cannot be reached the signed callback
// is taken as proof of capture.
func (s *Service) snapshot(ctx context.Context, dto CallbackDTO) (reconcile.PaymentSnapshot, error) {
	fallback := reconcile.PaymentSnapshot{
		GatewayPaymentID: dto.GatewayPaymentID,
		GatewayOrderID:   dto.GatewayOrderID,
		Status:           payment.StatusCaptured,
	}
	if !s.options.VerifyPaymentOnAPI || s.fetcher == nil {
		return fallback, nil
	}

	remote, err := s.fetcher.FetchPayment(ctx, dto.GatewayPaymentID)
	if err != nil {
		if errors.Is(err, internal.ErrProviderRejected) {
			return reconcile.PaymentSnapshot{}, err
		}
		s.log(ctx).Warn("payment lookup failed, trusting signed callback",
			"gateway_payment_id", dto.GatewayPaymentID,
			"error", err)
		return fallback, nil
	}
	if remote.OrderID != "" && remote.OrderID != dto.GatewayOrderID {
		return reconcile.PaymentSnapshot{}, internal.ErrOrderMismatch
	}
	snap := reconcile.SnapshotFromProvider(*remote)
	snap.GatewayOrderID = dto.GatewayOrderID
	return snap, nil
}

func (s *Service) callbackResult(ctx context.Context, dto CallbackDTO, duplicate bool) (*CallbackResult, error) {
	ord, err := s.orders.Get(ctx, dto.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	res := &CallbackResult{
		GatewayOrderID:   ord.GatewayOrderID,
		GatewayPaymentID: dto.GatewayPaymentID,
		LocalOrderRef:    ord.LocalRef(),
		OrderStatus:      string(ord.Status),
		Duplicate:        duplicate,
	}
	p, err := s.payments.Find(ctx, dto.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		if p.GatewayOrderID != dto.GatewayOrderID {
			return nil, internal.ErrOrderMismatch
		}
		res.PaymentStatus = string(p.Status)
	}
	return res, nil
}

// HandleFailure records a failed attempt from the unsigned failure form. The
// form cannot be trusted to change payment state, so only the order's
// attempted marker moves.
func (s *Service) HandleFailure(ctx context.Context, dto FailureDTO) (*FailureResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	res := &FailureResult{
		GatewayOrderID: dto.GatewayOrderID,
		Code:           dto.Code,
		Description:    dto.Description,
		Reason:         dto.Reason,
	}
	if dto.GatewayOrderID == "" {
		return res, nil
	}

	ord, err := s.orders.Find(ctx, dto.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		s.log(ctx).Warn("failure callback for unknown order", "gateway_order_id", dto.GatewayOrderID)
		return res, nil
	}
	res.LocalOrderRef = ord.LocalRef()

	raw, _ := json.Marshal(dto)
	key := dto.GatewayOrderID + ":" + dto.GatewayPaymentID + ":" + dto.Code
	_, err = s.engine.Process(ctx, reconcile.Delivery{
		Source:           reconcile.SourceCallback,
		EventType:        eventTypeFailure,
		IdempotencyKey:   "failure:" + key,
		GatewayOrderID:   dto.GatewayOrderID,
		GatewayPaymentID: dto.GatewayPaymentID,
		Payload:          raw,
	}, func(ctx context.Context) (reconcile.Outcome, error) {
		moved, err := s.orders.MarkAttempted(ctx, dto.GatewayOrderID)
		if err != nil {
			return "", err
		}
		if moved {
			return reconcile.OutcomeApplied, nil
		}
		return reconcile.OutcomeIgnored, nil
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("payment attempt failed at checkout",
		"gateway_order_id", dto.GatewayOrderID,
		"gateway_payment_id", dto.GatewayPaymentID,
		"code", dto.Code,
		"reason", dto.Reason)
	return res, nil
}
