package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/common/money"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewaypayment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/events"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
)

// maxCASAttempts bounds the read-compare-write loop under contention.
const maxCASAttempts = 5

// ErrDuplicateRefund is returned by the repository when the refund id is
// already recorded.
var ErrDuplicateRefund = errors.New("refund already recorded")

type RepositoryAPI interface {
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*gatewaypayment.GatewayPayment, error)
	// Create inserts the payment; false means the payment id already exists.
	Create(ctx context.Context, p *gatewaypayment.GatewayPayment) (bool, error)
	// UpdateVersioned writes p only if the stored version still equals expectedVersion.
	UpdateVersioned(ctx context.Context, p *gatewaypayment.GatewayPayment, expectedVersion int) (bool, error)
	HasCapturedPayment(ctx context.Context, gatewayOrderID, excludePaymentID string) (bool, error)
	ListByGatewayOrderID(ctx context.Context, gatewayOrderID string) ([]*gatewaypayment.GatewayPayment, error)
	List(ctx context.Context, filter ListFilter) ([]*gatewaypayment.GatewayPayment, error)
	GetRefund(ctx context.Context, gatewayRefundID string) (*gatewaypayment.GatewayRefund, error)
	// ApplyRefund stores the refund row and the versioned payment update atomically.
	ApplyRefund(ctx context.Context, refund *gatewaypayment.GatewayRefund, p *gatewaypayment.GatewayPayment, expectedVersion int) (bool, error)
}

type RefundGatewayAPI interface {
	RefundPayment(ctx context.Context, gatewayPaymentID string, req razorpay.RefundRequest) (*razorpay.Refund, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Service struct {
	repo      RepositoryAPI
	gateway   RefundGatewayAPI
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, gateway RefundGatewayAPI, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Find(ctx context.Context, gatewayPaymentID string) (*GatewayPayment, error) {
	m, err := s.repo.GetByGatewayPaymentID(ctx, gatewayPaymentID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load gateway payment", err)
	}
	return FromDataModel(m), nil
}

func (s *Service) Get(ctx context.Context, gatewayPaymentID string) (*GatewayPayment, error) {
	p, err := s.Find(ctx, gatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, internal.ErrPaymentNotFound
	}
	return p, nil
}

func (s *Service) ListByOrder(ctx context.Context, gatewayOrderID string) ([]*GatewayPayment, error) {
	models, err := s.repo.ListByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, internal.NewInternalError("failed to list order payments", err)
	}
	return fromDataModels(models), nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*GatewayPayment, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	models, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internal.NewInternalError("failed to list payments", err)
	}
	return fromDataModels(models), nil
}

// Upsert creates the payment or merges a newer report into it. Status only
// moves forward; stale reports are ignored and contradictory ones come back
// as ErrStateConflict with ConflictDetails attached.
func (s *Service) Upsert(ctx context.Context, incoming *GatewayPayment) (*UpsertResult, error) {
	if incoming.GatewayPaymentID == "" || incoming.GatewayOrderID == "" {
		return nil, internal.NewValidationError("payment and order identifiers are required", internal.ErrCodeValidationFailed)
	}
	if !incoming.Status.Valid() {
		return nil, internal.NewValidationError(fmt.Sprintf("unknown payment status %q", incoming.Status), internal.ErrCodeValidationFailed)
	}

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		existingModel, err := s.repo.GetByGatewayPaymentID(ctx, incoming.GatewayPaymentID)
		if err != nil {
			return nil, internal.NewInternalError("failed to load gateway payment", err)
		}

		if existingModel == nil {
			result, done, err := s.insert(ctx, incoming)
			if done || err != nil {
				return result, err
			}
			continue
		}

		existing := FromDataModel(existingModel)
		if existing.GatewayOrderID != incoming.GatewayOrderID {
			s.logger.Warn("payment reported against a different order",
				"gateway_payment_id", incoming.GatewayPaymentID,
				"recorded_order_id", existing.GatewayOrderID,
				"reported_order_id", incoming.GatewayOrderID)
			return nil, internal.ErrOrderMismatch
		}

		decision := Decide(existing.Status, incoming.Status)
		if decision == DecisionConflict {
			return &UpsertResult{Payment: existing, PreviousStatus: existing.Status},
				s.conflict(existing, incoming.Status, "reported status cannot follow the recorded status")
		}
		if decision == DecisionApply && incoming.Status.IsCaptured() {
			if err := s.ensureSingleCapture(ctx, existing, incoming.Status); err != nil {
				return &UpsertResult{Payment: existing, PreviousStatus: existing.Status}, err
			}
		}

		merged, changed := merge(existing, incoming, decision == DecisionApply, s.now())
		if !changed {
			return &UpsertResult{Payment: existing, PreviousStatus: existing.Status}, nil
		}

		merged.Version = existing.Version + 1
		model := merged.ToDataModel()
		ok, err := s.repo.UpdateVersioned(ctx, model, existing.Version)
		if err != nil {
			return nil, internal.NewInternalError("failed to update gateway payment", err)
		}
		if !ok {
			s.logger.Debug("payment version moved, retrying", "gateway_payment_id", incoming.GatewayPaymentID, "attempt", attempt)
			continue
		}

		stored := FromDataModel(model)
		if stored.Status != existing.Status {
			s.logger.Info("payment status changed",
				"gateway_payment_id", stored.GatewayPaymentID,
				"from", existing.Status,
				"to", stored.Status)
		}
		return &UpsertResult{
			Payment:        stored,
			PreviousStatus: existing.Status,
			StatusChanged:  stored.Status != existing.Status,
		}, nil
	}

	return nil, internal.ErrConcurrentUpdate
}

// insert returns done=false when another writer created the row first.
func (s *Service) insert(ctx context.Context, incoming *GatewayPayment) (*UpsertResult, bool, error) {
	fresh := incoming.clone()
	fresh.ID = 0
	fresh.Version = 1
	if fresh.Status.IsCaptured() {
		if err := s.ensureSingleCapture(ctx, fresh, fresh.Status); err != nil {
			return nil, true, err
		}
		now := s.now().UTC()
		fresh.CapturedAt = &now
	}

	model := fresh.ToDataModel()
	created, err := s.repo.Create(ctx, model)
	if err != nil {
		return nil, true, internal.NewInternalError("failed to create gateway payment", err)
	}
	if !created {
		return nil, false, nil
	}

	s.logger.Info("payment recorded",
		"gateway_payment_id", model.GatewayPaymentID,
		"gateway_order_id", model.GatewayOrderID,
		"status", model.Status)
	return &UpsertResult{Payment: FromDataModel(model), Created: true, StatusChanged: true}, true, nil
}

func (s *Service) ensureSingleCapture(ctx context.Context, p *GatewayPayment, reported Status) error {
	taken, err := s.repo.HasCapturedPayment(ctx, p.GatewayOrderID, p.GatewayPaymentID)
	if err != nil {
		return internal.NewInternalError("failed to check captured payments", err)
	}
	if taken {
		return s.conflict(p, reported, "order already has a captured payment")
	}
	return nil
}

func (s *Service) conflict(p *GatewayPayment, reported Status, reason string) error {
	s.logger.Warn("payment state conflict",
		"gateway_payment_id", p.GatewayPaymentID,
		"gateway_order_id", p.GatewayOrderID,
		"local_status", p.Status,
		"reported_status", reported,
		"reason", reason)
	return internal.ErrStateConflict.WithDetails(ConflictDetails{
		GatewayOrderID:   p.GatewayOrderID,
		GatewayPaymentID: p.GatewayPaymentID,
		LocalStatus:      p.Status,
		ReportedStatus:   reported,
		Reason:           reason,
	})
}

// merge fills attributes the stored record lacks and, when apply is set,
// takes the reported status.
func merge(existing, incoming *GatewayPayment, apply bool, now time.Time) (*GatewayPayment, bool) {
	out := existing.clone()
	changed := false

	fill := func(dst **string, src *string) {
		if src != nil && *src != "" && (*dst == nil || **dst != *src) {
			v := *src
			*dst = &v
			changed = true
		}
	}
	fill(&out.Method, incoming.Method)
	fill(&out.Bank, incoming.Bank)
	fill(&out.Wallet, incoming.Wallet)
	fill(&out.VPA, incoming.VPA)
	fill(&out.CardID, incoming.CardID)
	if out.LocalOrderRef == nil {
		fill(&out.LocalOrderRef, incoming.LocalOrderRef)
	}

	if out.Amount == 0 && incoming.Amount > 0 {
		out.Amount = incoming.Amount
		changed = true
	}
	if out.Currency == "" && incoming.Currency != "" {
		out.Currency = incoming.Currency
		changed = true
	}
	for k, v := range incoming.Notes {
		if out.Notes == nil {
			out.Notes = make(map[string]string)
		}
		if out.Notes[k] != v {
			out.Notes[k] = v
			changed = true
		}
	}

	if apply {
		out.Status = incoming.Status
		changed = true
		if incoming.Status == StatusFailed {
			fill(&out.ErrorCode, incoming.ErrorCode)
			fill(&out.ErrorDescription, incoming.ErrorDescription)
		}
		if incoming.Status.IsCaptured() && out.CapturedAt == nil {
			t := now.UTC()
			out.CapturedAt = &t
		}
	}
	return out, changed
}

// RecordRefund adds a provider refund to the payment. A refund id that was
// already recorded leaves the payment untouched.
func (s *Service) RecordRefund(ctx context.Context, in RefundInput) (*GatewayPayment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		existingRefund, err := s.repo.GetRefund(ctx, in.GatewayRefundID)
		if err != nil {
			return nil, internal.NewInternalError("failed to load refund", err)
		}
		current, err := s.Get(ctx, in.GatewayPaymentID)
		if err != nil {
			return nil, err
		}
		if existingRefund != nil {
			s.logger.Info("refund already recorded", "gateway_refund_id", in.GatewayRefundID)
			return current, nil
		}

		if current.Status != StatusCaptured {
			return nil, internal.ErrNotCaptured.WithDetails(ConflictDetails{
				GatewayOrderID:   current.GatewayOrderID,
				GatewayPaymentID: current.GatewayPaymentID,
				LocalStatus:      current.Status,
				ReportedStatus:   StatusRefunded,
				Reason:           "refund for a payment that is not captured",
			})
		}
		if current.AmountRefunded+in.Amount > current.Amount {
			return nil, internal.ErrRefundExceedsCaptured.WithMessage(
				"refund of %s exceeds the refundable %s", money.Format(current.Currency, in.Amount), money.Format(current.Currency, current.Refundable()))
		}

		updated := current.clone()
		updated.AmountRefunded += in.Amount
		if updated.AmountRefunded == updated.Amount {
			updated.Status = StatusRefunded
		}
		updated.Version = current.Version + 1

		status := in.Status
		if status == "" {
			status = "processed"
		}
		refund := &gatewaypayment.GatewayRefund{
			GatewayRefundID:  in.GatewayRefundID,
			GatewayPaymentID: in.GatewayPaymentID,
			Amount:           in.Amount,
			Status:           status,
		}

		model := updated.ToDataModel()
		ok, err := s.repo.ApplyRefund(ctx, refund, model, current.Version)
		if errors.Is(err, ErrDuplicateRefund) {
			continue
		}
		if err != nil {
			return nil, internal.NewInternalError("failed to record refund", err)
		}
		if !ok {
			continue
		}

		stored := FromDataModel(model)
		s.logger.Info("refund recorded",
			"gateway_payment_id", stored.GatewayPaymentID,
			"gateway_refund_id", in.GatewayRefundID,
			"amount", in.Amount,
			"amount_refunded", stored.AmountRefunded,
			"status", stored.Status)
		s.publish(ctx, events.NewPaymentRefundedEvent(stored.GatewayPaymentID, in.GatewayRefundID, in.Amount, stored.AmountRefunded, stored.Status == StatusRefunded))
		return stored, nil
	}

	return nil, internal.ErrConcurrentUpdate
}

// Refund asks the provider to refund and records the result. amount nil
// refunds whatever is still refundable.
func (s *Service) Refund(ctx context.Context, gatewayPaymentID string, dto RefundRequestDTO) (*GatewayPayment, *razorpay.Refund, error) {
	if err := dto.Validate(); err != nil {
		return nil, nil, err
	}

	current, err := s.Get(ctx, gatewayPaymentID)
	if err != nil {
		return nil, nil, err
	}
	if current.Status != StatusCaptured {
		return nil, nil, internal.ErrNotCaptured
	}

	amount := current.Refundable()
	if dto.Amount != nil {
		amount, err = money.ToMinor(current.Currency, *dto.Amount)
		if err != nil {
			return nil, nil, err
		}
	}
	if amount <= 0 {
		return nil, nil, internal.ErrInvalidAmount
	}
	if amount > current.Refundable() {
		return nil, nil, internal.ErrRefundExceedsCaptured
	}

	refund, err := s.gateway.RefundPayment(ctx, gatewayPaymentID, razorpay.RefundRequest{
		Amount: amount,
		Speed:  dto.Speed,
		Notes:  razorpay.Notes(dto.Notes),
	})
	if err != nil {
		return nil, nil, err
	}

	recorded := refund.Amount
	if recorded == 0 {
		recorded = amount
	}
	updated, err := s.RecordRefund(ctx, RefundInput{
		GatewayPaymentID: gatewayPaymentID,
		GatewayRefundID:  refund.ID,
		Amount:           recorded,
		Status:           refund.Status,
	})
	if err != nil {
		s.logger.Error("provider refunded but local record failed",
			"gateway_payment_id", gatewayPaymentID,
			"gateway_refund_id", refund.ID,
			"error", err)
		return nil, refund, err
	}
	return updated, refund, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish payment event", "event_type", event.EventType(), "error", err)
	}
}

func fromDataModels(models []*gatewaypayment.GatewayPayment) []*GatewayPayment {
	out := make([]*GatewayPayment, 0, len(models))
	for _, m := range models {
		out = append(out, FromDataModel(m))
	}
	return out
}
