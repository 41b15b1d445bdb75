package order

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewayorder"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
)

type RepositoryAPI interface {
	Create(ctx context.Context, order *gatewayorder.GatewayOrder) error
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*gatewayorder.GatewayOrder, error)
	// AttachLocalOrder sets local_order_ref only while it is still empty and
	// the status is one of statuses.
	AttachLocalOrder(ctx context.Context, gatewayOrderID, localOrderRef string, statuses []string) (bool, error)
	// TransitionStatus moves the order to `to` only if its current status is in from.
	TransitionStatus(ctx context.Context, gatewayOrderID string, from []string, to string) (bool, error)
	// MarkPaid moves the order to paid from one of from, only if a local
	// reference is present (linked) or absent (!linked).
	MarkPaid(ctx context.Context, gatewayOrderID string, from []string, linked bool) (bool, error)
	IncrementAttempts(ctx context.Context, gatewayOrderID string) error
	List(ctx context.Context, filter ListFilter) ([]*gatewayorder.GatewayOrder, error)
	ListStale(ctx context.Context, statuses []string, updatedBefore time.Time, limit int) ([]*gatewayorder.GatewayOrder, error)
}

type GatewayAPI interface {
	CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error)
}

type Service struct {
	repo       RepositoryAPI
	gateway    GatewayAPI
	currencies map[string]struct{}
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo RepositoryAPI, gateway GatewayAPI, acceptedCurrencies []string, logger *slog.Logger) *Service {
	currencies := make(map[string]struct{}, len(acceptedCurrencies))
	for _, c := range acceptedCurrencies {
		currencies[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &Service{
		repo:       repo,
		gateway:    gateway,
		currencies: currencies,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) AcceptsCurrency(currency string) bool {
	_, ok := s.currencies[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}

// CreateOrder registers the order with the provider and persists the
// returned identifier. Nothing is stored when the provider call fails.
func (s *Service) CreateOrder(ctx context.Context, dto CreateOrderDTO) (*GatewayOrder, error) {
	if dto.Amount <= 0 {
		return nil, internal.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(dto.Currency))
	if !s.AcceptsCurrency(currency) {
		return nil, internal.ErrUnsupportedCurrency.WithMessage("currency %q is not accepted", dto.Currency)
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	req := razorpay.OrderRequest{
		Amount:         dto.Amount,
		Currency:       currency,
		Notes:          razorpay.Notes(dto.Notes),
		PaymentCapture: true,
	}
	if dto.Receipt != nil {
		req.Receipt = *dto.Receipt
	}

	remote, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		s.logger.Error("failed to create order with provider", "amount", dto.Amount, "currency", currency, "error", err)
		return nil, err
	}

	model := &gatewayorder.GatewayOrder{
		GatewayOrderID: remote.ID,
		Amount:         dto.Amount,
		Currency:       currency,
		Receipt:        dto.Receipt,
		Notes:          notesToJSON(dto.Notes),
		Status:         string(StatusCreated),
	}
	if err := s.repo.Create(ctx, model); err != nil {
		s.logger.Error("failed to persist gateway order", "gateway_order_id", remote.ID, "error", err)
		return nil, internal.NewInternalError("failed to persist gateway order", err)
	}

	s.logger.Info("gateway order created",
		"gateway_order_id", model.GatewayOrderID,
		"amount", model.Amount,
		"currency", model.Currency)
	return FromDataModel(model), nil
}

// Attachment is the result of AttachLocalOrder.
type Attachment struct {
	Order *GatewayOrder
	// Attached is false when the same reference was already present.
	Attached bool
	// AfterPaid means the reference landed on an order that was already paid,
	// so the paid transition went out without a local order to notify.
	AfterPaid bool
}

// AttachLocalOrder binds the platform's order to a gateway order exactly once.
// Re-attaching the same reference is a no-op.
func (s *Service) AttachLocalOrder(ctx context.Context, gatewayOrderID, localOrderRef string) (*Attachment, error) {
	if err := (AttachLocalOrderDTO{LocalOrderRef: localOrderRef}).Validate(); err != nil {
		return nil, err
	}

	// Each update sees the status atomically, so exactly one of this call and
	// MarkPaid observes both the reference and the paid status.
	for attempt := 0; attempt < 2; attempt++ {
		for _, paid := range []bool{true, false} {
			attached, err := s.repo.AttachLocalOrder(ctx, gatewayOrderID, localOrderRef, statusesWhere(paid))
			if err != nil {
				return nil, internal.NewInternalError("failed to attach local order", err)
			}
			if !attached {
				continue
			}
			current, err := s.Get(ctx, gatewayOrderID)
			if err != nil {
				return nil, err
			}
			s.logger.Info("local order attached",
				"gateway_order_id", gatewayOrderID,
				"local_order_ref", localOrderRef,
				"after_paid", paid)
			return &Attachment{Order: current, Attached: true, AfterPaid: paid}, nil
		}

		current, err := s.Get(ctx, gatewayOrderID)
		if err != nil {
			return nil, err
		}
		if ref := current.LocalRef(); ref != "" {
			if ref != localOrderRef {
				s.logger.Warn("gateway order already attached",
					"gateway_order_id", gatewayOrderID,
					"existing_ref", ref,
					"requested_ref", localOrderRef)
				return nil, internal.ErrAlreadyAttached
			}
			return &Attachment{Order: current}, nil
		}
		// the order was paid between the two updates
	}
	return nil, internal.ErrConcurrentUpdate
}

func statusesWhere(paid bool) []string {
	if paid {
		return []string{string(StatusPaid)}
	}
	return []string{string(StatusCreated), string(StatusAttempted), string(StatusExpired)}
}

// Find returns nil when the order is unknown.
func (s *Service) Find(ctx context.Context, gatewayOrderID string) (*GatewayOrder, error) {
	m, err := s.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load gateway order", err)
	}
	return FromDataModel(m), nil
}

func (s *Service) Get(ctx context.Context, gatewayOrderID string) (*GatewayOrder, error) {
	o, err := s.Find(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, internal.ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) MarkAttempted(ctx context.Context, gatewayOrderID string) (bool, error) {
	return s.transition(ctx, gatewayOrderID, StatusAttempted)
}

// MarkPaid reports moved only to the single caller whose update put the order
// into paid. linked tells that caller whether a local order was attached at
// that moment; when it was not, AttachLocalOrder reports AfterPaid instead.
func (s *Service) MarkPaid(ctx context.Context, gatewayOrderID string) (moved, linked bool, err error) {
	from := SourcesFor(StatusPaid)
	for attempt := 0; attempt < 2; attempt++ {
		for _, withRef := range []bool{true, false} {
			ok, err := s.repo.MarkPaid(ctx, gatewayOrderID, from, withRef)
			if err != nil {
				return false, false, internal.NewInternalError("failed to update gateway order status", err)
			}
			if ok {
				s.logger.Info("gateway order status changed", "gateway_order_id", gatewayOrderID, "status", StatusPaid, "linked", withRef)
				return true, withRef, nil
			}
		}

		current, err := s.Find(ctx, gatewayOrderID)
		if err != nil {
			return false, false, err
		}
		if current == nil || !current.Status.CanTransitionTo(StatusPaid) {
			return false, false, nil
		}
		// a local order was attached between the two updates
	}
	return false, false, internal.ErrConcurrentUpdate
}

func (s *Service) MarkExpired(ctx context.Context, gatewayOrderID string) (bool, error) {
	return s.transition(ctx, gatewayOrderID, StatusExpired)
}

func (s *Service) RecordAttempt(ctx context.Context, gatewayOrderID string) error {
	if err := s.repo.IncrementAttempts(ctx, gatewayOrderID); err != nil {
		return internal.NewInternalError("failed to record payment attempt", err)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, gatewayOrderID string, to Status) (bool, error) {
	moved, err := s.repo.TransitionStatus(ctx, gatewayOrderID, SourcesFor(to), string(to))
	if err != nil {
		return false, internal.NewInternalError("failed to update gateway order status", err)
	}
	if moved {
		s.logger.Info("gateway order status changed", "gateway_order_id", gatewayOrderID, "status", to)
	}
	return moved, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*GatewayOrder, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	models, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internal.NewInternalError("failed to list gateway orders", err)
	}
	orders := make([]*GatewayOrder, 0, len(models))
	for _, m := range models {
		orders = append(orders, FromDataModel(m))
	}
	return orders, nil
}

// ListStale returns unpaid orders untouched for longer than olderThan.
func (s *Service) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*GatewayOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	statuses := []string{string(StatusCreated), string(StatusAttempted)}
	models, err := s.repo.ListStale(ctx, statuses, s.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, internal.NewInternalError("failed to list stale gateway orders", err)
	}
	orders := make([]*GatewayOrder, 0, len(models))
	for _, m := range models {
		orders = append(orders, FromDataModel(m))
	}
	return orders, nil
}
