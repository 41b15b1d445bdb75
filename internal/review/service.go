package review

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/reconciliation"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/events"
)

type RepositoryAPI interface {
	Create(ctx context.Context, c *reconciliation.StateConflict) error
	GetByID(ctx context.Context, id int64) (*reconciliation.StateConflict, error)
	// FindOpen returns the open conflict for the same payment and status pair, if any.
	FindOpen(ctx context.Context, gatewayPaymentID, localStatus, reportedStatus string) (*reconciliation.StateConflict, error)
	List(ctx context.Context, filter ListFilter) ([]*reconciliation.StateConflict, error)
	// Resolve closes the conflict only while it is still open.
	Resolve(ctx context.Context, id int64, resolution string, resolvedBy int64, at time.Time) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Service struct {
	repo      RepositoryAPI
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Record files a conflict for review. A conflict that is already open for the
// same payment and status pair is returned instead of a new one, so repeated
// deliveries and sync passes do not flood the queue.
func (s *Service) Record(ctx context.Context, in RecordInput) (*Conflict, bool, error) {
	if err := in.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindOpen(ctx, in.GatewayPaymentID, in.LocalStatus, in.ReportedStatus)
	if err != nil {
		return nil, false, internal.NewInternalError("failed to look up open conflicts", err)
	}
	if existing != nil {
		s.logger.Debug("conflict already open", "conflict_id", existing.ID, "gateway_payment_id", in.GatewayPaymentID)
		return FromDataModel(existing), false, nil
	}

	model := &reconciliation.StateConflict{
		GatewayOrderID:   in.GatewayOrderID,
		GatewayPaymentID: in.GatewayPaymentID,
		LocalStatus:      in.LocalStatus,
		ReportedStatus:   in.ReportedStatus,
		Source:           in.Source,
		Reason:           in.Reason,
		Status:           string(StatusOpen),
	}
	if len(in.Payload) > 0 {
		model.Payload = datatypes.JSON(in.Payload)
	}
	if err := s.repo.Create(ctx, model); err != nil {
		return nil, false, internal.NewInternalError("failed to record state conflict", err)
	}

	s.logger.Warn("state conflict queued for review",
		"conflict_id", model.ID,
		"gateway_order_id", model.GatewayOrderID,
		"gateway_payment_id", model.GatewayPaymentID,
		"local_status", model.LocalStatus,
		"reported_status", model.ReportedStatus,
		"source", model.Source)

	if s.publisher != nil {
		event := events.NewStateConflictEvent(model.ID, model.GatewayOrderID, model.GatewayPaymentID, model.LocalStatus, model.ReportedStatus, model.Source)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish conflict event", "conflict_id", model.ID, "error", err)
		}
	}
	return FromDataModel(model), true, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Conflict, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load state conflict", err)
	}
	if m == nil {
		return nil, internal.ErrConflictNotFound
	}
	return FromDataModel(m), nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Conflict, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	models, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internal.NewInternalError("failed to list state conflicts", err)
	}
	out := make([]*Conflict, 0, len(models))
	for _, m := range models {
		out = append(out, FromDataModel(m))
	}
	return out, nil
}

func (s *Service) Resolve(ctx context.Context, id int64, dto ResolveDTO, resolvedBy int64) (*Conflict, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsOpen() {
		return nil, internal.ErrConflictResolved
	}

	ok, err := s.repo.Resolve(ctx, id, dto.Resolution, resolvedBy, s.now().UTC())
	if err != nil {
		return nil, internal.NewInternalError("failed to resolve state conflict", err)
	}
	if !ok {
		return nil, internal.ErrConflictResolved
	}

	s.logger.Info("state conflict resolved", "conflict_id", id, "resolved_by", resolvedBy)
	return s.Get(ctx, id)
}
