package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/reconciliation"
	"github.com/frahmantamala/razorpay-reconciliation/internal/review"
)

type ConflictRepository struct {
	db *gorm.DB
}

func NewConflictRepository(db *gorm.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

var _ review.RepositoryAPI = (*ConflictRepository)(nil)

func (r *ConflictRepository) Create(ctx context.Context, c *reconciliation.StateConflict) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *ConflictRepository) GetByID(ctx context.Context, id int64) (*reconciliation.StateConflict, error) {
	var c reconciliation.StateConflict
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConflictRepository) FindOpen(ctx context.Context, gatewayPaymentID, localStatus, reportedStatus string) (*reconciliation.StateConflict, error) {
	var c reconciliation.StateConflict
	err := r.db.WithContext(ctx).
		Where("gateway_payment_id = ? AND local_status = ? AND reported_status = ? AND status = ?",
			gatewayPaymentID, localStatus, reportedStatus, string(review.StatusOpen)).
		Order("id ASC").
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConflictRepository) List(ctx context.Context, filter review.ListFilter) ([]*reconciliation.StateConflict, error) {
	query := r.db.WithContext(ctx).Model(&reconciliation.StateConflict{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.GatewayOrderID != "" {
		query = query.Where("gateway_order_id = ?", filter.GatewayOrderID)
	}

	var conflicts []*reconciliation.StateConflict
	err := query.Order("created_at DESC").Order("id DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&conflicts).Error
	return conflicts, err
}

func (r *ConflictRepository) Resolve(ctx context.Context, id int64, resolution string, resolvedBy int64, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&reconciliation.StateConflict{}).
		Where("id = ? AND status = ?", id, string(review.StatusOpen)).
		Updates(map[string]interface{}{
			"status":      string(review.StatusResolved),
			"resolution":  resolution,
			"resolved_by": resolvedBy,
			"resolved_at": at,
			"updated_at":  r.db.NowFunc(),
		})
	return result.RowsAffected == 1, result.Error
}
