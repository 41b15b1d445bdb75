package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewayorder"
	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

var _ order.RepositoryAPI = (*OrderRepository)(nil)

func (r *OrderRepository) Create(ctx context.Context, o *gatewayorder.GatewayOrder) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *OrderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*gatewayorder.GatewayOrder, error) {
	var o gatewayorder.GatewayOrder
	err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) AttachLocalOrder(ctx context.Context, gatewayOrderID, localOrderRef string, statuses []string) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}
	result := r.db.WithContext(ctx).
		Model(&gatewayorder.GatewayOrder{}).
		Where("gateway_order_id = ? AND local_order_ref IS NULL AND status IN ?", gatewayOrderID, statuses).
		Updates(map[string]interface{}{
			"local_order_ref": localOrderRef,
			"updated_at":      r.db.NowFunc(),
		})
	return result.RowsAffected == 1, result.Error
}

func (r *OrderRepository) MarkPaid(ctx context.Context, gatewayOrderID string, from []string, linked bool) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	refCondition := "local_order_ref IS NULL"
	if linked {
		refCondition = "local_order_ref IS NOT NULL"
	}
	result := r.db.WithContext(ctx).
		Model(&gatewayorder.GatewayOrder{}).
		Where("gateway_order_id = ? AND status IN ? AND "+refCondition, gatewayOrderID, from).
		Updates(map[string]interface{}{
			"status":     "paid",
			"updated_at": r.db.NowFunc(),
		})
	return result.RowsAffected == 1, result.Error
}

func (r *OrderRepository) TransitionStatus(ctx context.Context, gatewayOrderID string, from []string, to string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	result := r.db.WithContext(ctx).
		Model(&gatewayorder.GatewayOrder{}).
		Where("gateway_order_id = ? AND status IN ?", gatewayOrderID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": r.db.NowFunc(),
		})
	return result.RowsAffected == 1, result.Error
}

func (r *OrderRepository) IncrementAttempts(ctx context.Context, gatewayOrderID string) error {
	return r.db.WithContext(ctx).
		Model(&gatewayorder.GatewayOrder{}).
		Where("gateway_order_id = ?", gatewayOrderID).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1)).Error
}

func (r *OrderRepository) List(ctx context.Context, filter order.ListFilter) ([]*gatewayorder.GatewayOrder, error) {
	query := r.db.WithContext(ctx).Model(&gatewayorder.GatewayOrder{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.LocalOrderRef != "" {
		query = query.Where("local_order_ref = ?", filter.LocalOrderRef)
	}

	var orders []*gatewayorder.GatewayOrder
	err := query.Order("created_at DESC").Order("id DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) ListStale(ctx context.Context, statuses []string, updatedBefore time.Time, limit int) ([]*gatewayorder.GatewayOrder, error) {
	var orders []*gatewayorder.GatewayOrder
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
