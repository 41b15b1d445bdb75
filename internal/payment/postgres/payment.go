package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewaypayment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
)

var errVersionMoved = errors.New("payment version moved")

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

var _ payment.RepositoryAPI = (*PaymentRepository)(nil)

func (r *PaymentRepository) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*gatewaypayment.GatewayPayment, error) {
	var p gatewaypayment.GatewayPayment
	err := r.db.WithContext(ctx).Where("gateway_payment_id = ?", gatewayPaymentID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *gatewaypayment.GatewayPayment) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "gateway_payment_id"}}, DoNothing: true}).
		Create(p)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PaymentRepository) UpdateVersioned(ctx context.Context, p *gatewaypayment.GatewayPayment, expectedVersion int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&gatewaypayment.GatewayPayment{}).
		Where("gateway_payment_id = ? AND version = ?", p.GatewayPaymentID, expectedVersion).
		Updates(updateColumns(p))
	return result.RowsAffected == 1, result.Error
}

func (r *PaymentRepository) HasCapturedPayment(ctx context.Context, gatewayOrderID, excludePaymentID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&gatewaypayment.GatewayPayment{}).
		Where("gateway_order_id = ? AND gateway_payment_id <> ? AND status IN ?", gatewayOrderID, excludePaymentID,
			[]string{string(payment.StatusCaptured), string(payment.StatusRefunded)}).
		Count(&count).Error
	return count > 0, err
}

func (r *PaymentRepository) ListByGatewayOrderID(ctx context.Context, gatewayOrderID string) ([]*gatewaypayment.GatewayPayment, error) {
	var payments []*gatewaypayment.GatewayPayment
	err := r.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) List(ctx context.Context, filter payment.ListFilter) ([]*gatewaypayment.GatewayPayment, error) {
	query := r.db.WithContext(ctx).Model(&gatewaypayment.GatewayPayment{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.GatewayOrderID != "" {
		query = query.Where("gateway_order_id = ?", filter.GatewayOrderID)
	}

	var payments []*gatewaypayment.GatewayPayment
	err := query.Order("created_at DESC").Order("id DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) GetRefund(ctx context.Context, gatewayRefundID string) (*gatewaypayment.GatewayRefund, error) {
	var refund gatewaypayment.GatewayRefund
	err := r.db.WithContext(ctx).Where("gateway_refund_id = ?", gatewayRefundID).First(&refund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refund, nil
}

func (r *PaymentRepository) ApplyRefund(ctx context.Context, refund *gatewaypayment.GatewayRefund, p *gatewaypayment.GatewayPayment, expectedVersion int) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "gateway_refund_id"}}, DoNothing: true}).Create(refund)
		if inserted.Error != nil {
			return inserted.Error
		}
		if inserted.RowsAffected == 0 {
			return payment.ErrDuplicateRefund
		}

		updated := tx.Model(&gatewaypayment.GatewayPayment{}).
			Where("gateway_payment_id = ? AND version = ?", p.GatewayPaymentID, expectedVersion).
			Updates(updateColumns(p))
		if updated.Error != nil {
			return updated.Error
		}
		if updated.RowsAffected == 0 {
			return errVersionMoved
		}
		return nil
	})
	if errors.Is(err, errVersionMoved) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// updateColumns uses a map so that zero values and NULLs are written too.
func updateColumns(p *gatewaypayment.GatewayPayment) map[string]interface{} {
	p.UpdatedAt = time.Now().UTC()
	return map[string]interface{}{
		"local_order_ref":   p.LocalOrderRef,
		"amount":            p.Amount,
		"amount_refunded":   p.AmountRefunded,
		"currency":          p.Currency,
		"status":            p.Status,
		"method":            p.Method,
		"bank":              p.Bank,
		"wallet":            p.Wallet,
		"vpa":               p.VPA,
		"card_id":           p.CardID,
		"error_code":        p.ErrorCode,
		"error_description": p.ErrorDescription,
		"notes":             p.Notes,
		"version":           p.Version,
		"captured_at":       p.CapturedAt,
		"updated_at":        p.UpdatedAt,
	}
}
