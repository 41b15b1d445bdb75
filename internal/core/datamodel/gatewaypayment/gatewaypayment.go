package gatewaypayment

import (
	"time"

	"gorm.io/datatypes"
)

type GatewayPayment struct {
	ID               int64             `gorm:"primaryKey"`
	GatewayPaymentID string            `gorm:"column:gateway_payment_id;uniqueIndex;not null"`
	GatewayOrderID   string            `gorm:"column:gateway_order_id;not null;index"`
	LocalOrderRef    *string           `gorm:"column:local_order_ref"`
	Amount           int64             `gorm:"column:amount;not null"`
	AmountRefunded   int64             `gorm:"column:amount_refunded;not null;default:0"`
	Currency         string            `gorm:"column:currency;size:3;not null"`
	Status           string            `gorm:"column:status;not null;index"`
	Method           *string           `gorm:"column:method"`
	Bank             *string           `gorm:"column:bank"`
	Wallet           *string           `gorm:"column:wallet"`
	VPA              *string           `gorm:"column:vpa"`
	CardID           *string           `gorm:"column:card_id"`
	ErrorCode        *string           `gorm:"column:error_code"`
	ErrorDescription *string           `gorm:"column:error_description"`
	Notes            datatypes.JSONMap `gorm:"column:notes"`
	Version          int               `gorm:"column:version;not null;default:1"`
	CapturedAt       *time.Time        `gorm:"column:captured_at"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (GatewayPayment) TableName() string {
	return "gateway_payments"
}

// GatewayRefund records each provider refund once, keyed by its refund id.
type GatewayRefund struct {
	ID               int64     `gorm:"primaryKey"`
	GatewayRefundID  string    `gorm:"column:gateway_refund_id;uniqueIndex;not null"`
	GatewayPaymentID string    `gorm:"column:gateway_payment_id;not null;index"`
	Amount           int64     `gorm:"column:amount;not null"`
	Status           string    `gorm:"column:status;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (GatewayRefund) TableName() string {
	return "gateway_refunds"
}
