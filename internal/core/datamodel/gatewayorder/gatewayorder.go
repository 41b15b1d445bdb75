package gatewayorder

import (
	"time"

	"gorm.io/datatypes"
)

type GatewayOrder struct {
	ID             int64             `gorm:"primaryKey"`
	GatewayOrderID string            `gorm:"column:gateway_order_id;uniqueIndex;not null"`
	LocalOrderRef  *string           `gorm:"column:local_order_ref;index"`
	Amount         int64             `gorm:"column:amount;not null"`
	Currency       string            `gorm:"column:currency;size:3;not null"`
	Receipt        *string           `gorm:"column:receipt"`
	Notes          datatypes.JSONMap `gorm:"column:notes"`
	Status         string            `gorm:"column:status;not null;default:created;index"`
	Attempts       int               `gorm:"column:attempts;not null;default:0"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (GatewayOrder) TableName() string {
	return "gateway_orders"
}
