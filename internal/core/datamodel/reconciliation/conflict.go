package reconciliation

import (
	"time"

	"gorm.io/datatypes"
)

type StateConflict struct {
	ID               int64          `gorm:"primaryKey"`
	GatewayOrderID   string         `gorm:"column:gateway_order_id;not null;index"`
	GatewayPaymentID string         `gorm:"column:gateway_payment_id;not null;index"`
	LocalStatus      string         `gorm:"column:local_status;not null"`
	ReportedStatus   string         `gorm:"column:reported_status;not null"`
	Source           string         `gorm:"column:source;not null"`
	Reason           string         `gorm:"column:reason"`
	Payload          datatypes.JSON `gorm:"column:payload"`
	Status           string         `gorm:"column:status;not null;default:open;index"`
	Resolution       *string        `gorm:"column:resolution"`
	ResolvedBy       *int64         `gorm:"column:resolved_by"`
	ResolvedAt       *time.Time     `gorm:"column:resolved_at"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (StateConflict) TableName() string {
	return "state_conflicts"
}
