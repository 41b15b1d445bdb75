package review

import (
	"encoding/json"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/reconciliation"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Conflict is a reported payment state that could not be reconciled
// automatically and waits for an operator.
type Conflict struct {
	ID               int64
	GatewayOrderID   string
	GatewayPaymentID string
	LocalStatus      string
	ReportedStatus   string
	Source           string
	Reason           string
	Payload          json.RawMessage
	Status           Status
	Resolution       *string
	ResolvedBy       *int64
	ResolvedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (c *Conflict) IsOpen() bool {
	return c.Status == StatusOpen
}

func (c *Conflict) ToResponse() ConflictResponse {
	return ConflictResponse{
		ID:               c.ID,
		GatewayOrderID:   c.GatewayOrderID,
		GatewayPaymentID: c.GatewayPaymentID,
		LocalStatus:      c.LocalStatus,
		ReportedStatus:   c.ReportedStatus,
		Source:           c.Source,
		Reason:           c.Reason,
		Payload:          c.Payload,
		Status:           string(c.Status),
		Resolution:       c.Resolution,
		ResolvedBy:       c.ResolvedBy,
		ResolvedAt:       c.ResolvedAt,
		CreatedAt:        c.CreatedAt,
	}
}

func FromDataModel(m *reconciliation.StateConflict) *Conflict {
	if m == nil {
		return nil
	}
	return &Conflict{
		ID:               m.ID,
		GatewayOrderID:   m.GatewayOrderID,
		GatewayPaymentID: m.GatewayPaymentID,
		LocalStatus:      m.LocalStatus,
		ReportedStatus:   m.ReportedStatus,
		Source:           m.Source,
		Reason:           m.Reason,
		Payload:          json.RawMessage(m.Payload),
		Status:           Status(m.Status),
		Resolution:       m.Resolution,
		ResolvedBy:       m.ResolvedBy,
		ResolvedAt:       m.ResolvedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
