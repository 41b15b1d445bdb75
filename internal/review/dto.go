package review

import (
	"encoding/json"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/common/validation"
)

// RecordInput describes a conflict detected by the reconciliation engine.
type RecordInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	LocalStatus      string
	ReportedStatus   string
	Source           string
	Reason           string
	Payload          []byte
}

func (in RecordInput) Validate() error {
	v := validation.NewValidator()
	v.Field("gateway_payment_id", in.GatewayPaymentID).Required()
	v.Field("local_status", in.LocalStatus).Required()
	v.Field("reported_status", in.ReportedStatus).Required()
	v.Field("source", in.Source).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ResolveDTO struct {
	Resolution string `json:"resolution"`
}

func (dto ResolveDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("resolution", dto.Resolution).Required().MaxLength(1000)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ListFilter struct {
	Status         string
	GatewayOrderID string
	Limit          int
	Offset         int
}

func (f *ListFilter) Normalize() error {
	switch Status(f.Status) {
	case "", StatusOpen, StatusResolved:
	default:
		return internal.NewValidationFieldError("status", "status must be open or resolved", internal.ErrCodeValidationFailed)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}

type ConflictResponse struct {
	ID               int64           `json:"id"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id"`
	LocalStatus      string          `json:"local_status"`
	ReportedStatus   string          `json:"reported_status"`
	Source           string          `json:"source"`
	Reason           string          `json:"reason"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	Status           string          `json:"status"`
	Resolution       *string         `json:"resolution,omitempty"`
	ResolvedBy       *int64          `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type ConflictsResponse struct {
	Conflicts []ConflictResponse `json:"conflicts"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}
