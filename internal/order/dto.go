package order

import (
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/common/validation"
)

type CreateOrderDTO struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  *string           `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

func (dto CreateOrderDTO) Validate() error {
	if err := validation.ValidateReceipt(dto.Receipt); err != nil {
		return err
	}
	if err := validation.ValidateNotes(dto.Notes); err != nil {
		return err
	}
	return nil
}

type AttachLocalOrderDTO struct {
	LocalOrderRef string `json:"local_order_ref"`
}

func (dto AttachLocalOrderDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("local_order_ref", dto.LocalOrderRef).Required().MaxLength(64)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ListFilter struct {
	Status        string
	LocalOrderRef string
	Limit         int
	Offset        int
}

func (f *ListFilter) Normalize() error {
	if f.Status != "" && !Status(f.Status).Valid() {
		return internal.NewValidationFieldError("status", "unknown order status", internal.ErrCodeValidationFailed)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}

type OrderResponse struct {
	ID             int64             `json:"id"`
	GatewayOrderID string            `json:"gateway_order_id"`
	LocalOrderRef  *string           `json:"local_order_ref"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        *string           `json:"receipt,omitempty"`
	Notes          map[string]string `json:"notes,omitempty"`
	Status         string            `json:"status"`
	Attempts       int               `json:"attempts"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type OrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
