package payment

import (
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/common/validation"
)

// RefundInput records a refund the provider has already accepted.
type RefundInput struct {
	GatewayPaymentID string
	GatewayRefundID  string
	Amount           int64
	Status           string
}

func (in RefundInput) Validate() error {
	if in.Amount <= 0 {
		return internal.ErrInvalidAmount
	}
	v := validation.NewValidator()
	v.Field("gateway_payment_id", in.GatewayPaymentID).Required()
	v.Field("gateway_refund_id", in.GatewayRefundID).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// RefundRequestDTO is the admin refund body. Amount is in major units
// ("150.50"); omit it to refund the remaining captured amount.
type RefundRequestDTO struct {
	Amount *string           `json:"amount,omitempty"`
	Speed  string            `json:"speed,omitempty"`
	Notes  map[string]string `json:"notes,omitempty"`
}

func (dto RefundRequestDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("speed", dto.Speed).Custom(func(value interface{}) *internal.AppError {
		s, _ := value.(string)
		if s != "" && s != "normal" && s != "optimum" {
			return internal.NewValidationFieldError("speed", "speed must be normal or optimum", internal.ErrCodeValidationFailed)
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateNotes(dto.Notes); err != nil {
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
	if f.Status != "" && !Status(f.Status).Valid() {
		return internal.NewValidationFieldError("status", "unknown payment status", internal.ErrCodeValidationFailed)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}

// UpsertResult tells the caller what an upsert actually changed.
type UpsertResult struct {
	Payment        *GatewayPayment
	PreviousStatus Status
	Created        bool
	StatusChanged  bool
}

// ConflictDetails rides on ErrStateConflict so callers can file a review entry.
type ConflictDetails struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	LocalStatus      Status `json:"local_status"`
	ReportedStatus   Status `json:"reported_status"`
	Reason           string `json:"reason"`
}

type PaymentResponse struct {
	ID               int64      `json:"id"`
	GatewayPaymentID string     `json:"gateway_payment_id"`
	GatewayOrderID   string     `json:"gateway_order_id"`
	LocalOrderRef    *string    `json:"local_order_ref"`
	Amount           int64      `json:"amount"`
	AmountDisplay    string     `json:"amount_display"`
	AmountRefunded   int64      `json:"amount_refunded"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	Method           *string    `json:"method,omitempty"`
	Bank             *string    `json:"bank,omitempty"`
	Wallet           *string    `json:"wallet,omitempty"`
	VPA              *string    `json:"vpa,omitempty"`
	ErrorCode        *string    `json:"error_code,omitempty"`
	ErrorDescription *string    `json:"error_description,omitempty"`
	CapturedAt       *time.Time `json:"captured_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type PaymentsResponse struct {
	Payments []PaymentResponse `json:"payments"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type RefundResponse struct {
	GatewayRefundID string          `json:"gateway_refund_id"`
	Amount          int64           `json:"amount"`
	Payment         PaymentResponse `json:"payment"`
}
