package checkout

import (
	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/common/validation"
	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
)

type Customer struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// StartCheckoutDTO is the platform's request to open a checkout for one of
// its orders. Amount is in the smallest currency unit.
type StartCheckoutDTO struct {
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Receipt       *string           `json:"receipt,omitempty"`
	Notes         map[string]string `json:"notes,omitempty"`
	LocalOrderRef string            `json:"local_order_ref"`
	Description   string            `json:"description,omitempty"`
	Customer      Customer          `json:"customer"`
}

func (dto StartCheckoutDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("local_order_ref", dto.LocalOrderRef).MaxLength(64)
	v.Field("description", dto.Description).MaxLength(255)
	v.Field("customer.name", dto.Customer.Name).MaxLength(120)
	v.Field("customer.email", dto.Customer.Email).MaxLength(254)
	v.Field("customer.contact", dto.Customer.Contact).MaxLength(20)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

func (dto StartCheckoutDTO) orderDTO() order.CreateOrderDTO {
	return order.CreateOrderDTO{
		Amount:   dto.Amount,
		Currency: dto.Currency,
		Receipt:  dto.Receipt,
		Notes:    dto.Notes,
	}
}

type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type Theme struct {
	Color string `json:"color,omitempty"`
}

// Handoff carries everything the browser needs to open the provider's
// checkout for an order.
type Handoff struct {
	OrderID       string            `json:"order_id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	KeyID         string            `json:"key_id"`
	Name          string            `json:"name,omitempty"`
	Description   string            `json:"description,omitempty"`
	Image         string            `json:"image,omitempty"`
	CallbackURL   string            `json:"callback_url,omitempty"`
	Prefill       Prefill           `json:"prefill"`
	Theme         Theme             `json:"theme"`
	Notes         map[string]string `json:"notes,omitempty"`
	LocalOrderRef string            `json:"local_order_ref,omitempty"`
}

type AttachDTO struct {
	LocalOrderRef string `json:"local_order_ref"`
}

// CallbackDTO is the signed form the provider's checkout posts on success.
type CallbackDTO struct {
	GatewayPaymentID string `json:"razorpay_payment_id"`
	GatewayOrderID   string `json:"razorpay_order_id"`
	Signature        string `json:"razorpay_signature"`
}

func (dto CallbackDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("razorpay_payment_id", dto.GatewayPaymentID).Required().GatewayID("pay")
	v.Field("razorpay_order_id", dto.GatewayOrderID).Required().GatewayID("order")
	v.Field("razorpay_signature", dto.Signature).Required().MaxLength(128)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// FailureDTO is the unsigned error form the checkout posts when a payment
// attempt fails.
type FailureDTO struct {
	Code             string `json:"code"`
	Description      string `json:"description"`
	Source           string `json:"source"`
	Step             string `json:"step"`
	Reason           string `json:"reason"`
	GatewayOrderID   string `json:"order_id"`
	GatewayPaymentID string `json:"payment_id"`
}

func (dto FailureDTO) Validate() error {
	if dto.Code == "" && dto.GatewayOrderID == "" {
		return internal.ErrInvalidPayload.WithMessage("failure callback carries no error")
	}
	return nil
}

type CallbackResult struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	LocalOrderRef    string `json:"local_order_ref,omitempty"`
	OrderStatus      string `json:"order_status"`
	PaymentStatus    string `json:"payment_status"`
	Duplicate        bool   `json:"duplicate"`
}

type FailureResult struct {
	GatewayOrderID string `json:"gateway_order_id,omitempty"`
	LocalOrderRef  string `json:"local_order_ref,omitempty"`
	Code           string `json:"code"`
	Description    string `json:"description"`
	Reason         string `json:"reason,omitempty"`
}
