package payment

import (
	"time"

	"gorm.io/datatypes"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/common/money"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewaypayment"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusAuthorized Status = "authorized"
	StatusCaptured   Status = "captured"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

// Decision is the outcome of comparing a reported status with the recorded one.
type Decision int

const (
	DecisionApply Decision = iota
	DecisionIgnore
	DecisionConflict
)

func (d Decision) String() string {
	switch d {
	case DecisionApply:
		return "apply"
	case DecisionIgnore:
		return "ignore"
	default:
		return "conflict"
	}
}

var forward = map[Status][]Status{
	StatusCreated:    {StatusAuthorized, StatusCaptured, StatusFailed},
	StatusAuthorized: {StatusCaptured, StatusFailed},
	StatusCaptured:   {StatusRefunded},
}

// rank orders the success path. failed sits outside it.
var rank = map[Status]int{
	StatusCreated:    0,
	StatusAuthorized: 1,
	StatusCaptured:   2,
	StatusRefunded:   3,
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusAuthorized, StatusCaptured, StatusRefunded, StatusFailed:
		return true
	}
	return false
}

// IsCaptured is true for statuses in which money has been taken.
func (s Status) IsCaptured() bool {
	return s == StatusCaptured || s == StatusRefunded
}

// Decide applies forward moves, ignores repeated or older reports and flags
// everything else. failed is absorbing: only a stale "created" is ignored.
func Decide(current, reported Status) Decision {
	if current == reported {
		return DecisionIgnore
	}
	for _, next := range forward[current] {
		if next == reported {
			return DecisionApply
		}
	}
	if reported == StatusCreated {
		return DecisionIgnore
	}
	if current == StatusFailed || reported == StatusFailed {
		return DecisionConflict
	}
	if rank[reported] < rank[current] {
		return DecisionIgnore
	}
	return DecisionConflict
}

type GatewayPayment struct {
	ID               int64
	GatewayPaymentID string
	GatewayOrderID   string
	LocalOrderRef    *string
	Amount           int64
	AmountRefunded   int64
	Currency         string
	Status           Status
	Method           *string
	Bank             *string
	Wallet           *string
	VPA              *string
	CardID           *string
	ErrorCode        *string
	ErrorDescription *string
	Notes            map[string]string
	Version          int
	CapturedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p *GatewayPayment) Refundable() int64 {
	if p.Status != StatusCaptured {
		return 0
	}
	return p.Amount - p.AmountRefunded
}

func (p *GatewayPayment) clone() *GatewayPayment {
	c := *p
	if p.Notes != nil {
		c.Notes = make(map[string]string, len(p.Notes))
		for k, v := range p.Notes {
			c.Notes[k] = v
		}
	}
	return &c
}

func (p *GatewayPayment) ToResponse() PaymentResponse {
	return PaymentResponse{
		ID:               p.ID,
		GatewayPaymentID: p.GatewayPaymentID,
		GatewayOrderID:   p.GatewayOrderID,
		LocalOrderRef:    p.LocalOrderRef,
		Amount:           p.Amount,
		AmountDisplay:    money.Format(p.Currency, p.Amount),
		AmountRefunded:   p.AmountRefunded,
		Currency:         p.Currency,
		Status:           string(p.Status),
		Method:           p.Method,
		Bank:             p.Bank,
		Wallet:           p.Wallet,
		VPA:              p.VPA,
		ErrorCode:        p.ErrorCode,
		ErrorDescription: p.ErrorDescription,
		CapturedAt:       p.CapturedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (p *GatewayPayment) ToDataModel() *gatewaypayment.GatewayPayment {
	return &gatewaypayment.GatewayPayment{
		ID:               p.ID,
		GatewayPaymentID: p.GatewayPaymentID,
		GatewayOrderID:   p.GatewayOrderID,
		LocalOrderRef:    p.LocalOrderRef,
		Amount:           p.Amount,
		AmountRefunded:   p.AmountRefunded,
		Currency:         p.Currency,
		Status:           string(p.Status),
		Method:           p.Method,
		Bank:             p.Bank,
		Wallet:           p.Wallet,
		VPA:              p.VPA,
		CardID:           p.CardID,
		ErrorCode:        p.ErrorCode,
		ErrorDescription: p.ErrorDescription,
		Notes:            notesToJSON(p.Notes),
		Version:          p.Version,
		CapturedAt:       p.CapturedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func FromDataModel(m *gatewaypayment.GatewayPayment) *GatewayPayment {
	if m == nil {
		return nil
	}
	return &GatewayPayment{
		ID:               m.ID,
		GatewayPaymentID: m.GatewayPaymentID,
		GatewayOrderID:   m.GatewayOrderID,
		LocalOrderRef:    m.LocalOrderRef,
		Amount:           m.Amount,
		AmountRefunded:   m.AmountRefunded,
		Currency:         m.Currency,
		Status:           Status(m.Status),
		Method:           m.Method,
		Bank:             m.Bank,
		Wallet:           m.Wallet,
		VPA:              m.VPA,
		CardID:           m.CardID,
		ErrorCode:        m.ErrorCode,
		ErrorDescription: m.ErrorDescription,
		Notes:            notesFromJSON(m.Notes),
		Version:          m.Version,
		CapturedAt:       m.CapturedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func notesToJSON(notes map[string]string) datatypes.JSONMap {
	if len(notes) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(notes))
	for k, v := range notes {
		out[k] = v
	}
	return out
}

func notesFromJSON(m datatypes.JSONMap) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
