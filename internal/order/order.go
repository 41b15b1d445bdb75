package order

import (
	"time"

	"gorm.io/datatypes"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewayorder"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusAttempted Status = "attempted"
	StatusPaid      Status = "paid"
	StatusExpired   Status = "expired"
)

// transitions lists the forward moves per status. paid is terminal; an
// expired order may still be paid by a late capture.
var transitions = map[Status][]Status{
	StatusCreated:   {StatusAttempted, StatusPaid, StatusExpired},
	StatusAttempted: {StatusPaid, StatusExpired},
	StatusExpired:   {StatusPaid},
	StatusPaid:      {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor returns every status from which to is reachable in one step.
// Used as the compare set of the conditional update.
func SourcesFor(to Status) []string {
	var from []string
	for _, s := range []Status{StatusCreated, StatusAttempted, StatusExpired, StatusPaid} {
		if s.CanTransitionTo(to) {
			from = append(from, string(s))
		}
	}
	return from
}

type GatewayOrder struct {
	ID             int64
	GatewayOrderID string
	LocalOrderRef  *string
	Amount         int64
	Currency       string
	Receipt        *string
	Notes          map[string]string
	Status         Status
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (o *GatewayOrder) IsPaid() bool {
	return o.Status == StatusPaid
}

func (o *GatewayOrder) LocalRef() string {
	if o.LocalOrderRef == nil {
		return ""
	}
	return *o.LocalOrderRef
}

func (o *GatewayOrder) ToResponse() OrderResponse {
	return OrderResponse{
		ID:             o.ID,
		GatewayOrderID: o.GatewayOrderID,
		LocalOrderRef:  o.LocalOrderRef,
		Amount:         o.Amount,
		Currency:       o.Currency,
		Receipt:        o.Receipt,
		Notes:          o.Notes,
		Status:         string(o.Status),
		Attempts:       o.Attempts,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (o *GatewayOrder) ToDataModel() *gatewayorder.GatewayOrder {
	return &gatewayorder.GatewayOrder{
		ID:             o.ID,
		GatewayOrderID: o.GatewayOrderID,
		LocalOrderRef:  o.LocalOrderRef,
		Amount:         o.Amount,
		Currency:       o.Currency,
		Receipt:        o.Receipt,
		Notes:          notesToJSON(o.Notes),
		Status:         string(o.Status),
		Attempts:       o.Attempts,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func FromDataModel(m *gatewayorder.GatewayOrder) *GatewayOrder {
	if m == nil {
		return nil
	}
	return &GatewayOrder{
		ID:             m.ID,
		GatewayOrderID: m.GatewayOrderID,
		LocalOrderRef:  m.LocalOrderRef,
		Amount:         m.Amount,
		Currency:       m.Currency,
		Receipt:        m.Receipt,
		Notes:          notesFromJSON(m.Notes),
		Status:         Status(m.Status),
		Attempts:       m.Attempts,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
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
