package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/reconciliation"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport"
)

type SyncAPI interface {
	Sync(ctx context.Context, gatewayOrderID string) (*SyncReport, error)
}

type EventHistory interface {
	ListByOrder(ctx context.Context, gatewayOrderID string, limit int) ([]reconciliation.Event, error)
}

type Handler struct {
	*transport.BaseHandler
	Engine  SyncAPI
	History EventHistory
}

func NewHandler(baseHandler *transport.BaseHandler, engine SyncAPI, history EventHistory) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Engine:      engine,
		History:     history,
	}
}

// SyncOrder handles POST /api/v1/admin/orders/{gatewayOrderID}/sync
func (h *Handler) SyncOrder(w http.ResponseWriter, r *http.Request) {
	gatewayOrderID := chi.URLParam(r, "gatewayOrderID")
	report, err := h.Engine.Sync(r.Context(), gatewayOrderID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, report)
}

type EventResponse struct {
	ID               string          `json:"id"`
	Source           string          `json:"source"`
	EventType        string          `json:"event_type"`
	IdempotencyKey   string          `json:"idempotency_key"`
	GatewayPaymentID *string         `json:"gateway_payment_id,omitempty"`
	Payload          json.RawMessage `json:"payload"`
	SignatureValid   bool            `json:"signature_valid"`
	Outcome          *string         `json:"outcome,omitempty"`
	ReceivedAt       time.Time       `json:"received_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
}

// OrderEvents handles GET /api/v1/admin/orders/{gatewayOrderID}/events
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	gatewayOrderID := chi.URLParam(r, "gatewayOrderID")
	history, err := h.History.ListByOrder(r.Context(), gatewayOrderID, h.QueryInt(r, "limit", 50))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resp := make([]EventResponse, 0, len(history))
	for _, e := range history {
		resp = append(resp, EventResponse{
			ID:               e.ID,
			Source:           e.Source,
			EventType:        e.EventType,
			IdempotencyKey:   e.IdempotencyKey,
			GatewayPaymentID: e.GatewayPaymentID,
			Payload:          json.RawMessage(e.RawPayload),
			SignatureValid:   e.SignatureValid,
			Outcome:          e.Outcome,
			ReceivedAt:       e.ReceivedAt,
			ProcessedAt:      e.ProcessedAt,
		})
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": resp})
}
