package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport"
)

const (
	SignatureHeader = "X-Razorpay-Signature"
	EventIDHeader   = "X-Razorpay-Event-Id"
	maxWebhookBody  = 1 << 20
)

type ServiceAPI interface {
	Ingest(ctx context.Context, raw []byte, signature, deliveryID string) (reconcile.Outcome, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// Receive handles POST /api/v1/webhook. The body is read untouched because
// the signature covers the exact bytes.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.HandleError(w, internal.ErrInvalidPayload.WithCause(err))
		return
	}

	outcome, err := h.Service.Ingest(r.Context(), raw, r.Header.Get(SignatureHeader), r.Header.Get(EventIDHeader))
	if err != nil {
		if errors.Is(err, internal.ErrInvalidSignature) || errors.Is(err, internal.ErrInvalidPayload) {
			h.HandleServiceError(w, err)
			return
		}
		// anything else is ours to fix; a 5xx makes the provider redeliver
		h.Logger.Error("Receive: webhook not acknowledged", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.WriteJSON(w, http.StatusOK, AckResponse{Status: "ok", Outcome: string(outcome)})
}
