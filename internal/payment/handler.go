package payment

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport"
)

type ServiceAPI interface {
	Get(ctx context.Context, gatewayPaymentID string) (*GatewayPayment, error)
	List(ctx context.Context, filter ListFilter) ([]*GatewayPayment, error)
	Refund(ctx context.Context, gatewayPaymentID string, dto RefundRequestDTO) (*GatewayPayment, *razorpay.Refund, error)
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

// ListPayments handles GET /api/v1/admin/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Status:         r.URL.Query().Get("status"),
		GatewayOrderID: r.URL.Query().Get("gateway_order_id"),
		Limit:          h.QueryInt(r, "limit", 20),
		Offset:         h.QueryInt(r, "offset", 0),
	}

	payments, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	_ = filter.Normalize()
	resp := PaymentsResponse{Payments: make([]PaymentResponse, 0, len(payments)), Limit: filter.Limit, Offset: filter.Offset}
	for _, p := range payments {
		resp.Payments = append(resp.Payments, p.ToResponse())
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// GetPayment handles GET /api/v1/admin/payments/{gatewayPaymentID}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Get(r.Context(), chi.URLParam(r, "gatewayPaymentID"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p.ToResponse())
}

// RefundPayment handles POST /api/v1/admin/payments/{gatewayPaymentID}/refund
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	// an empty body refunds the remaining captured amount
	var req RefundRequestDTO
	if r.ContentLength != 0 {
		if err := h.DecodeJSON(r, &req); err != nil {
			h.HandleServiceError(w, err)
			return
		}
	}

	paymentID := chi.URLParam(r, "gatewayPaymentID")
	updated, refund, err := h.Service.Refund(r.Context(), paymentID, req)
	if err != nil {
		h.Logger.Error("RefundPayment: refund failed", "gateway_payment_id", paymentID, "user_id", user.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("RefundPayment: refund issued",
		"gateway_payment_id", paymentID,
		"gateway_refund_id", refund.ID,
		"amount", refund.Amount,
		"user_id", user.ID)

	h.WriteJSON(w, http.StatusOK, RefundResponse{
		GatewayRefundID: refund.ID,
		Amount:          refund.Amount,
		Payment:         updated.ToResponse(),
	})
}
