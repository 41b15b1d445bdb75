package order

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/razorpay-reconciliation/internal/transport"
)

type ServiceAPI interface {
	Get(ctx context.Context, gatewayOrderID string) (*GatewayOrder, error)
	List(ctx context.Context, filter ListFilter) ([]*GatewayOrder, error)
}

// Handler serves the read-only admin view of gateway orders.
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

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Status:        r.URL.Query().Get("status"),
		LocalOrderRef: r.URL.Query().Get("local_order_ref"),
		Limit:         h.QueryInt(r, "limit", 20),
		Offset:        h.QueryInt(r, "offset", 0),
	}

	orders, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	_ = filter.Normalize()
	resp := OrdersResponse{Orders: make([]OrderResponse, 0, len(orders)), Limit: filter.Limit, Offset: filter.Offset}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, o.ToResponse())
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.Get(r.Context(), chi.URLParam(r, "gatewayOrderID"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, o.ToResponse())
}
