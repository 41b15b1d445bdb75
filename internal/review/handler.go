package review

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, filter ListFilter) ([]*Conflict, error)
	Resolve(ctx context.Context, id int64, dto ResolveDTO, resolvedBy int64) (*Conflict, error)
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

// ListConflicts handles GET /api/v1/admin/conflicts
func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(StatusOpen)
	}
	filter := ListFilter{
		Status:         status,
		GatewayOrderID: r.URL.Query().Get("gateway_order_id"),
		Limit:          h.QueryInt(r, "limit", 20),
		Offset:         h.QueryInt(r, "offset", 0),
	}

	conflicts, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	_ = filter.Normalize()
	resp := ConflictsResponse{Conflicts: make([]ConflictResponse, 0, len(conflicts)), Limit: filter.Limit, Offset: filter.Offset}
	for _, c := range conflicts {
		resp.Conflicts = append(resp.Conflicts, c.ToResponse())
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// ResolveConflict handles POST /api/v1/admin/conflicts/{conflictID}/resolve
func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "conflictID"), 10, 64)
	if err != nil || id <= 0 {
		h.HandleError(w, internal.NewValidationFieldError("conflictID", "conflict id must be a positive integer", internal.ErrCodeValidationFailed))
		return
	}

	var req ResolveDTO
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resolved, err := h.Service.Resolve(r.Context(), id, req, user.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resolved.ToResponse())
}
