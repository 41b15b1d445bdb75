package checkout

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport"
)

type ServiceAPI interface {
	StartCheckout(ctx context.Context, dto StartCheckoutDTO) (*Handoff, error)
	AttachLocalOrder(ctx context.Context, gatewayOrderID, localOrderRef string) (*order.GatewayOrder, error)
	HandleCallback(ctx context.Context, dto CallbackDTO) (*CallbackResult, error)
	HandleFailure(ctx context.Context, dto FailureDTO) (*FailureResult, error)
}

type Redirects struct {
	SuccessURL string
	FailureURL string
}

type Handler struct {
	*transport.BaseHandler
	Service   ServiceAPI
	Redirects Redirects
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, redirects Redirects) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Redirects:   redirects,
	}
}

// CreateCheckout handles POST /api/v1/checkout/orders
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req StartCheckoutDTO
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	handoff, err := h.Service.StartCheckout(r.Context(), req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, handoff)
}

// AttachOrder handles POST /api/v1/checkout/orders/{gatewayOrderID}/attach
func (h *Handler) AttachOrder(w http.ResponseWriter, r *http.Request) {
	var req AttachDTO
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	ord, err := h.Service.AttachLocalOrder(r.Context(), chi.URLParam(r, "gatewayOrderID"), req.LocalOrderRef)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ord.ToResponse())
}

// Callback handles POST /api/v1/success, the form the checkout posts after a
// payment attempt. Signed forms report success; error[...] forms report a
// failed attempt.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		h.HandleError(w, internal.ErrInvalidPayload.WithCause(err))
		return
	}

	if r.PostForm.Get("razorpay_signature") == "" && r.PostForm.Get("error[code]") != "" {
		h.failure(w, r)
		return
	}

	dto := CallbackDTO{
		GatewayPaymentID: strings.TrimSpace(r.PostForm.Get("razorpay_payment_id")),
		GatewayOrderID:   strings.TrimSpace(r.PostForm.Get("razorpay_order_id")),
		Signature:        strings.TrimSpace(r.PostForm.Get("razorpay_signature")),
	}
	result, err := h.Service.HandleCallback(r.Context(), dto)
	if err != nil {
		h.Logger.Warn("Callback: payment not confirmed",
			"gateway_order_id", dto.GatewayOrderID,
			"gateway_payment_id", dto.GatewayPaymentID,
			"error", err)
		if h.redirectable(r) && h.Redirects.FailureURL != "" {
			if appErr, ok := internal.IsAppError(err); ok && appErr.StatusCode < http.StatusInternalServerError {
				h.redirect(w, r, h.Redirects.FailureURL, url.Values{
					"gateway_order_id": {dto.GatewayOrderID},
					"code":             {string(appErr.Code)},
				})
				return
			}
		}
		h.HandleServiceError(w, err)
		return
	}

	if h.redirectable(r) && h.Redirects.SuccessURL != "" {
		h.redirect(w, r, h.Redirects.SuccessURL, url.Values{
			"gateway_order_id":   {result.GatewayOrderID},
			"gateway_payment_id": {result.GatewayPaymentID},
			"order":              {result.LocalOrderRef},
		})
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) failure(w http.ResponseWriter, r *http.Request) {
	dto := FailureDTO{
		Code:             r.PostForm.Get("error[code]"),
		Description:      r.PostForm.Get("error[description]"),
		Source:           r.PostForm.Get("error[source]"),
		Step:             r.PostForm.Get("error[step]"),
		Reason:           r.PostForm.Get("error[reason]"),
		GatewayOrderID:   r.PostForm.Get("error[metadata][order_id]"),
		GatewayPaymentID: r.PostForm.Get("error[metadata][payment_id]"),
	}

	result, err := h.Service.HandleFailure(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if h.redirectable(r) && h.Redirects.FailureURL != "" {
		h.redirect(w, r, h.Redirects.FailureURL, url.Values{
			"gateway_order_id": {result.GatewayOrderID},
			"order":            {result.LocalOrderRef},
			"code":             {result.Code},
		})
		return
	}
	h.WriteJSON(w, http.StatusPaymentRequired, result)
}

// redirectable is false for API clients that asked for JSON.
func (h *Handler) redirectable(r *http.Request) bool {
	return !strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, target string, query url.Values) {
	u, err := url.Parse(target)
	if err != nil {
		h.Logger.Error("invalid redirect url", "url", target, "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			if v != "" {
				q.Add(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}
