package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/razorpay-reconciliation/internal/auth"
	"github.com/frahmantamala/razorpay-reconciliation/internal/checkout"
	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
	"github.com/frahmantamala/razorpay-reconciliation/internal/review"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport/middleware"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport/swagger"
	"github.com/frahmantamala/razorpay-reconciliation/internal/user"
	"github.com/frahmantamala/razorpay-reconciliation/internal/webhook"
)

type Handlers struct {
	Auth      *auth.Handler
	RBAC      *auth.RBACAuthorization
	User      *user.Handler
	Checkout  *checkout.Handler
	Webhook   *webhook.Handler
	Order     *order.Handler
	Payment   *payment.Handler
	Reconcile *reconcile.Handler
	Review    *review.Handler
	// Validator is optional; without it requests are not checked against the API document.
	Validator *middleware.OpenAPIValidator
}

type RouterOptions struct {
	AllowedOrigins string
	OpenAPIPath    string
	// ConflictBacklogWarn marks health degraded above this many open conflicts.
	ConflictBacklogWarn int
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, options RouterOptions, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db,
		NamedCheck{Name: "review_queue", Check: OpenConflictsCheck(db, options.ConflictBacklogWarn)})

	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORS(options.AllowedOrigins))

	openAPIPath := options.OpenAPIPath
	if openAPIPath == "" {
		openAPIPath = "./api/openapi.yml"
	}
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, openAPIPath)
	})
	router.Handle("/swagger/*", swagger.Handler())

	validate := func(next http.Handler) http.Handler { return next }
	if h.Validator != nil {
		validate = h.Validator.Middleware
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Provider-facing endpoints authenticate by signature, not by token.
		r.Post("/success", h.Checkout.Callback)
		r.Post("/webhook", h.Webhook.Receive)

		r.Group(func(cr chi.Router) {
			cr.Use(validate)
			cr.Post("/checkout/orders", h.Checkout.CreateCheckout)
			cr.Post("/checkout/orders/{gatewayOrderID}/attach", h.Checkout.AttachOrder)
		})

		r.Route("/auth", func(ar chi.Router) {
			ar.Use(validate)
			ar.Post("/login", h.Auth.Login)
			ar.Post("/refresh", h.Auth.RefreshToken)
		})

		r.Route("/admin", func(ad chi.Router) {
			ad.Use(h.Auth.AuthMiddleware)
			ad.Use(middleware.UserContext)
			ad.Use(validate)

			ad.Get("/me", h.User.GetCurrentUser)

			ad.Group(func(vr chi.Router) {
				vr.Use(h.RBAC.Require(auth.PermissionViewPayments))
				vr.Get("/orders", h.Order.ListOrders)
				vr.Get("/orders/{gatewayOrderID}", h.Order.GetOrder)
				vr.Get("/orders/{gatewayOrderID}/events", h.Reconcile.OrderEvents)
				vr.Get("/payments", h.Payment.ListPayments)
				vr.Get("/payments/{gatewayPaymentID}", h.Payment.GetPayment)
				vr.Get("/conflicts", h.Review.ListConflicts)
			})

			ad.With(h.RBAC.Require(auth.PermissionSyncOrders)).
				Post("/orders/{gatewayOrderID}/sync", h.Reconcile.SyncOrder)
			ad.With(h.RBAC.Require(auth.PermissionRefundPayments)).
				Post("/payments/{gatewayPaymentID}/refund", h.Payment.RefundPayment)
			ad.With(h.RBAC.Require(auth.PermissionResolveConflicts)).
				Post("/conflicts/{conflictID}/resolve", h.Review.ResolveConflict)
		})
	})
}
