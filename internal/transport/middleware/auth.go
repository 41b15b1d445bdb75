package middleware

import (
	"net/http"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/pkg/logger"
)

// UserContext tags the request logger with the authenticated operator.
// It must run after the auth middleware.
func UserContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := internal.UserFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := logger.With(r.Context(), "admin_user_id", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
