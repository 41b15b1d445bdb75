package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
)

type stubService struct {
	user *internal.User
	err  error
}

func (s *stubService) Authenticate(context.Context, LoginDTO) (AuthTokens, error) {
	return AuthTokens{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}, s.err
}

func (s *stubService) RefreshTokens(context.Context, string) (AuthTokens, error) {
	return AuthTokens{}, s.err
}

func (s *stubService) Authorize(_ context.Context, token string) (*internal.User, error) {
	if token != "good" {
		return nil, internal.ErrInvalidToken
	}
	return s.user, s.err
}

var _ = ginkgo.Describe("Auth HTTP", func() {
	var (
		svc    *stubService
		router chi.Router
	)

	ginkgo.BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc = &stubService{user: &internal.User{ID: 7, Email: "ops@example.com", Permissions: []string{PermissionViewPayments}}}
		handler := NewHandler(svc, logger)
		rbac := NewRBACAuthorization(NewPermissionChecker(), logger)

		router = chi.NewRouter()
		router.Post("/auth/login", handler.Login)
		router.Group(func(r chi.Router) {
			r.Use(handler.AuthMiddleware)
			r.With(rbac.Require(PermissionViewPayments)).Get("/view", func(w http.ResponseWriter, r *http.Request) {
				user, _ := internal.UserFromContext(r.Context())
				_ = json.NewEncoder(w).Encode(map[string]int64{"id": user.ID})
			})
			r.With(rbac.Require(PermissionRefundPayments)).Post("/refund", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})
	})

	serve := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	ginkgo.It("returns tokens on login", func() {
		rec := serve(http.MethodPost, "/auth/login", "", `{"email":"ops@example.com","password":"x"}`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"access_token":"a"`))
	})

	ginkgo.It("maps bad credentials to 401", func() {
		svc.err = internal.ErrInvalidCredentials
		rec := serve(http.MethodPost, "/auth/login", "", `{"email":"ops@example.com","password":"x"}`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
	})

	ginkgo.It("rejects a malformed login body", func() {
		rec := serve(http.MethodPost, "/auth/login", "", `{`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
	})

	ginkgo.It("requires a bearer token", func() {
		gomega.Expect(serve(http.MethodGet, "/view", "", "").Code).To(gomega.Equal(http.StatusUnauthorized))
		gomega.Expect(serve(http.MethodGet, "/view", "bad", "").Code).To(gomega.Equal(http.StatusUnauthorized))
	})

	ginkgo.It("passes the operator through to permitted routes", func() {
		rec := serve(http.MethodGet, "/view", "good", "")
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"id":7`))
	})

	ginkgo.It("forbids routes outside the operator's permissions", func() {
		gomega.Expect(serve(http.MethodPost, "/refund", "good", "").Code).To(gomega.Equal(http.StatusForbidden))
	})

	ginkgo.It("lets admins through every route", func() {
		svc.user.Permissions = []string{PermissionAdmin}
		gomega.Expect(serve(http.MethodPost, "/refund", "good", "").Code).To(gomega.Equal(http.StatusNoContent))
	})
})
