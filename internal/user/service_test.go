package user_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	userDatamodel "github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/user"
	"github.com/frahmantamala/razorpay-reconciliation/internal/user"
)

type memoryRepo struct {
	users       map[int64]*userDatamodel.AdminUser
	catalogue   map[string]string
	grants      map[int64][]string
	createCalls int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:     map[int64]*userDatamodel.AdminUser{},
		catalogue: map[string]string{},
		grants:    map[int64][]string{},
	}
}

func (m *memoryRepo) GetByID(_ context.Context, id int64) (*userDatamodel.AdminUser, error) {
	return m.users[id], nil
}

func (m *memoryRepo) GetByEmail(_ context.Context, email string) (*userDatamodel.AdminUser, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memoryRepo) GetPermissions(_ context.Context, id int64) ([]string, error) {
	return m.grants[id], nil
}

func (m *memoryRepo) Create(_ context.Context, u *userDatamodel.AdminUser) error {
	m.createCalls++
	u.ID = int64(len(m.users) + 1)
	m.users[u.ID] = u
	return nil
}

func (m *memoryRepo) UpsertPermissions(_ context.Context, catalogue map[string]string) error {
	for k, v := range catalogue {
		m.catalogue[k] = v
	}
	return nil
}

func (m *memoryRepo) Grant(_ context.Context, id int64, permissions []string, _ *int64) error {
	for _, p := range permissions {
		found := false
		for _, g := range m.grants[id] {
			found = found || g == p
		}
		if !found {
			m.grants[id] = append(m.grants[id], p)
		}
	}
	return nil
}

var _ = Describe("Service", func() {
	var (
		repo    *memoryRepo
		service *user.Service
		logger  *slog.Logger
		ctx     context.Context
	)

	catalogue := map[string]string{"admin": "all", "view_payments": "read"}
	hasher := func(p string) (string, error) { return "hashed:" + p, nil }

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		repo = newMemoryRepo()
		service = user.NewService(repo, hasher, logger)
	})

	It("creates the operator once and keeps granting", func() {
		dto := user.CreateUserDTO{Email: " Ops@Example.com", Name: "Ops", Password: "a-long-password", Permissions: []string{"view_payments"}}
		u, created, err := service.EnsureAdmin(ctx, dto, catalogue)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())
		Expect(u.Email).To(Equal("ops@example.com"))
		Expect(u.Permissions).To(Equal([]string{"view_payments"}))
		Expect(repo.users[u.ID].PasswordHash).To(Equal("hashed:a-long-password"))

		dto.Permissions = []string{"admin"}
		again, created, err := service.EnsureAdmin(ctx, dto, catalogue)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeFalse())
		Expect(again.HasPermission("anything")).To(BeTrue())
		Expect(repo.createCalls).To(Equal(1))
	})

	It("rejects unknown permissions", func() {
		dto := user.CreateUserDTO{Email: "ops@example.com", Name: "Ops", Password: "a-long-password", Permissions: []string{"approve_payouts"}}
		_, _, err := service.EnsureAdmin(ctx, dto, catalogue)
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("rejects short passwords", func() {
		_, _, err := service.EnsureAdmin(ctx, user.CreateUserDTO{Email: "ops@example.com", Name: "Ops", Password: "short"}, catalogue)
		Expect(err).To(HaveOccurred())
		Expect(repo.createCalls).To(BeZero())
	})

	It("reports unknown operators as not found", func() {
		_, err := service.GetByID(ctx, 42)
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.StatusCode).To(Equal(http.StatusNotFound))
	})

	Describe("GET /admin/me", func() {
		It("returns the current operator", func() {
			_, _, err := service.EnsureAdmin(ctx, user.CreateUserDTO{Email: "ops@example.com", Name: "Ops", Password: "a-long-password"}, catalogue)
			Expect(err).NotTo(HaveOccurred())

			handler := user.NewHandler(service, logger)
			req := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
			req = req.WithContext(internal.ContextWithUser(req.Context(), &internal.User{ID: 1}))
			rec := httptest.NewRecorder()
			handler.GetCurrentUser(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"email":"ops@example.com"`))
		})

		It("is unauthorized without an operator", func() {
			handler := user.NewHandler(service, logger)
			rec := httptest.NewRecorder()
			handler.GetCurrentUser(rec, httptest.NewRequest(http.MethodGet, "/admin/me", nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})

