package payment_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewaypayment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/testutil"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Payment Handler", func() {
	var (
		store  *testutil.PaymentStore
		router chi.Router
	)

	BeforeEach(func() {
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		store = testutil.NewPaymentStore()
		service := payment.NewService(store, testutil.NewGateway(), nil, slogger)
		handler := payment.NewHandler(&transport.BaseHandler{Logger: slogger}, service)

		store.Seed(&gatewaypayment.GatewayPayment{
			GatewayPaymentID: "pay_1",
			GatewayOrderID:   "order_1",
			Amount:           49900,
			Currency:         "INR",
			Status:           "captured",
		})

		router = chi.NewRouter()
		router.Get("/payments", handler.ListPayments)
		router.Get("/payments/{gatewayPaymentID}", handler.GetPayment)
		router.Post("/payments/{gatewayPaymentID}/refund", handler.RefundPayment)
	})

	It("returns a payment with its display amount", func() {
		req := httptest.NewRequest(http.MethodGet, "/payments/pay_1", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var resp payment.PaymentResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.AmountDisplay).To(Equal("499.00"))
		Expect(resp.Status).To(Equal("captured"))
	})

	It("returns 404 for an unknown payment", func() {
		req := httptest.NewRequest(http.MethodGet, "/payments/pay_missing", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("lists payments filtered by order", func() {
		req := httptest.NewRequest(http.MethodGet, "/payments?gateway_order_id=order_1", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var resp payment.PaymentsResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Payments).To(HaveLen(1))
	})

	It("requires an authenticated operator to refund", func() {
		req := httptest.NewRequest(http.MethodPost, "/payments/pay_1/refund", strings.NewReader(`{}`))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("refunds part of a captured payment", func() {
		req := httptest.NewRequest(http.MethodPost, "/payments/pay_1/refund", strings.NewReader(`{"amount":"100.00"}`))
		req = req.WithContext(internal.ContextWithUser(req.Context(), &internal.User{ID: 7, Permissions: []string{"refund_payments"}}))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var resp payment.RefundResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Amount).To(Equal(int64(10000)))
		Expect(resp.Payment.AmountRefunded).To(Equal(int64(10000)))
		Expect(store.Snapshot("pay_1").Status).To(Equal("captured"))
	})

	It("refunds the remaining amount when no body is sent", func() {
		req := httptest.NewRequest(http.MethodPost, "/payments/pay_1/refund", nil)
		req = req.WithContext(internal.ContextWithUser(req.Context(), &internal.User{ID: 7, Permissions: []string{"refund_payments"}}))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var resp payment.RefundResponse
		Expect(json.NewDecoder(w.Body).Decode(&resp)).To(Succeed())
		Expect(resp.Amount).To(Equal(int64(49900)))
		Expect(resp.Payment.AmountRefunded).To(Equal(int64(49900)))
	})
})
