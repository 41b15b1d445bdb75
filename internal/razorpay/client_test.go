package razorpay_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Client", func() {
	var (
		server *httptest.Server
		client *razorpay.Client
		calls  int32
		logger *slog.Logger
	)

	newClient := func(handler http.HandlerFunc, retries int) {
		server = httptest.NewServer(handler)
		client = razorpay.NewClient(razorpay.Config{
			BaseURL:         server.URL,
			KeyID:           "rzp_test_key",
			KeySecret:       "secret",
			Timeout:         2 * time.Second,
			MaxRetries:      retries,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		}, logger)
	}

	BeforeEach(func() {
		atomic.StoreInt32(&calls, 0)
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	Describe("CreateOrder", func() {
		It("sends basic auth and decodes the order", func() {
			// Given
			newClient(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				atomic.AddInt32(&calls, 1)
				user, pass, ok := r.BasicAuth()
				Expect(ok).To(BeTrue())
				Expect(user).To(Equal("rzp_test_key"))
				Expect(pass).To(Equal("secret"))
				Expect(r.URL.Path).To(Equal("/orders"))

				body, _ := io.ReadAll(r.Body)
				var req razorpay.OrderRequest
				Expect(json.Unmarshal(body, &req)).To(Succeed())
				Expect(req.Amount).To(Equal(int64(49900)))

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"order_123","entity":"order","amount":49900,"currency":"INR","status":"created","notes":[]}`))
			}, 2)

			// When
			order, err := client.CreateOrder(context.Background(), razorpay.OrderRequest{Amount: 49900, Currency: "INR", PaymentCapture: true})

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(order.ID).To(Equal("order_123"))
			Expect(order.Notes).To(BeEmpty())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})
	})

	Describe("retries", func() {
		It("retries 503 and succeeds on a later attempt", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) < 3 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				_, _ = w.Write([]byte(`{"id":"pay_1","status":"captured","order_id":"order_1","amount":100,"currency":"INR"}`))
			}, 3)

			payment, err := client.FetchPayment(context.Background(), "pay_1")

			Expect(err).NotTo(HaveOccurred())
			Expect(payment.Status).To(Equal(razorpay.PaymentStatusCaptured))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
		})

		It("returns ProviderUnavailable once retries are exhausted", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusTooManyRequests)
			}, 2)

			_, err := client.FetchOrder(context.Background(), "order_1")

			Expect(errors.Is(err, internal.ErrProviderUnavailable)).To(BeTrue())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
		})

		It("does not resend an order after a server error", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusBadGateway)
			}, 3)

			_, err := client.CreateOrder(context.Background(), razorpay.OrderRequest{Amount: 49900, Currency: "INR"})

			Expect(errors.Is(err, internal.ErrProviderUnavailable)).To(BeTrue())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})

		It("resends a refund the provider throttled", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) == 1 {
					w.WriteHeader(http.StatusTooManyRequests)
					return
				}
				_, _ = w.Write([]byte(`{"id":"rfnd_1","entity":"refund","amount":500,"payment_id":"pay_1","status":"processed"}`))
			}, 3)

			refund, err := client.RefundPayment(context.Background(), "pay_1", razorpay.RefundRequest{Amount: 500})

			Expect(err).NotTo(HaveOccurred())
			Expect(refund.ID).To(Equal("rfnd_1"))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(2)))
		})

		It("does not resend a refund when the connection drops after it was sent", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				atomic.AddInt32(&calls, 1)
				_, _ = io.ReadAll(r.Body)
				hj, ok := w.(http.Hijacker)
				Expect(ok).To(BeTrue())
				conn, _, err := hj.Hijack()
				Expect(err).NotTo(HaveOccurred())
				_ = conn.Close()
			}, 3)

			_, err := client.RefundPayment(context.Background(), "pay_1", razorpay.RefundRequest{Amount: 500})

			Expect(errors.Is(err, internal.ErrProviderUnavailable)).To(BeTrue())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})

		It("keeps retrying reads when the connection drops", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				if atomic.AddInt32(&calls, 1) == 1 {
					hj, ok := w.(http.Hijacker)
					Expect(ok).To(BeTrue())
					conn, _, err := hj.Hijack()
					Expect(err).NotTo(HaveOccurred())
					_ = conn.Close()
					return
				}
				_, _ = w.Write([]byte(`{"id":"order_1","entity":"order","amount":100,"currency":"INR","status":"paid"}`))
			}, 3)

			order, err := client.FetchOrder(context.Background(), "order_1")

			Expect(err).NotTo(HaveOccurred())
			Expect(order.Status).To(Equal("paid"))
			Expect(atomic.LoadInt32(&calls)).To(BeNumerically(">=", 2))
		})

		It("does not retry a 400 and reports the provider's description", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The amount must be atleast INR 1.00"}}`))
			}, 3)

			_, err := client.RefundPayment(context.Background(), "pay_1", razorpay.RefundRequest{Amount: 1})

			Expect(errors.Is(err, internal.ErrProviderRejected)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("atleast INR 1.00"))
			var apiErr *razorpay.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Code).To(Equal("BAD_REQUEST_ERROR"))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})
	})

	Describe("FetchOrderPayments", func() {
		It("unwraps the collection and keeps object notes", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.Path).To(Equal("/orders/order_9/payments"))
				_, _ = w.Write([]byte(`{"entity":"collection","count":2,"items":[
					{"id":"pay_a","status":"failed","order_id":"order_9","notes":{"local_order_ref":"100"}},
					{"id":"pay_b","status":"captured","order_id":"order_9","notes":[]}]}`))
			}, 0)

			payments, err := client.FetchOrderPayments(context.Background(), "order_9")

			Expect(err).NotTo(HaveOccurred())
			Expect(payments).To(HaveLen(2))
			Expect(payments[0].Notes).To(HaveKeyWithValue("local_order_ref", "100"))
			Expect(payments[1].Status).To(Equal(razorpay.PaymentStatusCaptured))
		})
	})

	Describe("FetchPaymentRefunds", func() {
		It("lists the refunds of a payment", func() {
			newClient(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.URL.Path).To(Equal("/payments/pay_b/refunds"))
				_, _ = w.Write([]byte(`{"entity":"collection","count":1,"items":[
					{"id":"rfnd_1","entity":"refund","amount":500,"payment_id":"pay_b","status":"processed","notes":[]}]}`))
			}, 0)

			refunds, err := client.FetchPaymentRefunds(context.Background(), "pay_b")

			Expect(err).NotTo(HaveOccurred())
			Expect(refunds).To(HaveLen(1))
			Expect(refunds[0].Amount).To(Equal(int64(500)))
		})
	})
})
