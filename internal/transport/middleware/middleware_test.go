package middleware_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport/middleware"
)

const apiDocument = `
openapi: 3.0.3
info:
  title: test
  version: "1"
paths:
  /api/v1/checkout/orders:
    post:
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [amount, currency]
              properties:
                amount:
                  type: integer
                  minimum: 1
                currency:
                  type: string
                  pattern: "^[A-Z]{3}$"
      responses:
        "201":
          description: created
`

var _ = Describe("Middleware", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	})

	Describe("RequestID", func() {
		It("keeps the caller's id", func() {
			var seen string
			h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = internal.RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(middleware.RequestIDHeader, "req-1")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			Expect(seen).To(Equal("req-1"))
			Expect(rec.Header().Get(middleware.RequestIDHeader)).To(Equal("req-1"))
		})

		It("generates one when missing", func() {
			rec := httptest.NewRecorder()
			middleware.RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(rec.Header().Get(middleware.RequestIDHeader)).To(HaveLen(36))
		})
	})

	Describe("RecoveryMiddleware", func() {
		It("turns a panic into a 500 without the panic text", func() {
			h := middleware.RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic("key_secret=abc")
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).NotTo(ContainSubstring("abc"))
		})
	})

	Describe("LoggingMiddleware", func() {
		It("masks secrets and leaves the body readable downstream", func() {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			var body string
			h := middleware.LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				body = string(raw)
			}))
			payload := `{"email":"ops@example.com","password":"hunter2"}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(payload))
			req.Header.Set("X-Razorpay-Signature", "deadbeef")
			h.ServeHTTP(httptest.NewRecorder(), req)

			Expect(body).To(Equal(payload))
			Expect(buf.String()).NotTo(ContainSubstring("hunter2"))
			Expect(buf.String()).NotTo(ContainSubstring("deadbeef"))
		})

		It("masks the callback signature in form bodies", func() {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			var parsed string
			h := middleware.LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.ParseForm()).To(Succeed())
				parsed = r.PostForm.Get("razorpay_signature")
			}))
			form := "razorpay_order_id=order_1&razorpay_payment_id=pay_1&razorpay_signature=cafebabe"
			req := httptest.NewRequest(http.MethodPost, "/api/v1/success", strings.NewReader(form))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			h.ServeHTTP(httptest.NewRecorder(), req)

			Expect(parsed).To(Equal("cafebabe"))
			Expect(buf.String()).To(ContainSubstring("order_1"))
			Expect(buf.String()).NotTo(ContainSubstring("cafebabe"))
		})

		It("masks payer details in webhook payloads", func() {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			h := middleware.LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			payload := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","vpa":"someone@upi","contact":"+919999999999"}}}}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook", strings.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			h.ServeHTTP(httptest.NewRecorder(), req)

			Expect(buf.String()).To(ContainSubstring("pay_1"))
			Expect(buf.String()).NotTo(ContainSubstring("someone@upi"))
			Expect(buf.String()).NotTo(ContainSubstring("9999999999"))
		})
	})

	Describe("CORS", func() {
		It("answers preflight for allowed origins", func() {
			h := middleware.CORS("https://shop.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			}))
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/checkout/orders", nil)
			req.Header.Set("Origin", "https://shop.example.com")
			req.Header.Set("Access-Control-Request-Method", "POST")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://shop.example.com"))
		})

		It("does not echo unknown origins", func() {
			h := middleware.CORS("https://shop.example.com")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("Origin", "https://evil.example.com")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
		})
	})

	Describe("OpenAPIValidator", func() {
		var h http.Handler

		BeforeEach(func() {
			v, err := middleware.NewOpenAPIValidatorFromData([]byte(apiDocument), logger)
			Expect(err).NotTo(HaveOccurred())
			h = v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write(raw)
			}))
		})

		post := func(path, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			return rec
		}

		It("passes conforming requests with the body intact", func() {
			rec := post("/api/v1/checkout/orders", `{"amount":49900,"currency":"INR"}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(rec.Body.String()).To(ContainSubstring("49900"))
		})

		It("rejects requests that break the schema", func() {
			rec := post("/api/v1/checkout/orders", `{"amount":0,"currency":"inr"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("VALIDATION_FAILED"))
		})

		It("ignores routes the document does not describe", func() {
			rec := post("/api/v1/webhook", `not json`)
			Expect(rec.Code).To(Equal(http.StatusCreated))
		})
	})
})
