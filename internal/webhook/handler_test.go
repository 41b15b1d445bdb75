package webhook_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewayorder"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
	"github.com/frahmantamala/razorpay-reconciliation/internal/signature"
	"github.com/frahmantamala/razorpay-reconciliation/internal/testutil"
	"github.com/frahmantamala/razorpay-reconciliation/internal/transport"
	"github.com/frahmantamala/razorpay-reconciliation/internal/webhook"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Webhook Handler", func() {
	var (
		h       *testutil.Harness
		handler *webhook.Handler
	)

	deliver := func(body []byte, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(webhook.SignatureHeader, sig)
		req.Header.Set(webhook.EventIDHeader, "evt_1")
		w := httptest.NewRecorder()
		handler.Receive(w, req)
		return w
	}

	BeforeEach(func() {
		h = testutil.NewHarness(reconcile.Config{})
		service := webhook.NewService(signature.NewVerifier(keySecret, webhookSecret), h.Engine, h.Logger)
		handler = webhook.NewHandler(&transport.BaseHandler{Logger: h.Logger}, service)
		h.Orders.Seed(&gatewayorder.GatewayOrder{GatewayOrderID: "order_1", Amount: 49900, Currency: "INR"})
	})

	It("acknowledges a verified event with its outcome", func() {
		body := paymentEvent(webhook.EventPaymentCaptured, captured("pay_1"))

		w := deliver(body, sign(body))

		Expect(w.Code).To(Equal(http.StatusOK))
		var ack webhook.AckResponse
		Expect(json.NewDecoder(w.Body).Decode(&ack)).To(Succeed())
		Expect(ack.Status).To(Equal("ok"))
		Expect(ack.Outcome).To(Equal("applied"))
	})

	It("acknowledges an event for an unknown order", func() {
		p := captured("pay_2")
		p.OrderID = "order_2"
		body := paymentEvent(webhook.EventPaymentCaptured, p)

		w := deliver(body, sign(body))

		Expect(w.Code).To(Equal(http.StatusOK))
	})

	It("refuses a bad signature with 400", func() {
		body := paymentEvent(webhook.EventPaymentCaptured, captured("pay_1"))

		w := deliver(body, "deadbeef")

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(h.Events.All()).To(BeEmpty())
	})

	It("refuses a missing signature with 400", func() {
		body := paymentEvent(webhook.EventPaymentCaptured, captured("pay_1"))

		w := deliver(body, "")

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("asks for redelivery when the event log is down", func() {
		h.Events.Err = errors.New("database is locked")
		body := paymentEvent(webhook.EventPaymentCaptured, captured("pay_1"))

		w := deliver(body, sign(body))

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).NotTo(ContainSubstring("database is locked"))
	})
})
