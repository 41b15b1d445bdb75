package checkout_test

import (
	"context"
	"errors"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/checkout"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewaypayment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewayorder"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/events"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
	"github.com/frahmantamala/razorpay-reconciliation/internal/signature"
	"github.com/frahmantamala/razorpay-reconciliation/internal/testutil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const keySecret = "test_key_secret"

type staticAssets string

func (a staticAssets) LogoURL() string { return string(a) }

func sign(orderID, paymentID string) string {
	return signature.Compute(keySecret, signature.CallbackMessage(orderID, paymentID))
}

func ptr(s string) *string { return &s }

func newService(h *testutil.Harness, verifyOnAPI bool) *checkout.Service {
	return checkout.NewService(
		h.OrderService,
		h.PaymentService,
		signature.NewVerifier(keySecret, "webhook_secret"),
		h.Gateway,
		h.Engine,
		staticAssets("https://shop.example.com/static/logo.png"),
		h.Published,
		checkout.Options{
			KeyID:              "rzp_test_key",
			MerchantName:       "Example Shop",
			ThemeColor:         "#3399cc",
			CallbackURL:        "https://pay.example.com/api/v1/success",
			VerifyPaymentOnAPI: verifyOnAPI,
		},
		h.Logger,
	)
}

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		h       *testutil.Harness
		service *checkout.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = testutil.NewHarness(reconcile.Config{})
		service = newService(h, false)
		h.Orders.Seed(&gatewayorder.GatewayOrder{
			GatewayOrderID: "order_1",
			LocalOrderRef:  ptr("100"),
			Amount:         49900,
			Currency:       "INR",
		})
	})

	Describe("StartCheckout", func() {
		It("creates the order and returns the handoff", func() {
			handoff, err := service.StartCheckout(ctx, checkout.StartCheckoutDTO{
				Amount:        150050,
				Currency:      "INR",
				LocalOrderRef: "200",
				Customer:      checkout.Customer{Name: "Asha", Email: "asha@example.com", Contact: "9999999999"},
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(handoff.OrderID).To(HavePrefix("order_"))
			Expect(handoff.Amount).To(Equal(int64(150050)))
			Expect(handoff.KeyID).To(Equal("rzp_test_key"))
			Expect(handoff.Image).To(Equal("https://shop.example.com/static/logo.png"))
			Expect(handoff.Prefill.Email).To(Equal("asha@example.com"))
			Expect(handoff.Theme.Color).To(Equal("#3399cc"))
			Expect(handoff.LocalOrderRef).To(Equal("200"))

			stored := h.Orders.Snapshot(handoff.OrderID)
			Expect(*stored.LocalOrderRef).To(Equal("200"))
			Expect(stored.Status).To(Equal("created"))
		})

		It("rejects a non-positive amount before calling the provider", func() {
			h.Gateway.CreateErr = errors.New("must not be called")

			_, err := service.StartCheckout(ctx, checkout.StartCheckoutDTO{Amount: 0, Currency: "INR"})

			Expect(errors.Is(err, internal.ErrInvalidAmount)).To(BeTrue())
		})

		It("rejects a currency outside the allow list", func() {
			_, err := service.StartCheckout(ctx, checkout.StartCheckoutDTO{Amount: 100, Currency: "USD"})

			Expect(errors.Is(err, internal.ErrUnsupportedCurrency)).To(BeTrue())
		})
	})

	Describe("AttachLocalOrder", func() {
		It("announces a link made after the order was paid", func() {
			h.Orders.Seed(&gatewayorder.GatewayOrder{GatewayOrderID: "order_2", Amount: 100, Currency: "INR", Status: "paid"})

			ord, err := service.AttachLocalOrder(ctx, "order_2", "300")

			Expect(err).NotTo(HaveOccurred())
			Expect(ord.LocalRef()).To(Equal("300"))
			linked := h.Published.OfType(events.EventTypeLocalOrderLinked)
			Expect(linked).To(HaveLen(1))
			Expect(linked[0].(*events.LocalOrderLinkedEvent).LocalOrderRef).To(Equal("300"))
		})

		It("announces a paid order exactly once whichever of pay and attach lands last", func() {
			h.Orders.Seed(&gatewayorder.GatewayOrder{GatewayOrderID: "order_3", Amount: 100, Currency: "INR"})
			_, err := service.HandleCallback(ctx, checkout.CallbackDTO{GatewayOrderID: "order_3", GatewayPaymentID: "pay_3", Signature: sign("order_3", "pay_3")})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.Published.OfType(events.EventTypePaymentCaptured)).To(BeEmpty())

			_, err = service.AttachLocalOrder(ctx, "order_3", "301")
			Expect(err).NotTo(HaveOccurred())

			Expect(h.Published.OfType(events.EventTypePaymentCaptured)).To(BeEmpty())
			Expect(h.Published.OfType(events.EventTypeLocalOrderLinked)).To(HaveLen(1))
		})

		It("does not announce an attach made before payment", func() {
			h.Orders.Seed(&gatewayorder.GatewayOrder{GatewayOrderID: "order_4", Amount: 100, Currency: "INR"})
			_, err := service.AttachLocalOrder(ctx, "order_4", "401")
			Expect(err).NotTo(HaveOccurred())
			Expect(h.Published.Events()).To(BeEmpty())

			_, err = service.HandleCallback(ctx, checkout.CallbackDTO{GatewayOrderID: "order_4", GatewayPaymentID: "pay_4", Signature: sign("order_4", "pay_4")})
			Expect(err).NotTo(HaveOccurred())

			Expect(h.Published.OfType(events.EventTypePaymentCaptured)).To(HaveLen(1))
			Expect(h.Published.OfType(events.EventTypeLocalOrderLinked)).To(BeEmpty())
		})

		It("refuses a different reference", func() {
			_, err := service.AttachLocalOrder(ctx, "order_1", "999")

			Expect(errors.Is(err, internal.ErrAlreadyAttached)).To(BeTrue())
		})
	})

	Describe("HandleCallback", func() {
		callback := func(orderID, paymentID string) checkout.CallbackDTO {
			return checkout.CallbackDTO{GatewayOrderID: orderID, GatewayPaymentID: paymentID, Signature: sign(orderID, paymentID)}
		}

		It("captures the payment and marks the order paid once", func() {
			res, err := service.HandleCallback(ctx, callback("order_1", "pay_1"))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.OrderStatus).To(Equal("paid"))
			Expect(res.PaymentStatus).To(Equal("captured"))
			Expect(res.LocalOrderRef).To(Equal("100"))
			Expect(res.Duplicate).To(BeFalse())
			Expect(h.Published.OfType(events.EventTypePaymentCaptured)).To(HaveLen(1))
		})

		It("acknowledges a replayed callback without another side effect", func() {
			_, err := service.HandleCallback(ctx, callback("order_1", "pay_1"))
			Expect(err).NotTo(HaveOccurred())
			before := h.Payments.Snapshot("pay_1")

			res, err := service.HandleCallback(ctx, callback("order_1", "pay_1"))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Duplicate).To(BeTrue())
			Expect(res.OrderStatus).To(Equal("paid"))
			Expect(h.Payments.Snapshot("pay_1")).To(Equal(before))
			Expect(h.Published.OfType(events.EventTypePaymentCaptured)).To(HaveLen(1))
			Expect(h.Events.All()).To(HaveLen(1))
		})

		It("rejects a signature with a flipped character and changes nothing", func() {
			dto := callback("order_1", "pay_1")
			flipped := []byte(dto.Signature)
			if flipped[0] == 'a' {
				flipped[0] = 'b'
			} else {
				flipped[0] = 'a'
			}
			dto.Signature = string(flipped)

			_, err := service.HandleCallback(ctx, dto)

			Expect(errors.Is(err, internal.ErrInvalidSignature)).To(BeTrue())
			Expect(h.Orders.Snapshot("order_1").Status).To(Equal("created"))
			Expect(h.Payments.Snapshot("pay_1")).To(BeNil())
			Expect(h.Events.All()).To(BeEmpty())
		})

		It("reports an unknown order", func() {
			_, err := service.HandleCallback(ctx, callback("order_404", "pay_1"))

			Expect(errors.Is(err, internal.ErrOrderNotFound)).To(BeTrue())
		})

		It("rejects a payment that belongs to another order", func() {
			h.Orders.Seed(&gatewayorder.GatewayOrder{GatewayOrderID: "order_2", Amount: 100, Currency: "INR"})
			h.Payments.Seed(&gatewaypayment.GatewayPayment{GatewayPaymentID: "pay_1", GatewayOrderID: "order_2", Amount: 100, Currency: "INR", Status: "authorized"})

			_, err := service.HandleCallback(ctx, callback("order_1", "pay_1"))

			Expect(errors.Is(err, internal.ErrOrderMismatch)).To(BeTrue())
			Expect(h.Orders.Snapshot("order_1").Status).To(Equal("created"))
			Expect(h.Orders.Snapshot("order_1").Attempts).To(BeZero())
			Expect(h.Payments.Snapshot("pay_1").GatewayOrderID).To(Equal("order_2"))
			Expect(h.Published.Events()).To(BeEmpty())
		})

		It("reports a conflict when the payment had already failed", func() {
			h.Payments.Seed(&gatewaypayment.GatewayPayment{GatewayPaymentID: "pay_1", GatewayOrderID: "order_1", Amount: 49900, Currency: "INR", Status: "failed"})

			_, err := service.HandleCallback(ctx, callback("order_1", "pay_1"))

			Expect(errors.Is(err, internal.ErrStateConflict)).To(BeTrue())
			Expect(h.Conflicts.All()).To(HaveLen(1))
		})

		Context("with provider verification", func() {
			BeforeEach(func() {
				service = newService(h, true)
			})

			It("records the status the provider reports", func() {
				h.Gateway.SetPayment(razorpay.Payment{ID: "pay_1", OrderID: "order_1", Amount: 49900, Currency: "INR", Status: "authorized", Method: "card"})

				res, err := service.HandleCallback(ctx, callback("order_1", "pay_1"))

				Expect(err).NotTo(HaveOccurred())
				Expect(res.PaymentStatus).To(Equal("authorized"))
				Expect(res.OrderStatus).To(Equal("attempted"))
				Expect(h.Published.OfType(events.EventTypePaymentCaptured)).To(BeEmpty())
			})

			It("falls back to the signed callback when the provider is down", func() {
				h.Gateway.FetchErr = internal.ErrProviderUnavailable

				res, err := service.HandleCallback(ctx, callback("order_1", "pay_1"))

				Expect(err).NotTo(HaveOccurred())
				Expect(res.PaymentStatus).To(Equal("captured"))
			})

			It("rejects a payment the provider places on another order", func() {
				h.Gateway.SetPayment(razorpay.Payment{ID: "pay_1", OrderID: "order_9", Status: "captured"})

				_, err := service.HandleCallback(ctx, callback("order_1", "pay_1"))

				Expect(errors.Is(err, internal.ErrOrderMismatch)).To(BeTrue())
			})
		})
	})

	Describe("HandleFailure", func() {
		It("moves the order to attempted without recording a payment", func() {
			res, err := service.HandleFailure(ctx, checkout.FailureDTO{
				Code:             "BAD_REQUEST_ERROR",
				Description:      "Payment failed",
				Reason:           "payment_failed",
				GatewayOrderID:   "order_1",
				GatewayPaymentID: "pay_1",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.LocalOrderRef).To(Equal("100"))
			Expect(h.Orders.Snapshot("order_1").Status).To(Equal("attempted"))
			Expect(h.Payments.Snapshot("pay_1")).To(BeNil())
		})

		It("tolerates an unknown order", func() {
			res, err := service.HandleFailure(ctx, checkout.FailureDTO{Code: "BAD_REQUEST_ERROR", GatewayOrderID: "order_x"})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code).To(Equal("BAD_REQUEST_ERROR"))
		})
	})
})
