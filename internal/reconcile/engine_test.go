package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewaypayment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewayorder"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/events"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
	"github.com/frahmantamala/razorpay-reconciliation/internal/testutil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func ref(s string) *string { return &s }

var _ = Describe("Engine", func() {
	var (
		ctx context.Context
		h   *testutil.Harness
	)

	captured := func(paymentID string) reconcile.PaymentSnapshot {
		return reconcile.PaymentSnapshot{
			GatewayPaymentID: paymentID,
			GatewayOrderID:   "order_1",
			Amount:           49900,
			Currency:         "INR",
			Status:           payment.StatusCaptured,
			Method:           "upi",
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		h = testutil.NewHarness(reconcile.Config{ExpireAfter: time.Hour})
		h.Orders.Seed(&gatewayorder.GatewayOrder{
			GatewayOrderID: "order_1",
			LocalOrderRef:  ref("100"),
			Amount:         49900,
			Currency:       "INR",
		})
	})

	Describe("ApplyPayment", func() {
		It("marks the order paid and emits one captured event", func() {
			res, err := h.Engine.ApplyPayment(ctx, reconcile.SourceCallback, captured("pay_1"), nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(reconcile.OutcomeApplied))
			Expect(res.MarkedPaid).To(BeTrue())
			Expect(h.Orders.Snapshot("order_1").Status).To(Equal("paid"))

			captures := h.Published.OfType(events.EventTypePaymentCaptured)
			Expect(captures).To(HaveLen(1))
			event := captures[0].(*events.PaymentCapturedEvent)
			Expect(event.LocalOrderRef).To(Equal("100"))
			Expect(event.Source).To(Equal("callback"))
		})

		It("treats a webhook after the callback as a no-op", func() {
			_, err := h.Engine.ApplyPayment(ctx, reconcile.SourceCallback, captured("pay_1"), nil)
			Expect(err).NotTo(HaveOccurred())
			before := h.Payments.Snapshot("pay_1")

			res, err := h.Engine.ApplyPayment(ctx, reconcile.SourceWebhook, captured("pay_1"), nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(reconcile.OutcomeIgnored))
			Expect(res.MarkedPaid).To(BeFalse())
			Expect(h.Payments.Snapshot("pay_1").Version).To(Equal(before.Version))
			Expect(h.Published.OfType(events.EventTypePaymentCaptured)).To(HaveLen(1))
		})

		It("leaves the order untouched when the payment belongs to another order", func() {
			h.Orders.Seed(&gatewayorder.GatewayOrder{GatewayOrderID: "order_2", Amount: 49900, Currency: "INR"})
			h.Payments.Seed(&gatewaypayment.GatewayPayment{GatewayPaymentID: "pay_1", GatewayOrderID: "order_2", Amount: 49900, Currency: "INR", Status: "authorized"})

			_, err := h.Engine.ApplyPayment(ctx, reconcile.SourceCallback, captured("pay_1"), nil)

			Expect(errors.Is(err, internal.ErrOrderMismatch)).To(BeTrue())
			Expect(h.Orders.Snapshot("order_1").Status).To(Equal("created"))
			Expect(h.Orders.Snapshot("order_1").Attempts).To(BeZero())
			Expect(h.Published.Events()).To(BeEmpty())
		})

		It("files failed after captured for review and keeps the order paid", func() {
			_, _ = h.Engine.ApplyPayment(ctx, reconcile.SourceCallback, captured("pay_1"), nil)
			failed := captured("pay_1")
			failed.Status = payment.StatusFailed

			res, err := h.Engine.ApplyPayment(ctx, reconcile.SourceWebhook, failed, []byte(`{"event":"payment.failed"}`))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(reconcile.OutcomeConflict))
			Expect(res.Conflict).NotTo(BeNil())
			Expect(res.Conflict.LocalStatus).To(Equal("captured"))
			Expect(res.Conflict.ReportedStatus).To(Equal("failed"))
			Expect(h.Orders.Snapshot("order_1").Status).To(Equal("paid"))
			Expect(h.Payments.Snapshot("pay_1").Status).To(Equal("captured"))
			Expect(h.Published.OfType(events.EventTypePaymentFailed)).To(BeEmpty())
		})

		It("moves the order to attempted and announces a failure", func() {
			failed := captured("pay_1")
			failed.Status = payment.StatusFailed
			failed.ErrorCode = "BAD_REQUEST_ERROR"

			res, err := h.Engine.ApplyPayment(ctx, reconcile.SourceWebhook, failed, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(reconcile.OutcomeApplied))
			stored := h.Orders.Snapshot("order_1")
			Expect(stored.Status).To(Equal("attempted"))
			Expect(stored.Attempts).To(Equal(1))
			Expect(h.Published.OfType(events.EventTypePaymentFailed)).To(HaveLen(1))
		})

		It("reports an unknown order", func() {
			snap := captured("pay_1")
			snap.GatewayOrderID = "order_missing"

			res, err := h.Engine.ApplyPayment(ctx, reconcile.SourceWebhook, snap, nil)

			Expect(errors.Is(err, internal.ErrOrderNotFound)).To(BeTrue())
			Expect(res.Outcome).To(Equal(reconcile.OutcomeUnknownOrder))
		})

		It("holds the side effect until a local order is attached", func() {
			h.Orders.Seed(&gatewayorder.GatewayOrder{GatewayOrderID: "order_2", Amount: 100, Currency: "INR"})
			snap := captured("pay_9")
			snap.GatewayOrderID = "order_2"

			res, err := h.Engine.ApplyPayment(ctx, reconcile.SourceWebhook, snap, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.MarkedPaid).To(BeTrue())
			Expect(h.Published.OfType(events.EventTypePaymentCaptured)).To(BeEmpty())
		})

		It("keeps a refunded report from touching refund amounts", func() {
			snap := captured("pay_1")
			snap.Status = payment.StatusRefunded

			_, err := h.Engine.ApplyPayment(ctx, reconcile.SourceSync, snap, nil)

			Expect(err).NotTo(HaveOccurred())
			stored := h.Payments.Snapshot("pay_1")
			Expect(stored.Status).To(Equal("captured"))
			Expect(stored.AmountRefunded).To(BeZero())
		})

		It("emits exactly one side effect when callback and webhook race", func() {
			const writers = 16
			var wg sync.WaitGroup
			var paid int32
			start := make(chan struct{})

			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					source := reconcile.SourceCallback
					if i%2 == 1 {
						source = reconcile.SourceWebhook
					}
					res, err := h.Engine.ApplyPayment(ctx, source, captured("pay_1"), nil)
					Expect(err).NotTo(HaveOccurred())
					if res.MarkedPaid {
						atomic.AddInt32(&paid, 1)
					}
				}(i)
			}
			close(start)
			wg.Wait()

			Expect(atomic.LoadInt32(&paid)).To(Equal(int32(1)))
			Expect(h.Published.OfType(events.EventTypePaymentCaptured)).To(HaveLen(1))
			Expect(h.Orders.Snapshot("order_1").Status).To(Equal("paid"))
			Expect(h.Payments.Snapshot("pay_1").Status).To(Equal("captured"))
		})
	})

	Describe("Process", func() {
		delivery := reconcile.Delivery{
			Source:         reconcile.SourceWebhook,
			EventType:      "payment.captured",
			IdempotencyKey: "payment.captured:pay_1:evt_1",
			GatewayOrderID: "order_1",
			Payload:        []byte(`{}`),
			SignatureValid: true,
		}

		It("runs a delivery once and acknowledges replays", func() {
			calls := 0
			fn := func(context.Context) (reconcile.Outcome, error) {
				calls++
				return reconcile.OutcomeApplied, nil
			}

			first, err := h.Engine.Process(ctx, delivery, fn)
			Expect(err).NotTo(HaveOccurred())
			second, err := h.Engine.Process(ctx, delivery, fn)
			Expect(err).NotTo(HaveOccurred())

			Expect(first).To(Equal(reconcile.OutcomeApplied))
			Expect(second).To(Equal(reconcile.OutcomeDuplicate))
			Expect(calls).To(Equal(1))
			recorded := h.Events.All()
			Expect(recorded).To(HaveLen(1))
			Expect(*recorded[0].Outcome).To(Equal("applied"))
		})

		It("processes a delivery again after a failed run", func() {
			boom := errors.New("database unavailable")
			_, err := h.Engine.Process(ctx, delivery, func(context.Context) (reconcile.Outcome, error) {
				return "", boom
			})
			Expect(err).To(MatchError(boom))

			outcome, err := h.Engine.Process(ctx, delivery, func(context.Context) (reconcile.Outcome, error) {
				return reconcile.OutcomeApplied, nil
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(reconcile.OutcomeApplied))
		})
	})

	Describe("ApplyRefund", func() {
		It("files a refund for an uncaptured payment for review", func() {
			h.Payments.Seed(&gatewaypayment.GatewayPayment{GatewayPaymentID: "pay_1", GatewayOrderID: "order_1", Amount: 49900, Currency: "INR", Status: "authorized"})

			res, err := h.Engine.ApplyRefund(ctx, reconcile.SourceWebhook, razorpay.Refund{ID: "rfnd_1", PaymentID: "pay_1", Amount: 100}, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(reconcile.OutcomeConflict))
			Expect(h.Conflicts.All()).To(HaveLen(1))
			Expect(h.Payments.Snapshot("pay_1").AmountRefunded).To(BeZero())
		})

		It("ignores a refund for an unknown payment", func() {
			res, err := h.Engine.ApplyRefund(ctx, reconcile.SourceWebhook, razorpay.Refund{ID: "rfnd_1", PaymentID: "pay_x", Amount: 100}, nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(reconcile.OutcomeIgnored))
		})

		It("reports a replayed refund as ignored", func() {
			h.Payments.Seed(&gatewaypayment.GatewayPayment{GatewayPaymentID: "pay_1", GatewayOrderID: "order_1", Amount: 49900, Currency: "INR", Status: "captured"})
			refund := razorpay.Refund{ID: "rfnd_1", PaymentID: "pay_1", Amount: 900, Status: "processed"}

			first, err := h.Engine.ApplyRefund(ctx, reconcile.SourceWebhook, refund, nil)
			Expect(err).NotTo(HaveOccurred())
			second, err := h.Engine.ApplyRefund(ctx, reconcile.SourceWebhook, refund, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(first.Outcome).To(Equal(reconcile.OutcomeApplied))
			Expect(second.Outcome).To(Equal(reconcile.OutcomeIgnored))
			Expect(h.Payments.Snapshot("pay_1").AmountRefunded).To(Equal(int64(900)))
		})
	})

	Describe("Sync", func() {
		It("applies payments the provider knows about", func() {
			h.Gateway.SetOrder(razorpay.Order{ID: "order_1", Amount: 49900, Currency: "INR", Status: razorpay.OrderStatusPaid})
			h.Gateway.SetPayment(razorpay.Payment{ID: "pay_a", OrderID: "order_1", Amount: 49900, Currency: "INR", Status: "failed"})
			h.Gateway.SetPayment(razorpay.Payment{ID: "pay_b", OrderID: "order_1", Amount: 49900, Currency: "INR", Status: "captured", Method: "card"})

			report, err := h.Engine.Sync(ctx, "order_1")

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Payments).To(Equal(2))
			Expect(report.OrderStatus).To(Equal("paid"))
			Expect(h.Payments.Snapshot("pay_b").Status).To(Equal("captured"))
			Expect(h.Published.OfType(events.EventTypePaymentCaptured)).To(HaveLen(1))
			Expect(h.Events.All()).To(HaveLen(1))
		})

		It("catches up on refunds the local record missed", func() {
			h.Payments.Seed(&gatewaypayment.GatewayPayment{GatewayPaymentID: "pay_b", GatewayOrderID: "order_1", Amount: 49900, Currency: "INR", Status: "captured"})
			h.Gateway.SetOrder(razorpay.Order{ID: "order_1", Status: razorpay.OrderStatusPaid})
			h.Gateway.SetPayment(razorpay.Payment{ID: "pay_b", OrderID: "order_1", Amount: 49900, Currency: "INR", Status: "refunded", AmountRefunded: 49900})
			h.Gateway.AddRefund(razorpay.Refund{ID: "rfnd_1", PaymentID: "pay_b", Amount: 9900, Status: "processed"})
			h.Gateway.AddRefund(razorpay.Refund{ID: "rfnd_2", PaymentID: "pay_b", Amount: 40000, Status: "processed"})

			report, err := h.Engine.Sync(ctx, "order_1")

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Refunds).To(Equal(2))
			stored := h.Payments.Snapshot("pay_b")
			Expect(stored.Status).To(Equal("refunded"))
			Expect(stored.AmountRefunded).To(Equal(int64(49900)))
		})

		It("expires an old order the provider never saw paid", func() {
			h.Orders.Seed(&gatewayorder.GatewayOrder{
				GatewayOrderID: "order_old",
				Amount:         100,
				Currency:       "INR",
				CreatedAt:      time.Now().Add(-2 * time.Hour),
			})
			h.Gateway.SetOrder(razorpay.Order{ID: "order_old", Status: razorpay.OrderStatusAttempted})

			report, err := h.Engine.Sync(ctx, "order_old")

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Expired).To(BeTrue())
			Expect(h.Orders.Snapshot("order_old").Status).To(Equal("expired"))
		})

		It("returns provider failures without touching local state", func() {
			h.Gateway.FetchErr = internal.ErrProviderUnavailable

			_, err := h.Engine.Sync(ctx, "order_1")

			Expect(errors.Is(err, internal.ErrProviderUnavailable)).To(BeTrue())
			Expect(h.Orders.Snapshot("order_1").Status).To(Equal("created"))
		})

		It("rejects unknown orders", func() {
			_, err := h.Engine.Sync(ctx, "order_none")

			Expect(errors.Is(err, internal.ErrOrderNotFound)).To(BeTrue())
		})

		It("does not expire orders younger than the threshold", func() {
			h.Gateway.SetOrder(razorpay.Order{ID: "order_1", Status: razorpay.OrderStatusCreated})

			report, err := h.Engine.Sync(ctx, "order_1")

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Expired).To(BeFalse())
			Expect(report.OrderStatus).To(Equal("created"))
		})
	})

	It("keeps a unique key per sync run", func() {
		h.Gateway.SetOrder(razorpay.Order{ID: "order_1", Status: razorpay.OrderStatusCreated})
		for i := 0; i < 3; i++ {
			_, err := h.Engine.Sync(ctx, "order_1")
			Expect(err).NotTo(HaveOccurred(), fmt.Sprintf("run %d", i))
		}
		Expect(h.Events.All()).To(HaveLen(3))
	})
})
