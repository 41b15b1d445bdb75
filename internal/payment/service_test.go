package payment_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewaypayment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/testutil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func strPtr(s string) *string { return &s }

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		store   *testutil.PaymentStore
		gateway *testutil.Gateway
		service *payment.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = testutil.NewPaymentStore()
		gateway = testutil.NewGateway()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = payment.NewService(store, gateway, nil, logger)
	})

	report := func(id string, status payment.Status) *payment.GatewayPayment {
		return &payment.GatewayPayment{
			GatewayPaymentID: id,
			GatewayOrderID:   "order_1",
			Amount:           10000,
			Currency:         "INR",
			Status:           status,
		}
	}

	Describe("Upsert", func() {
		It("creates a new payment at version 1", func() {
			res, err := service.Upsert(ctx, report("pay_1", payment.StatusAuthorized))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Created).To(BeTrue())
			Expect(res.Payment.Version).To(Equal(1))
			Expect(res.Payment.Status).To(Equal(payment.StatusAuthorized))
		})

		It("moves forward and fills missing attributes", func() {
			// Given
			_, err := service.Upsert(ctx, report("pay_1", payment.StatusAuthorized))
			Expect(err).NotTo(HaveOccurred())

			// When
			captured := report("pay_1", payment.StatusCaptured)
			captured.Method = strPtr("upi")
			captured.VPA = strPtr("someone@okbank")
			res, err := service.Upsert(ctx, captured)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusChanged).To(BeTrue())
			Expect(res.PreviousStatus).To(Equal(payment.StatusAuthorized))
			stored := store.Snapshot("pay_1")
			Expect(stored.Status).To(Equal("captured"))
			Expect(*stored.Method).To(Equal("upi"))
			Expect(stored.CapturedAt).NotTo(BeNil())
			Expect(stored.Version).To(Equal(2))
		})

		It("never moves backward for any order of the success path", func() {
			path := []payment.Status{payment.StatusCreated, payment.StatusAuthorized, payment.StatusCaptured}
			orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

			for i, seq := range orders {
				id := fmt.Sprintf("pay_perm%d", i)
				for _, idx := range seq {
					r := report(id, path[idx])
					r.GatewayOrderID = fmt.Sprintf("order_perm%d", i)
					_, err := service.Upsert(ctx, r)
					Expect(err).NotTo(HaveOccurred())
				}
				Expect(store.Snapshot(id).Status).To(Equal("captured"), "sequence %v", seq)
			}
		})

		It("ignores a repeated report without bumping the version", func() {
			_, _ = service.Upsert(ctx, report("pay_1", payment.StatusCaptured))

			res, err := service.Upsert(ctx, report("pay_1", payment.StatusCaptured))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusChanged).To(BeFalse())
			Expect(store.Snapshot("pay_1").Version).To(Equal(1))
		})

		It("flags failed after captured as a conflict and keeps the record", func() {
			_, _ = service.Upsert(ctx, report("pay_1", payment.StatusCaptured))

			_, err := service.Upsert(ctx, report("pay_1", payment.StatusFailed))

			Expect(errors.Is(err, internal.ErrStateConflict)).To(BeTrue())
			appErr, _ := internal.IsAppError(err)
			details, ok := appErr.Details.(payment.ConflictDetails)
			Expect(ok).To(BeTrue())
			Expect(details.LocalStatus).To(Equal(payment.StatusCaptured))
			Expect(details.ReportedStatus).To(Equal(payment.StatusFailed))
			Expect(store.Snapshot("pay_1").Status).To(Equal("captured"))
		})

		It("flags a second captured payment on the same order", func() {
			_, _ = service.Upsert(ctx, report("pay_1", payment.StatusCaptured))

			_, err := service.Upsert(ctx, report("pay_2", payment.StatusCaptured))

			Expect(errors.Is(err, internal.ErrStateConflict)).To(BeTrue())
			Expect(store.Snapshot("pay_2")).To(BeNil())
		})

		It("rejects a payment reported against another order", func() {
			_, _ = service.Upsert(ctx, report("pay_1", payment.StatusAuthorized))
			other := report("pay_1", payment.StatusCaptured)
			other.GatewayOrderID = "order_2"

			_, err := service.Upsert(ctx, other)

			Expect(errors.Is(err, internal.ErrOrderMismatch)).To(BeTrue())
		})

		It("keeps the error fields of a failed payment", func() {
			failed := report("pay_1", payment.StatusFailed)
			failed.ErrorCode = strPtr("BAD_REQUEST_ERROR")
			failed.ErrorDescription = strPtr("Payment was declined by the bank")

			res, err := service.Upsert(ctx, failed)

			Expect(err).NotTo(HaveOccurred())
			Expect(*res.Payment.ErrorDescription).To(ContainSubstring("declined"))
		})
	})

	Describe("RecordRefund", func() {
		BeforeEach(func() {
			store.Seed(&gatewaypayment.GatewayPayment{
				GatewayPaymentID: "pay_1",
				GatewayOrderID:   "order_1",
				Amount:           10000,
				Currency:         "INR",
				Status:           "captured",
			})
		})

		It("keeps a partial refund captured", func() {
			p, err := service.RecordRefund(ctx, payment.RefundInput{GatewayPaymentID: "pay_1", GatewayRefundID: "rfnd_1", Amount: 4000})

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusCaptured))
			Expect(p.AmountRefunded).To(Equal(int64(4000)))
		})

		It("marks the payment refunded once the full amount is returned", func() {
			_, err := service.RecordRefund(ctx, payment.RefundInput{GatewayPaymentID: "pay_1", GatewayRefundID: "rfnd_1", Amount: 4000})
			Expect(err).NotTo(HaveOccurred())

			p, err := service.RecordRefund(ctx, payment.RefundInput{GatewayPaymentID: "pay_1", GatewayRefundID: "rfnd_2", Amount: 6000})

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusRefunded))
			Expect(p.AmountRefunded).To(Equal(int64(10000)))
		})

		It("fails without changing anything when the refund exceeds the captured amount", func() {
			_, _ = service.RecordRefund(ctx, payment.RefundInput{GatewayPaymentID: "pay_1", GatewayRefundID: "rfnd_1", Amount: 9000})
			before := store.Snapshot("pay_1")

			_, err := service.RecordRefund(ctx, payment.RefundInput{GatewayPaymentID: "pay_1", GatewayRefundID: "rfnd_2", Amount: 1001})

			Expect(errors.Is(err, internal.ErrRefundExceedsCaptured)).To(BeTrue())
			Expect(store.Snapshot("pay_1")).To(Equal(before))
			Expect(store.RefundCount()).To(Equal(1))
		})

		It("applies each refund id once", func() {
			in := payment.RefundInput{GatewayPaymentID: "pay_1", GatewayRefundID: "rfnd_1", Amount: 2500}
			_, err := service.RecordRefund(ctx, in)
			Expect(err).NotTo(HaveOccurred())

			p, err := service.RecordRefund(ctx, in)

			Expect(err).NotTo(HaveOccurred())
			Expect(p.AmountRefunded).To(Equal(int64(2500)))
		})

		It("refuses refunds for uncaptured payments", func() {
			store.Seed(&gatewaypayment.GatewayPayment{GatewayPaymentID: "pay_2", GatewayOrderID: "order_1", Amount: 100, Currency: "INR", Status: "authorized"})

			_, err := service.RecordRefund(ctx, payment.RefundInput{GatewayPaymentID: "pay_2", GatewayRefundID: "rfnd_9", Amount: 100})

			Expect(errors.Is(err, internal.ErrNotCaptured)).To(BeTrue())
		})
	})

	Describe("Refund", func() {
		BeforeEach(func() {
			store.Seed(&gatewaypayment.GatewayPayment{
				GatewayPaymentID: "pay_1",
				GatewayOrderID:   "order_1",
				Amount:           10000,
				Currency:         "INR",
				Status:           "captured",
			})
		})

		It("refunds a major-unit amount through the provider", func() {
			amount := "25.50"

			p, refund, err := service.Refund(ctx, "pay_1", payment.RefundRequestDTO{Amount: &amount})

			Expect(err).NotTo(HaveOccurred())
			Expect(refund.Amount).To(Equal(int64(2550)))
			Expect(p.AmountRefunded).To(Equal(int64(2550)))
			Expect(gateway.Refunds).To(HaveLen(1))
		})

		It("refunds the remainder when no amount is given", func() {
			p, _, err := service.Refund(ctx, "pay_1", payment.RefundRequestDTO{})

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusRefunded))
		})

		It("does not call the provider for an excessive amount", func() {
			amount := "100.01"

			_, _, err := service.Refund(ctx, "pay_1", payment.RefundRequestDTO{Amount: &amount})

			Expect(errors.Is(err, internal.ErrRefundExceedsCaptured)).To(BeTrue())
			Expect(gateway.Refunds).To(BeEmpty())
		})

		It("records nothing when the provider is unavailable", func() {
			gateway.RefundErr = internal.ErrProviderUnavailable

			_, _, err := service.Refund(ctx, "pay_1", payment.RefundRequestDTO{})

			Expect(errors.Is(err, internal.ErrProviderUnavailable)).To(BeTrue())
			Expect(store.Snapshot("pay_1").AmountRefunded).To(BeZero())
		})
	})
})
