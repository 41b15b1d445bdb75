package logger_test

import (
	"bytes"
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/razorpay-reconciliation/pkg/logger"
)

var _ = Describe("logger", func() {
	It("parses levels leniently", func() {
		Expect(logger.ParseLevel("DEBUG")).To(Equal(slog.LevelDebug))
		Expect(logger.ParseLevel("warning")).To(Equal(slog.LevelWarn))
		Expect(logger.ParseLevel("error")).To(Equal(slog.LevelError))
		Expect(logger.ParseLevel("verbose")).To(Equal(slog.LevelInfo))
	})

	Describe("context fields", func() {
		It("accumulates fields and applies them to the given logger", func() {
			var buf bytes.Buffer
			base := slog.New(slog.NewTextHandler(&buf, nil))

			ctx := logger.With(context.Background(), "request_id", "req-1")
			ctx = logger.With(ctx, "admin_user_id", int64(7))
			logger.Scoped(ctx, base).Info("refund issued")

			Expect(logger.Fields(ctx)).To(HaveLen(4))
			Expect(buf.String()).To(ContainSubstring("request_id=req-1"))
			Expect(buf.String()).To(ContainSubstring("admin_user_id=7"))
		})

		It("does not leak fields into the parent context", func() {
			parent := logger.With(context.Background(), "request_id", "req-1")
			_ = logger.With(parent, "admin_user_id", int64(7))

			Expect(logger.Fields(parent)).To(Equal([]any{"request_id", "req-1"}))
		})

		It("returns the logger untouched without fields", func() {
			base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
			Expect(logger.Scoped(context.Background(), base)).To(BeIdenticalTo(base))
		})
	})
})
