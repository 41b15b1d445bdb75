package syncer_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/frahmantamala/razorpay-reconciliation/internal/syncer"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pool", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	It("runs every submitted job", func() {
		var (
			mu   sync.Mutex
			seen = map[string]int{}
		)
		pool := syncer.NewPool(syncer.PoolConfig{MaxWorkers: 3, QueueSize: 20}, func(_ context.Context, job syncer.Job) {
			mu.Lock()
			seen[job.GatewayOrderID]++
			mu.Unlock()
		}, logger)
		defer pool.Shutdown()

		for i := 0; i < 10; i++ {
			ok, err := pool.Submit(syncer.Job{GatewayOrderID: fmt.Sprintf("order_%d", i)})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		}

		Eventually(pool.Pending).Should(BeZero())
		mu.Lock()
		defer mu.Unlock()
		Expect(seen).To(HaveLen(10))
		for _, n := range seen {
			Expect(n).To(Equal(1))
		}
	})

	It("does not queue an order twice while it is pending", func() {
		release := make(chan struct{})
		pool := syncer.NewPool(syncer.PoolConfig{MaxWorkers: 1, QueueSize: 5}, func(_ context.Context, _ syncer.Job) {
			<-release
		}, logger)
		defer pool.Shutdown()

		first, err := pool.Submit(syncer.Job{GatewayOrderID: "order_1"})
		Expect(err).NotTo(HaveOccurred())
		second, err := pool.Submit(syncer.Job{GatewayOrderID: "order_1"})
		Expect(err).NotTo(HaveOccurred())

		Expect(first).To(BeTrue())
		Expect(second).To(BeFalse())
		Expect(pool.Pending()).To(Equal(1))

		close(release)
		Eventually(pool.Pending).Should(BeZero())

		again, err := pool.Submit(syncer.Job{GatewayOrderID: "order_1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(BeTrue())
	})

	It("rejects work when the queue is full", func() {
		release := make(chan struct{})
		pool := syncer.NewPool(syncer.PoolConfig{MaxWorkers: 1, QueueSize: 1}, func(_ context.Context, _ syncer.Job) {
			<-release
		}, logger)
		defer pool.Shutdown()
		defer close(release)

		var full error
		for i := 0; i < 5 && full == nil; i++ {
			_, full = pool.Submit(syncer.Job{GatewayOrderID: fmt.Sprintf("order_%d", i)})
		}

		Expect(full).To(MatchError(syncer.ErrQueueFull))
	})
})
