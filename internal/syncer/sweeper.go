package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
)

type StaleLister interface {
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*order.GatewayOrder, error)
}

type Syncer interface {
	Sync(ctx context.Context, gatewayOrderID string) (*reconcile.SyncReport, error)
}

type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
	MaxWorkers int
	QueueSize  int
	// JobTimeout bounds a single order sync.
	JobTimeout time.Duration
}

// Sweeper periodically re-syncs unpaid orders that have gone quiet, catching
// webhooks that never arrived.
type Sweeper struct {
	orders StaleLister
	engine Syncer
	config Config
	pool   *Pool
	logger *slog.Logger
}

func NewSweeper(orders StaleLister, engine Syncer, config Config, logger *slog.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 15 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}
	s := &Sweeper{orders: orders, engine: engine, config: config, logger: logger}
	s.pool = NewPool(PoolConfig{MaxWorkers: config.MaxWorkers, QueueSize: config.QueueSize}, s.syncOrder, logger)
	return s
}

// Run sweeps on every tick until ctx is cancelled, then stops the workers.
func (s *Sweeper) Run(ctx context.Context) error {
	defer s.pool.Shutdown()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("sync sweeper started",
		"interval", s.config.Interval,
		"stale_after", s.config.StaleAfter,
		"batch_size", s.config.BatchSize)

	if _, err := s.SweepOnce(ctx); err != nil {
		s.logger.Error("sync sweep failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync sweeper stopping")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("sync sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce queues every stale order and returns how many were queued.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	stale, err := s.orders.ListStale(ctx, s.config.StaleAfter, s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, o := range stale {
		ok, err := s.pool.Submit(Job{GatewayOrderID: o.GatewayOrderID})
		if errors.Is(err, ErrQueueFull) {
			break
		}
		if ok {
			queued++
		}
	}
	if queued > 0 {
		s.logger.Info("stale orders queued for sync", "queued", queued, "found", len(stale))
	}
	return queued, nil
}

// Pending reports orders queued or still syncing.
func (s *Sweeper) Pending() int {
	return s.pool.Pending()
}

func (s *Sweeper) Shutdown() {
	s.pool.Shutdown()
}

func (s *Sweeper) syncOrder(ctx context.Context, job Job) {
	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	report, err := s.engine.Sync(ctx, job.GatewayOrderID)
	if err != nil {
		s.logger.Warn("order sync failed", "gateway_order_id", job.GatewayOrderID, "error", err)
		return
	}
	s.logger.Debug("order sync finished",
		"gateway_order_id", job.GatewayOrderID,
		"order_status", report.OrderStatus,
		"applied", report.Applied)
}
