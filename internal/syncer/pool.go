package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrQueueFull = errors.New("sync queue full, please try again later")

type Job struct {
	GatewayOrderID string
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(context.Context, Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "gateway_order_id", job.GatewayOrderID)
				processFunc(ctx, job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type PoolConfig struct {
	MaxWorkers int
	QueueSize  int
}

// Pool runs sync jobs on a fixed set of workers. An order already queued or
// in progress is not queued again.
type Pool struct {
	logger  *slog.Logger
	process func(context.Context, Job)

	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewPool(config PoolConfig, process func(context.Context, Job), logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	p := &Pool{
		logger:     logger,
		jobQueue:   make(chan Job, queueSize),
		workerPool: make(chan chan Job, maxWorkers),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		inFlight:   make(map[string]struct{}),
	}
	p.process = func(ctx context.Context, job Job) {
		defer p.release(job.GatewayOrderID)
		process(ctx, job)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.maxWorkers; i++ {
			NewWorker(i, p.workerPool, p.logger).Start(p.ctx, &p.wg, p.process)
		}

		p.wg.Add(1)
		go p.dispatch()

		p.logger.Info("sync worker pool started",
			"max_workers", p.maxWorkers,
			"queue_size", cap(p.jobQueue))
	})
}

func (p *Pool) dispatch() {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			select {
			case jobChannel := <-p.workerPool:
				select {
				case jobChannel <- job:
				case <-p.ctx.Done():
					p.logger.Info("sync dispatcher shutting down")
					return
				}
			case <-p.ctx.Done():
				p.logger.Info("sync dispatcher shutting down")
				return
			}
		case <-p.ctx.Done():
			p.logger.Info("sync dispatcher shutting down")
			return
		}
	}
}

// Submit queues a job without blocking. It reports false when the order is
// already queued.
func (p *Pool) Submit(job Job) (bool, error) {
	p.mu.Lock()
	if _, busy := p.inFlight[job.GatewayOrderID]; busy {
		p.mu.Unlock()
		return false, nil
	}
	p.inFlight[job.GatewayOrderID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.jobQueue <- job:
		return true, nil
	default:
		p.release(job.GatewayOrderID)
		p.logger.Warn("sync queue full, dropping job",
			"gateway_order_id", job.GatewayOrderID,
			"queue_capacity", cap(p.jobQueue))
		return false, ErrQueueFull
	}
}

func (p *Pool) release(gatewayOrderID string) {
	p.mu.Lock()
	delete(p.inFlight, gatewayOrderID)
	p.mu.Unlock()
}

// Pending is the number of orders queued or in progress.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

func (p *Pool) Shutdown() {
	p.logger.Info("shutting down sync worker pool")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("sync worker pool shutdown complete")
}
