package engine

import (
	"context"

	"go.uber.org/zap"
)

// Job is one queued backtest run. Run owns the whole lifecycle: executing the
// backtest, persisting and publishing the result.
type Job struct {
	SessionID string
	Run       func(ctx context.Context)
}

// WorkerPool executes queued backtest runs concurrently. Runs are independent
// of each other; each individual run stays strictly sequential inside.
type WorkerPool struct {
	jobQueue    chan Job
	workerCount int
	logger      *zap.Logger
}

func NewWorkerPool(workerCount int, bufferSize int, logger *zap.Logger) *WorkerPool {
	return &WorkerPool{
		jobQueue:    make(chan Job, bufferSize),
		workerCount: workerCount,
		logger:      logger,
	}
}

func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(ctx, i)
	}
	p.logger.Info("started backtest worker pool", zap.Int("workers", p.workerCount))
}

// Submit enqueues a job without blocking; it reports whether the queue had
// room.
func (p *WorkerPool) Submit(job Job) bool {
	select {
	case p.jobQueue <- job:
		return true
	default:
		p.logger.Warn("backtest queue full, rejecting job", zap.String("session", job.SessionID))
		return false
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.logger.Info("worker picked up backtest",
				zap.Int("worker_id", id),
				zap.String("session", job.SessionID),
			)
			job.Run(ctx)
		}
	}
}
