package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/kilupskalvis/indexsync/internal/metrics"
	"github.com/kilupskalvis/indexsync/internal/models"
)

// Processor runs index jobs.
type Processor interface {
	ProcessJob(ctx context.Context, job models.IndexJob) error
	JobTitle(ctx context.Context, job models.IndexJob) string
}

// Worker drains a queue through a processor.
type Worker struct {
	queue    *Queue
	proc     Processor
	logger   *slog.Logger
	interval time.Duration
}

// NewWorker creates a worker polling every interval.
func NewWorker(q *Queue, proc Processor, logger *slog.Logger, interval time.Duration) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{queue: q, proc: proc, logger: logger, interval: interval}
}

// RunOnce processes every waiting job and returns how many succeeded.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	processed, failed, err := w.queue.Drain(ctx, func(job models.IndexJob) error {
		w.logger.Info(w.proc.JobTitle(ctx, job))
		if err := w.proc.ProcessJob(ctx, job); err != nil {
			w.logger.Error("index job failed", "type", job.Type, "id", job.ID, "stage", job.Stage, "error", err)
			metrics.JobsProcessed.WithLabelValues("failed").Inc()
			return err
		}
		metrics.JobsProcessed.WithLabelValues("done").Inc()
		return nil
	})
	if failed > 0 {
		w.logger.Warn("some index jobs failed", "failed", failed)
	}
	return processed, err
}

// Run drains the queue until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("queue drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
