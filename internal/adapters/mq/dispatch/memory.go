package dispatch

import (
	"context"
	"errors"

	"github.com/okian/pinnacle/internal/adapters/mq/queue"
	"github.com/okian/pinnacle/pkg/logger"
	"github.com/okian/pinnacle/pkg/metrics"
)

// KindMemory names the in-process dispatcher.
const KindMemory = "memory"

// Memory dispatches onto an in-process queue drained by a worker pool.
type Memory struct {
	queue  queue.Queue
	logger logger.Logger
}

// NewMemory wraps q.
func NewMemory(q queue.Queue, opts ...Option) *Memory {
	o := applyOptions(opts)
	return &Memory{queue: q, logger: o.logger.Named("dispatch.memory")}
}

// Enqueue returns ErrQueueFull or ErrClosed without blocking.
func (m *Memory) Enqueue(ctx context.Context, name string, args ...string) error {
	if name == "" {
		return ErrNoJobName
	}
	job := newJob(name, args)
	if err := m.queue.Enqueue(ctx, job); err != nil {
		metrics.RecordJobDropped(name, dropReason(err))
		return err
	}
	metrics.RecordJobEnqueued(name, KindMemory)
	m.logger.Debug(ctx, "job enqueued", logger.String("job", name), logger.String("job_id", job.ID))
	return nil
}

func (m *Memory) Kind() string { return KindMemory }

// Close stops accepting jobs.
func (m *Memory) Close() error {
	return m.queue.Close()
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "error"
	}
}
