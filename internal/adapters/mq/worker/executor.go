package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/okian/pinnacle/internal/domain/model"
	"github.com/okian/pinnacle/pkg/logger"
	"github.com/okian/pinnacle/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
)

// Handler performs one job. Returning an error wrapped with Permanent stops
// further attempts.
type Handler func(ctx context.Context, job model.Job) error

// Registry maps job names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to h, replacing any previous binding.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Lookup returns the handler bound to name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered job names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Executor runs jobs through the registry with retries and an optional rate
// limit on attempts.
type Executor struct {
	registry       *Registry
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	limiter        *rate.Limiter
	logger         logger.Logger
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:       registry,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		logger:         logger.Get().Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs job until it succeeds, fails permanently, exhausts its
// retries or ctx ends.
func (e *Executor) Execute(ctx context.Context, job model.Job) error {
	start := time.Now()
	handler, ok := e.registry.Lookup(job.Name)
	if !ok {
		metrics.RecordJobProcessed(job.Name, "unknown", msSince(start))
		return fmt.Errorf("%w: %q", ErrUnknownJob, job.Name)
	}

	var err error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordJobRetry(job.Name)
			if werr := sleepCtx(ctx, e.backoff(attempt)); werr != nil {
				err = errors.Join(err, werr)
				break
			}
		}
		if e.limiter != nil {
			if werr := e.limiter.Wait(ctx); werr != nil {
				err = errors.Join(err, werr)
				break
			}
		}

		err = handler(ctx, job)
		if err == nil {
			metrics.RecordJobProcessed(job.Name, "success", msSince(start))
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			break
		}
		e.logger.Warn(ctx, "job attempt failed",
			logger.String("job", job.Name),
			logger.String("job_id", job.ID),
			logger.Int("attempt", attempt+1),
			logger.Error(err),
		)
	}

	metrics.RecordJobProcessed(job.Name, "failure", msSince(start))
	metrics.RecordErrorByComponent("worker", job.Name)
	return fmt.Errorf("job %s (%s): %w", job.Name, job.ID, err)
}

// backoff doubles from initialBackoff up to maxBackoff, jittered into the
// upper half of the interval.
func (e *Executor) backoff(attempt int) time.Duration {
	d := e.initialBackoff << (attempt - 1)
	if d <= 0 || d > e.maxBackoff {
		d = e.maxBackoff
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
