package worker

import (
	"time"

	"github.com/okian/pinnacle/pkg/logger"
	"golang.org/x/time/rate"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// ExecutorOption applies a configuration option to the Executor.
type ExecutorOption func(*Executor)

// WithMaxRetries sets how many extra attempts follow a failed one.
func WithMaxRetries(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithBackoff sets the first retry delay and the cap.
func WithBackoff(initial, maxDelay time.Duration) ExecutorOption {
	return func(e *Executor) {
		if initial > 0 {
			e.initialBackoff = initial
		}
		if maxDelay >= e.initialBackoff {
			e.maxBackoff = maxDelay
		}
	}
}

// WithRateLimit throttles job attempts, e.g. outbound SMS and WhatsApp sends.
func WithRateLimit(l *rate.Limiter) ExecutorOption {
	return func(e *Executor) {
		e.limiter = l
	}
}

// WithExecutorLogger sets a custom logger for the executor.
func WithExecutorLogger(l logger.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}
