// Package dispatch hands named background jobs to a worker backend.
//
// Enqueue never blocks on execution and never reports the job's outcome.
// Errors only mean the job was not accepted; callers log and drop them.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/okian/pinnacle/internal/domain/model"
)

// Dispatcher accepts jobs for asynchronous execution.
type Dispatcher interface {
	Enqueue(ctx context.Context, name string, args ...string) error
	// Kind names the backend, e.g. "memory" or "rabbitmq".
	Kind() string
	Close() error
}

func newJob(name string, args []string) model.Job {
	return model.Job{
		ID:         uuid.NewString(),
		Name:       name,
		Args:       append([]string(nil), args...),
		EnqueuedAt: time.Now().UTC(),
	}
}
