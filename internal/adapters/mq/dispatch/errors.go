package dispatch

import (
	"errors"

	"github.com/okian/pinnacle/internal/adapters/mq/queue"
)

// Sentinel kinds for dispatch errors.
var (
	ErrQueueFull   = queue.ErrQueueFull
	ErrClosed      = queue.ErrClosed
	ErrNoJobName   = errors.New("job name is required")
	ErrBadDelivery = errors.New("undecodable job delivery")
)
