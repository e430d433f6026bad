package dispatch

import "github.com/okian/pinnacle/pkg/logger"

// Option configures a dispatcher or consumer.
type Option func(*options)

type options struct {
	logger   logger.Logger
	topology Topology
	prefetch int
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTopology overrides exchange and queue names.
func WithTopology(t Topology) Option {
	return func(o *options) {
		o.topology = t
	}
}

// WithPrefetch bounds unacknowledged deliveries per consumer, which is also
// the number of jobs a consumer runs concurrently.
func WithPrefetch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.prefetch = n
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger:   logger.Get(),
		topology: DefaultTopology(),
		prefetch: 4,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
