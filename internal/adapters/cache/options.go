package cache

import (
	"time"

	"github.com/okian/pinnacle/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithTimeout bounds every backend call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
