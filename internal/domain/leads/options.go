package leads

import (
	"time"

	"github.com/okian/pinnacle/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLeadTTL sets how long a synced email is remembered.
func WithLeadTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.leadTTL = d
		}
	}
}

// WithListTTL sets how long the lead directory read is cached.
func WithListTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.listTTL = d
		}
	}
}

// WithWelcomeMessage sets the message sent to first-seen leads.
func WithWelcomeMessage(msg string) Option {
	return func(s *Service) {
		if msg != "" {
			s.welcome = msg
		}
	}
}

// WithSource sets the upstream lead directory.
func WithSource(src Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
