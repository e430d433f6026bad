package api

import (
	"net/netip"

	"github.com/okian/pinnacle/pkg/logger"
)

const defaultIngestRatePerMinute = 120

// Option configures a Server.
type Option func(*options)

type options struct {
	logger              logger.Logger
	ingestRatePerMinute int
	trustedProxies      []netip.Prefix
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIngestRate bounds POST /api/leads per client IP. Zero disables the limit.
func WithIngestRate(perMinute int) Option {
	return func(o *options) {
		if perMinute >= 0 {
			o.ingestRatePerMinute = perMinute
		}
	}
}

// WithTrustedProxies lists the proxies whose forwarding headers are believed
// when keying the ingest limit. Without it the limit keys on the peer address.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(o *options) {
		o.trustedProxies = append([]netip.Prefix(nil), prefixes...)
	}
}
