package quotes

import "github.com/okian/pinnacle/pkg/logger"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithCurrency sets the symbol prefixed to rendered prices.
func WithCurrency(symbol string) Option {
	return func(e *Engine) {
		e.currency = symbol
	}
}

// WithIDGenerator replaces the quote id generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
