package render

import "github.com/okian/pinnacle/pkg/logger"

// Option applies a configuration option to the PDFRenderer.
type Option func(*PDFRenderer)

// WithLogger sets a custom logger for the renderer.
func WithLogger(l logger.Logger) Option {
	return func(r *PDFRenderer) {
		if l != nil {
			r.logger = l
		}
	}
}
