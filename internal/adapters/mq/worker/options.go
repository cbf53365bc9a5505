package worker

import (
	"github.com/okian/laptimer/pkg/logger"
)

// Option applies a configuration option to a worker.
type Option func(*base)

// WithName sets the worker name used for logging.
func WithName(name string) Option {
	return func(b *base) {
		if name != "" {
			b.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}
