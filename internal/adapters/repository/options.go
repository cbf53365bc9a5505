package repository

import (
	"github.com/okian/laptimer/pkg/logger"
)

type options struct {
	logger logger.Logger
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("repository")
	}
	return o
}
