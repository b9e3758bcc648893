// internal/transport/options.go
package transport

import "go.uber.org/zap"

type options struct {
	log *zap.Logger
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger used for exchange diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}
