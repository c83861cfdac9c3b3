package ledger

import (
	"github.com/Klingon-tech/scrooge-ledger/internal/log"
	"github.com/rs/zerolog"
)

// Options configures a Handler.
type Options struct {
	logger  zerolog.Logger
	metrics bool
}

// Option is a function that sets some option on the Options struct.
type Option func(*Options)

// NewDefaultOptions returns options logging to the ledger component
// logger with metrics enabled.
func NewDefaultOptions() *Options {
	return &Options{
		logger:  log.Ledger,
		metrics: true,
	}
}

// ProcessOptions applies opts over the defaults.
func ProcessOptions(opts ...Option) *Options {
	options := NewDefaultOptions()
	for _, o := range opts {
		o(options)
	}

	return options
}

// WithLogger sets the logger rejections and batch summaries go to.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

// WithMetrics enables or disables prometheus metrics.
func WithMetrics(enabled bool) Option {
	return func(o *Options) {
		o.metrics = enabled
	}
}
