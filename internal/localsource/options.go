package localsource

import (
	"log/slog"

	"github.com/agentworkforce/botsync/internal/logging"
)

// Option configures sources built by Open and NewDirSource.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func collectOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = logging.OrDiscard(o.logger)
	return o
}
