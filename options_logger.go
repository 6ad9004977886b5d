package sitekit

import (
	"context"
	"log/slog"

	"github.com/pitabwire/util"

	"github.com/pitabwire/sitekit/config"
)

// WithLogger initialises the service logger from the logging configuration.
func WithLogger(opts ...util.Option) Option {
	return func(ctx context.Context, s *Service) {
		s.logOpts = opts

		if cfg, ok := s.Config().(config.ConfigurationLogLevel); ok {
			logLevel, err := util.ParseLevel(cfg.LoggingLevel())
			if err == nil {
				opts = append([]util.Option{util.WithLogLevel(logLevel)}, opts...)
			}
			opts = append([]util.Option{
				util.WithLogTimeFormat(cfg.LoggingTimeFormat()),
				util.WithLogNoColor(!cfg.LoggingColored()),
			}, opts...)
			if cfg.LoggingShowStackTrace() {
				opts = append(opts, util.WithLogStackTrace())
			}
		}

		if s.telemetry != nil && s.telemetry.LogHandler() != nil {
			opts = append(opts, util.WithLogHandler(s.telemetry.LogHandler()))
		}

		s.logger = util.NewLogger(ctx, opts...).WithField("service", s.Name())
	}
}

// Log returns the request logger carried by ctx, else the service logger.
func (s *Service) Log(ctx context.Context) *util.LogEntry {
	if entry, ok := ctx.Value(ctxKeyRequestLogger).(*util.LogEntry); ok {
		return entry
	}
	return s.logger.WithContext(ctx)
}

func (s *Service) SLog(ctx context.Context) *slog.Logger {
	return s.Log(ctx).SLog()
}
