package sitekit

import (
	"context"

	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/telemetry"
)

// WithTelemetry adds options to the telemetry manager, exporters and samplers among them.
func WithTelemetry(opts ...telemetry.Option) Option {
	return func(_ context.Context, s *Service) {
		s.telemetryOpts = append(s.telemetryOpts, opts...)
	}
}

// Telemetry is the manager of the installed OpenTelemetry providers.
func (s *Service) Telemetry() telemetry.Manager {
	return s.telemetry
}

func (s *Service) setupTelemetry(ctx context.Context) {
	cfg, _ := s.Config().(config.ConfigurationTelemetry)

	opts := []telemetry.Option{
		telemetry.WithServiceName(s.Name()),
		telemetry.WithServiceVersion(s.Version()),
		telemetry.WithServiceEnvironment(s.Environment()),
	}
	s.telemetry = telemetry.NewManager(ctx, cfg, append(opts, s.telemetryOpts...)...)
	if s.telemetry.Disabled() {
		return
	}

	if err := s.telemetry.Init(ctx); err != nil {
		s.Log(ctx).WithError(err).Error("failed to initialise telemetry, continuing without it")
		return
	}

	// rebuild the logger so records also flow to the otel log bridge
	WithLogger(s.logOpts...)(ctx, s)

	s.AddCleanupMethod(func(ctx context.Context) {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.Log(ctx).WithError(err).Warn("telemetry did not shut down cleanly")
		}
	})
}
