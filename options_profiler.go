package sitekit

import (
	"context"

	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/profiler"
)

// Profiler is the pprof server, nil unless profiling is enabled and Run started it.
func (s *Service) Profiler() *profiler.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiler
}

func (s *Service) startProfiler(ctx context.Context) error {
	cfg, ok := s.Config().(config.ConfigurationProfiler)
	if !ok || !cfg.ProfilerEnabled() || s.Profiler() != nil {
		return nil
	}

	srv := profiler.NewServer()
	if err := srv.StartIfEnabled(ctx, cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.profiler = srv
	s.mu.Unlock()

	s.AddCleanupMethod(func(ctx context.Context) {
		if err := srv.Stop(ctx); err != nil {
			s.Log(ctx).WithError(err).Warn("pprof server did not shut down cleanly")
		}
	})
	return nil
}
