package sitekit

import "context"

// setup builds the components options did not supply, in dependency order.
func (s *Service) setup(ctx context.Context) {
	s.setupTelemetry(ctx)
	s.setupSite(ctx)
	s.setupLocalization(ctx)
	s.setupCache(ctx)
	s.setupRateLimit(ctx)
	s.setupClient(ctx)
	s.setupErrors(ctx)

	if s.healthCheckPath == "" {
		s.healthCheckPath = defaultHealthCheckPath
	}
}
