package sitekit

import (
	"context"

	"github.com/pitabwire/sitekit/config"
)

// WithConfig specifies or overrides the configuration object of the service.
// Values implementing the config getter interfaces drive the rest of the setup.
func WithConfig(cfg any) Option {
	return func(ctx context.Context, s *Service) {
		s.configuration = cfg

		serviceCfg, ok := cfg.(config.ConfigurationService)
		if ok {
			if serviceCfg.Name() != "" {
				WithName(serviceCfg.Name())(ctx, s)
			}

			if serviceCfg.Environment() != "" {
				WithEnvironment(serviceCfg.Environment())(ctx, s)
			}

			if serviceCfg.Version() != "" {
				WithVersion(serviceCfg.Version())(ctx, s)
			}
		}

		WithLogger()(ctx, s)
	}
}

func (s *Service) Config() any {
	return s.configuration
}
