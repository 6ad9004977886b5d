package sitekit

import (
	"context"

	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/httperror"
)

// WithErrorRenderer replaces the error page renderer. By default error pages are
// fetched over HTTP from the configured public site URL, or from the listener
// of the running service when none is set.
func WithErrorRenderer(renderer httperror.Renderer) Option {
	return func(_ context.Context, s *Service) {
		s.renderer = renderer
		s.inProcessErrs = false
	}
}

// WithInProcessErrorPages renders error pages by dispatching to the application
// handler directly instead of fetching them.
func WithInProcessErrorPages() Option {
	return func(_ context.Context, s *Service) {
		s.renderer = nil
		s.inProcessErrs = true
	}
}

// Errors is the status normalizer built from the site error configuration.
func (s *Service) Errors() *httperror.Normalizer {
	return s.errors
}

// InternalToken is the value of InternalRequestHeader on requests the service
// makes to itself.
func (s *Service) InternalToken() string {
	return s.internalToken
}

func (s *Service) setupErrors(_ context.Context) {
	s.errors = httperror.NewNormalizer(s.site.Errors)
	if s.renderer == nil && !s.inProcessErrs {
		s.renderer = httperror.NewFetchRenderer(s.client, s.siteURL(), s.localization,
			httperror.WithOriginFunc(s.driverOrigin),
			httperror.WithFetchHeader(InternalRequestHeader, s.internalToken))
	}
}

func (s *Service) siteURL() string {
	if cfg, ok := s.Config().(config.ConfigurationSite); ok {
		return cfg.SiteURL()
	}
	return ""
}

// driverOrigin is where the running service can be reached from itself.
func (s *Service) driverOrigin() string {
	if d, ok := s.driver.(OriginDriver); ok {
		return d.Origin()
	}
	return ""
}
