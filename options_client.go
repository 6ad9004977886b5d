package sitekit

import (
	"context"
	"net/http"

	"github.com/pitabwire/sitekit/client"
	"github.com/pitabwire/sitekit/config"
)

// WithHTTPClient adds options to the client used for the service's own outgoing
// requests, the error page fetch among them.
func WithHTTPClient(opts ...client.HTTPOption) Option {
	return func(_ context.Context, s *Service) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// HTTPClient is the instrumented client of the service.
func (s *Service) HTTPClient() *http.Client {
	return s.client
}

func (s *Service) setupClient(_ context.Context) {
	opts := []client.HTTPOption{
		client.WithHTTPNoRedirects(),
	}

	if cfg, ok := s.Config().(config.ConfigurationSite); ok {
		opts = append(opts, client.WithHTTPTimeout(cfg.ErrorPageFetchTimeout()))
	}

	if cfg, ok := s.Config().(config.ConfigurationTraceRequests); ok && cfg.TraceReq() {
		opts = append(opts, client.WithHTTPTraceRequests(), client.WithHTTPTraceRequestHeaders())
		if cfg.TraceReqLogBody() {
			opts = append(opts, client.WithHTTPTraceRequestBodies())
		}
	}

	if s.telemetryDisabled() {
		opts = append(opts, client.WithHTTPTelemetryDisabled())
	}

	s.client = client.NewHTTPClient(append(opts, s.clientOpts...)...)
}

func (s *Service) telemetryDisabled() bool {
	cfg, ok := s.Config().(config.ConfigurationTelemetry)
	return ok && cfg.DisableOpenTelemetry()
}
