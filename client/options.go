package client

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultHTTPTimeoutSeconds     = 30
	defaultHTTPIdleTimeoutSeconds = 90
)

// HTTPOption configures HTTP client behavior.
// It can be used to configure timeout, transport, and other HTTP client settings.
type HTTPOption func(*httpConfig)

// httpConfig holds HTTP client configuration.
type httpConfig struct {
	timeout       time.Duration
	transport     http.RoundTripper
	checkRedirect func(req *http.Request, via []*http.Request) error
	idleTimeout   time.Duration
	header        http.Header

	disableTelemetry    bool
	traceRequests       bool
	traceRequestHeaders bool
	traceRequestBodies  bool
}

// WithHTTPTimeout sets the request timeout.
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.timeout = timeout
	}
}

// WithHTTPTransport sets the HTTP transport.
func WithHTTPTransport(transport http.RoundTripper) HTTPOption {
	return func(c *httpConfig) {
		c.transport = transport
	}
}

// WithHTTPNoRedirects makes the client return the first response instead of following redirects.
func WithHTTPNoRedirects() HTTPOption {
	return func(c *httpConfig) {
		c.checkRedirect = func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
}

// WithHTTPIdleTimeout sets the idle timeout.
func WithHTTPIdleTimeout(timeout time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.idleTimeout = timeout
	}
}

// WithHTTPHeader adds a header to every outgoing request.
func WithHTTPHeader(name, value string) HTTPOption {
	return func(c *httpConfig) {
		if c.header == nil {
			c.header = http.Header{}
		}
		c.header.Add(name, value)
	}
}

// WithHTTPTelemetryDisabled skips the otelhttp instrumentation of the transport.
func WithHTTPTelemetryDisabled() HTTPOption {
	return func(c *httpConfig) {
		c.disableTelemetry = true
	}
}

// WithHTTPTraceRequests enables request logging.
func WithHTTPTraceRequests() HTTPOption {
	return func(c *httpConfig) {
		c.traceRequests = true
	}
}

// WithHTTPTraceRequestHeaders enables header logging.
func WithHTTPTraceRequestHeaders() HTTPOption {
	return func(c *httpConfig) {
		c.traceRequestHeaders = true
	}
}

// WithHTTPTraceRequestBodies enables logging of textual request and response bodies.
func WithHTTPTraceRequestBodies() HTTPOption {
	return func(c *httpConfig) {
		c.traceRequestBodies = true
	}
}

// NewHTTPClient creates a new HTTP client with the provided options.
// Unless telemetry is disabled the transport is wrapped with otelhttp.NewTransport.
func NewHTTPClient(opts ...HTTPOption) *http.Client {
	cfg := &httpConfig{
		timeout:     time.Duration(defaultHTTPTimeoutSeconds) * time.Second,
		idleTimeout: time.Duration(defaultHTTPIdleTimeoutSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	transport := cfg.transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.idleTimeout > 0 {
			base.IdleConnTimeout = cfg.idleTimeout
		}
		transport = base
	}

	if len(cfg.header) > 0 {
		transport = &headerTransport{transport: transport, header: cfg.header}
	}

	if cfg.traceRequests {
		transport = NewLoggingTransport(transport,
			WithTransportLogRequests(true),
			WithTransportLogResponses(true),
			WithTransportLogHeaders(cfg.traceRequestHeaders),
			WithTransportLogBody(cfg.traceRequestBodies))
	}

	if !cfg.disableTelemetry {
		transport = otelhttp.NewTransport(transport)
	}

	return &http.Client{
		Transport:     transport,
		Timeout:       cfg.timeout,
		CheckRedirect: cfg.checkRedirect,
	}
}

type headerTransport struct {
	transport http.RoundTripper
	header    http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for name, values := range t.header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return t.transport.RoundTrip(req)
}
