package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitabwire/util"
)

const (
	defaultMaxBodySize = 1024 // Max body size to log (1KB)
)

// LoggingTransportOption configures the logging HTTP transport.
type LoggingTransportOption func(*loggingTransport)

// loggingTransport is an HTTP transport that logs requests and responses.
type loggingTransport struct {
	transport    http.RoundTripper
	logRequests  bool
	logResponses bool
	logHeaders   bool
	logBody      bool
	maxBodySize  int64
}

// NewLoggingTransport creates a new logging HTTP transport.
// By default, it logs requests and responses but not headers or body.
func NewLoggingTransport(transport http.RoundTripper, opts ...LoggingTransportOption) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}

	t := &loggingTransport{
		transport:    transport,
		logRequests:  true,
		logResponses: true,
		maxBodySize:  defaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func WithTransportLogRequests(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logRequests = enabled
	}
}

func WithTransportLogResponses(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logResponses = enabled
	}
}

// WithTransportLogHeaders enables or disables header logging.
// Headers may carry cookies, so this stays off outside of debugging.
func WithTransportLogHeaders(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logHeaders = enabled
	}
}

// WithTransportLogBody logs up to the max body size of text responses.
func WithTransportLogBody(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logBody = enabled
	}
}

func WithTransportMaxBodySize(size int64) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.maxBodySize = size
	}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	if t.logRequests {
		t.logRequest(ctx, req)
	}

	resp, err := t.transport.RoundTrip(req)

	if t.logResponses {
		t.logResponse(ctx, req, resp, err, time.Since(start))
	}

	return resp, err
}

func (t *loggingTransport) logRequest(ctx context.Context, req *http.Request) {
	logger := util.Log(ctx).WithFields(map[string]any{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	if t.logHeaders {
		logger = logger.WithField("headers", flattenHeaders(req.Header))
	}

	logger.Debug("HTTP request sent")
}

func (t *loggingTransport) logResponse(
	ctx context.Context,
	req *http.Request,
	resp *http.Response,
	err error,
	duration time.Duration,
) {
	logger := util.Log(ctx).WithFields(map[string]any{
		"url":      req.URL.String(),
		"duration": duration.String(),
	})

	if err != nil {
		logger.WithError(err).Warn("HTTP request failed")
		return
	}

	logger = logger.WithFields(map[string]any{
		"status":       resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
	})

	if t.logHeaders {
		logger = logger.WithField("headers", flattenHeaders(resp.Header))
	}

	if t.logBody && resp.Body != nil && strings.HasPrefix(resp.Header.Get("Content-Type"), "text/") {
		snippet, readErr := io.ReadAll(io.LimitReader(resp.Body, t.maxBodySize))
		if readErr == nil && len(snippet) > 0 {
			logger = logger.WithField("body", string(snippet))
			resp.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(snippet), resp.Body), closer: resp.Body}
		}
	}

	logger.Debug("HTTP response received")
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if strings.EqualFold(name, "Cookie") || strings.EqualFold(name, "Set-Cookie") {
			out[name] = "[redacted]"
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// replayBody hands back the logged prefix before the rest of the original body.
type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error {
	return b.closer.Close()
}
