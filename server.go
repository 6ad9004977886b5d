package sitekit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pitabwire/sitekit/httperror"
	langhttp "github.com/pitabwire/sitekit/localization/interceptors/http"
	"github.com/pitabwire/sitekit/metadata"
	"github.com/pitabwire/sitekit/ratelimiter"
)

const (
	defaultHealthCheckPath = "/healthz"

	defaultHTTPReadTimeoutSeconds  = 15
	defaultHTTPWriteTimeoutSeconds = 30
	defaultHTTPIdleTimeoutSeconds  = 60
)

// Driver serves the assembled handler.
type Driver interface {
	// ListenAndServe blocks while serving, or starts serving in the background and returns nil.
	ListenAndServe(addr string, h http.Handler) error
	Shutdown(ctx context.Context) error
}

// OriginDriver is a Driver that knows the origin it serves on once listening.
// Error pages are fetched from it when no public site URL is configured.
type OriginDriver interface {
	Driver
	Origin() string
}

// WithDriver replaces the net/http server that Run listens with.
func WithDriver(driver Driver) Option {
	return func(_ context.Context, s *Service) {
		s.driver = driver
	}
}

// WithHTTPHandler sets the application handler at the end of the pipeline.
func WithHTTPHandler(h http.Handler) Option {
	return func(_ context.Context, s *Service) {
		s.handler = h
	}
}

// WithHTTPMiddleware wraps the application handler, the first middleware outermost.
// They run after locale, error and metadata state is in place, so an error status
// they write is rendered as an error page.
func WithHTTPMiddleware(middlewares ...func(http.Handler) http.Handler) Option {
	return func(_ context.Context, s *Service) {
		s.middlewares = append(s.middlewares, middlewares...)
	}
}

type defaultDriver struct {
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// newDefaultDriver serves HTTP/1 and cleartext HTTP/2 on the same listener.
func newDefaultDriver(ctx context.Context) *defaultDriver {
	protocols := new(http.Protocols)
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)

	return &defaultDriver{
		httpServer: &http.Server{
			Protocols: protocols,
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
			ReadHeaderTimeout: defaultHTTPReadTimeoutSeconds * time.Second,
			ReadTimeout:       defaultHTTPReadTimeoutSeconds * time.Second,
			WriteTimeout:      defaultHTTPWriteTimeoutSeconds * time.Second,
			IdleTimeout:       defaultHTTPIdleTimeoutSeconds * time.Second,
		},
	}
}

func (d *defaultDriver) ListenAndServe(addr string, h http.Handler) error {
	if addr == "" {
		addr = ":http"
	}
	d.httpServer.Addr = addr
	d.httpServer.Handler = h

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.listener = ln
	d.mu.Unlock()

	return d.httpServer.Serve(ln)
}

// Origin is the loopback origin of the listener, empty before it is bound.
func (d *defaultDriver) Origin() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.listener == nil {
		return ""
	}
	return loopbackOrigin(d.listener.Addr())
}

func loopbackOrigin(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return ""
	}
	host := "127.0.0.1"
	if tcp.IP != nil && !tcp.IP.IsUnspecified() {
		host = tcp.IP.String()
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(tcp.Port))
}

func (d *defaultDriver) Shutdown(ctx context.Context) error {
	return d.httpServer.Shutdown(ctx)
}

// buildHandler assembles request context, locale, error pages, rate limiting,
// metadata and the application handler in that order. The health check path
// bypasses all of it.
func (s *Service) buildHandler(_ context.Context) http.Handler {
	app := s.handler
	if app == nil {
		app = http.NotFoundHandler()
	}
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		app = s.middlewares[i](app)
	}

	page := metadata.Middleware(*s.metadata)(app)

	renderer := s.renderer
	if s.inProcessErrs {
		renderer = httperror.NewHandlerRenderer(langhttp.LanguageHTTPMiddleware(s.localization)(page), s.localization)
	}

	h := page
	if s.limiter != nil {
		h = ratelimiter.RateLimitMiddleware(s.limiter,
			ratelimiter.WithSkip(ratelimiter.SkipHeader(InternalRequestHeader, s.internalToken)))(h)
	}
	h = httperror.Middleware(s.errors, renderer)(h)
	h = langhttp.LanguageHTTPMiddleware(s.localization)(h)
	h = s.requestContext(h)

	if !s.telemetryDisabled() {
		h = otelhttp.NewHandler(h, s.Name())
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.healthCheckPath, s.HandleHealth)
	mux.Handle("/", h)
	return mux
}
