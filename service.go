// Package sitekit assembles the localized site request pipeline and serves it.
package sitekit

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/sitekit/cache"
	"github.com/pitabwire/sitekit/client"
	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/document"
	"github.com/pitabwire/sitekit/generator"
	"github.com/pitabwire/sitekit/httperror"
	"github.com/pitabwire/sitekit/localization"
	"github.com/pitabwire/sitekit/metadata"
	"github.com/pitabwire/sitekit/profiler"
	"github.com/pitabwire/sitekit/ratelimiter"
	"github.com/pitabwire/sitekit/telemetry"
)

type contextKey string

func (c contextKey) String() string {
	return "sitekit/" + string(c)
}

const (
	ctxKeyService = contextKey("serviceKey")

	// InternalRequestHeader marks the error page fetches the service makes to itself.
	InternalRequestHeader = "X-Sitekit-Internal"

	defaultShutdownTimeout = 15 * time.Second
)

// Service holds together all site components for the lifetime of the application.
// It is pushed into request contexts so handlers can reach it.
type Service struct {
	name        string
	version     string
	environment string

	configuration any
	logger        *util.LogEntry
	logOpts       []util.Option

	telemetry     telemetry.Manager
	telemetryOpts []telemetry.Option

	site          *config.Site
	loader        localization.Loader
	localization  *localization.Manager
	errors        *httperror.Normalizer
	renderer      httperror.Renderer
	inProcessErrs bool
	metadata      *metadata.Record
	files         *document.Files
	versions      *document.Versions

	caches       *cache.Manager
	defaultCache cache.Counter
	limiter      ratelimiter.Limiter
	limiterSet   bool

	client        *http.Client
	clientOpts    []client.HTTPOption
	internalToken string

	handler         http.Handler
	middlewares     []func(http.Handler) http.Handler
	healthCheckers  []Checker
	healthCheckPath string
	driver          Driver
	profiler        *profiler.Server

	cancelFunc context.CancelFunc
	startup    func(ctx context.Context, s *Service)
	cleanup    func(ctx context.Context)

	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.Mutex
}

// Option configures the service during NewService.
type Option func(ctx context.Context, service *Service)

// NewService creates a service named name, configured from the environment and opts.
// The returned context is cancelled on SIGHUP, SIGINT, SIGTERM and SIGQUIT.
func NewService(name string, opts ...Option) (context.Context, *Service) {
	return NewServiceWithContext(context.Background(), name, opts...)
}

// NewServiceWithContext is NewService deriving from ctx.
func NewServiceWithContext(ctx context.Context, name string, opts ...Option) (context.Context, *Service) {
	ctx, signalCancelFunc := signal.NotifyContext(ctx,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	defaultLogger := util.Log(ctx)
	ctx = util.ContextWithLogger(ctx, defaultLogger)

	service := &Service{
		name:          name,
		logger:        defaultLogger,
		cancelFunc:    signalCancelFunc,
		caches:        cache.NewManager(),
		internalToken: generator.MustID("internal"),
	}

	defaultCfg, err := config.FromEnv[config.ConfigurationDefault]()
	if err != nil {
		defaultLogger.WithError(err).Warn("could not read configuration from environment")
	}

	opts = append([]Option{WithConfig(&defaultCfg)}, opts...)
	service.Init(ctx, opts...)
	service.setup(ctx)

	ctx = ToContext(ctx, service)
	ctx = config.ToContext(ctx, service.Config())
	ctx = util.ContextWithLogger(ctx, service.logger)
	return ctx, service
}

// ToContext pushes a service instance into the supplied context.
func ToContext(ctx context.Context, service *Service) context.Context {
	return context.WithValue(ctx, ctxKeyService, service)
}

// FromContext obtains the service propagated through the context.
func FromContext(ctx context.Context) *Service {
	service, ok := ctx.Value(ctxKeyService).(*Service)
	if !ok {
		return nil
	}
	return service
}

// Name is the first argument given to NewService unless configuration overrides it.
func (s *Service) Name() string {
	return s.name
}

// WithName specifies the name the service will utilize.
func WithName(name string) Option {
	return func(_ context.Context, s *Service) {
		s.name = name
	}
}

func (s *Service) Version() string {
	return s.version
}

// WithVersion specifies the release version of the service.
func WithVersion(version string) Option {
	return func(_ context.Context, s *Service) {
		s.version = version
	}
}

func (s *Service) Environment() string {
	return s.environment
}

// WithEnvironment specifies the runtime environment of the service.
func WithEnvironment(environment string) Option {
	return func(_ context.Context, s *Service) {
		s.environment = environment
	}
}

// Init applies opts to the service.
func (s *Service) Init(ctx context.Context, opts ...Option) {
	for _, opt := range opts {
		opt(ctx, s)
	}
}

// H is the assembled request pipeline, available once Run has started.
func (s *Service) H() http.Handler {
	return s.handler
}

// AddPreStartMethod adds functions run once the service is fully initialised,
// just before it starts receiving requests.
func (s *Service) AddPreStartMethod(f func(ctx context.Context, s *Service)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startup == nil {
		s.startup = f
		return
	}

	old := s.startup
	s.startup = func(ctx context.Context, st *Service) { old(ctx, st); f(ctx, st) }
}

// AddCleanupMethod adds functions run while stopping the service, the most
// recently added first.
func (s *Service) AddCleanupMethod(f func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cleanup == nil {
		s.cleanup = f
		return
	}

	old := s.cleanup
	s.cleanup = func(ctx context.Context) { f(ctx); old(ctx) }
}

// Run serves the request pipeline on address, or the configured port when address
// is empty. It returns when the driver stops or ctx is cancelled, stopping the
// service in the latter case.
func (s *Service) Run(ctx context.Context, address string) error {
	address = s.determineHTTPPort(address)

	s.startOnce.Do(func() {
		s.handler = s.buildHandler(ctx)
		if s.driver == nil {
			s.driver = newDefaultDriver(ctx)
		}
	})

	if err := s.localization.Preload(ctx); err != nil {
		return err
	}
	s.watchDocuments(ctx)
	if err := s.startProfiler(ctx); err != nil {
		return err
	}

	if s.startup != nil {
		s.startup(ctx, s)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.driver.ListenAndServe(address, s.handler)
	}()
	s.Log(ctx).WithField("address", address).Info("site service started")

	select {
	case <-ctx.Done():
		s.Stop(context.WithoutCancel(ctx))
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log(ctx).WithError(err).Error("system exit in error")
			s.Stop(context.WithoutCancel(ctx))
			return err
		}
		return nil
	}
}

// Stop gracefully shuts down the driver then runs the cleanup methods. Only the
// first call has an effect.
func (s *Service) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		log := s.Log(ctx)
		log.Info("service stopping")

		if s.driver != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
			if err := s.driver.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("driver did not shut down cleanly")
			}
			cancel()
		}

		s.mu.Lock()
		cleanup := s.cleanup
		s.mu.Unlock()
		if cleanup != nil {
			cleanup(ctx)
		}

		if s.cancelFunc != nil {
			s.cancelFunc()
		}
	})
}

func (s *Service) determineHTTPPort(currentPort string) string {
	if currentPort != "" {
		return currentPort
	}

	cfg, ok := s.Config().(config.ConfigurationPorts)
	if !ok {
		return ":8080"
	}
	return cfg.HTTPPort()
}
