package sitekit_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pitabwire/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pitabwire/sitekit"
	"github.com/pitabwire/sitekit/cache"
	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/localization"
	"github.com/pitabwire/sitekit/ratelimiter"
	"github.com/pitabwire/sitekit/sitetests"
	"github.com/pitabwire/sitekit/telemetry"
)

type ServiceTestSuite struct {
	suite.Suite
	client *http.Client
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) SetupTest() {
	s.client = &http.Client{
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *ServiceTestSuite) testConfig() *config.ConfigurationDefault {
	cfg, err := config.FromEnv[config.ConfigurationDefault]()
	s.Require().NoError(err)
	cfg.OpenTelemetryDisable = true
	cfg.PublicDir = s.T().TempDir()
	cfg.CacheServiceURI = "mem://"
	cfg.RateLimitMaxPerWindow = 0
	cfg.RateLimitBurstRPS = 0
	return &cfg
}

func (s *ServiceTestSuite) translations() localization.Loader {
	return localization.StaticLoader{
		"en": {"error.404.title": "Page Not Found", "error.404.description": "missing"},
		"fi": {"error.404.title": "Sivua ei löydy", "error.404.description": "puuttuu"},
	}
}

func (s *ServiceTestSuite) get(url string, header http.Header) (*http.Response, string) {
	req, err := http.NewRequestWithContext(s.T().Context(), http.MethodGet, url, nil)
	s.Require().NoError(err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer util.CloseAndLogOnError(s.T().Context(), resp.Body)

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp, string(body)
}

func (s *ServiceTestSuite) TestNewServiceDefaults() {
	ctx, svc := sitekit.NewService("Test Srv", sitekit.WithConfig(s.testConfig()))
	defer svc.Stop(ctx)

	s.Equal("Test Srv", svc.Name())
	s.Same(svc, sitekit.FromContext(ctx))
	s.NotNil(config.FromContext[*config.ConfigurationDefault](ctx))

	s.True(svc.Localization().Enabled())
	s.Equal("en", svc.Localization().Fallback())
	s.True(svc.Errors().Enabled())
	s.Equal("%s | Test Srv", svc.MetadataDefaults().Template)
	s.Nil(svc.RateLimiter())
	s.NotNil(svc.HTTPClient())
	s.NotEmpty(svc.InternalToken())

	counter, ok := svc.Caches().Get(sitekit.DefaultCacheName)
	s.True(ok)
	s.IsType(&cache.Memory{}, counter)
}

func (s *ServiceTestSuite) TestTelemetry() {
	s.T().Setenv("OTEL_LOGS_EXPORTER", "none")

	testCases := []struct {
		name     string
		disabled bool
	}{
		{name: "disabled by configuration", disabled: true},
		{name: "installed", disabled: false},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			cfg := s.testConfig()
			cfg.OpenTelemetryDisable = tc.disabled

			ctx, svc := sitekit.NewService("telemetry", sitekit.WithConfig(cfg),
				sitekit.WithTelemetry(
					telemetry.WithTraceExporter(tracetest.NewInMemoryExporter()),
					telemetry.WithMetricsReader(sdkmetric.NewManualReader()),
				))
			defer svc.Stop(ctx)

			s.Require().NotNil(svc.Telemetry())
			s.Equal(tc.disabled, svc.Telemetry().Disabled())
			s.Equal(!tc.disabled, svc.Telemetry().LogHandler() != nil)
		})
	}
}

func (s *ServiceTestSuite) TestConfigurationSetsIdentity() {
	cfg := s.testConfig()
	cfg.ServiceName = "from-config"
	cfg.ServiceEnvironment = "staging"
	cfg.ServiceVersion = "1.0.0"

	ctx, svc := sitekit.NewService("ignored", sitekit.WithConfig(cfg))
	defer svc.Stop(ctx)

	s.Equal("from-config", svc.Name())
	s.Equal("staging", svc.Environment())
	s.Equal("1.0.0", svc.Version())
}

func (s *ServiceTestSuite) TestSiteConfigurationFile() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "site.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
i18n:
  enabled: true
  fallback: fi
  locales:
    fi: {name: Finnish, endonym: Suomi, direction: ltr}
errors:
  enabled: false
`), 0o600))

	cfg := s.testConfig()
	cfg.SiteConfigPath = path

	ctx, svc := sitekit.NewService("site", sitekit.WithConfig(cfg))
	defer svc.Stop(ctx)

	s.Equal("fi", svc.Localization().Fallback())
	s.Equal([]string{"fi"}, svc.Localization().Supported())
	s.False(svc.Errors().Enabled())
}

func (s *ServiceTestSuite) TestBrokenSiteConfigurationFallsBackToDefaults() {
	cfg := s.testConfig()
	cfg.SiteConfigPath = filepath.Join(s.T().TempDir(), "missing.yaml")

	ctx, svc := sitekit.NewService("site", sitekit.WithConfig(cfg))
	defer svc.Stop(ctx)

	s.Equal(config.DefaultSite().I18n.Fallback, svc.Site().I18n.Fallback)
}

func (s *ServiceTestSuite) TestRateLimitFromConfiguration() {
	cfg := s.testConfig()
	cfg.RateLimitMaxPerWindow = 5
	cfg.RateLimitBurstRPS = 10

	ctx, svc := sitekit.NewService("limited", sitekit.WithConfig(cfg))
	defer svc.Stop(ctx)

	chain, ok := svc.RateLimiter().(ratelimiter.Chain)
	s.Require().True(ok)
	s.Len(chain, 2)
}

func (s *ServiceTestSuite) TestPipeline() {
	hOpt, tsGetter := sitetests.WithHTTPTestDriver()
	ctx, svc := sitekit.NewService("pipeline",
		sitekit.WithConfig(s.testConfig()),
		sitekit.WithTranslations(s.translations()),
		hOpt,
		sitekit.WithHTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/en/ok", "/fi/ok":
				fmt.Fprintf(w, "%s:%s", localization.LanguageFromContext(r.Context()), sitekit.RequestID(r.Context()))
			case "/en/error", "/fi/error":
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprintf(w, "<html>%s</html>", errorPageLanguage(r))
			default:
				http.NotFound(w, r)
			}
		})),
	)
	defer svc.Stop(ctx)

	s.Require().NoError(svc.Run(ctx, ""))
	ts := tsGetter()
	s.Require().NotNil(ts)

	testCases := []struct {
		name       string
		path       string
		header     http.Header
		wantStatus int
		wantBody   string
		check      func(resp *http.Response)
	}{
		{
			name:       "health bypasses pipeline",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			check: func(resp *http.Response) {
				s.Empty(resp.Header.Get(sitekit.RequestIDHeader))
			},
		},
		{
			name:       "unprefixed path redirects",
			path:       "/ok",
			wantStatus: http.StatusFound,
			check: func(resp *http.Response) {
				s.Equal("/en/ok", resp.Header.Get("Location"))
			},
		},
		{
			name:       "request gets language and id",
			path:       "/fi/ok",
			wantStatus: http.StatusOK,
			check: func(resp *http.Response) {
				s.Equal("fi", resp.Header.Get("Content-Language"))
				s.NotEmpty(resp.Header.Get(sitekit.RequestIDHeader))
			},
		},
		{
			name:       "incoming request id is kept",
			path:       "/en/ok",
			header:     http.Header{sitekit.RequestIDHeader: {"abc-123"}},
			wantStatus: http.StatusOK,
			wantBody:   "en:abc-123",
		},
		{
			name:       "invalid request id is replaced",
			path:       "/en/ok",
			header:     http.Header{sitekit.RequestIDHeader: {"<script>"}},
			wantStatus: http.StatusOK,
			check: func(resp *http.Response) {
				s.NotEqual("<script>", resp.Header.Get(sitekit.RequestIDHeader))
			},
		},
		{
			name:       "missing page renders fetched error page",
			path:       "/fi/nothing",
			wantStatus: http.StatusNotFound,
			wantBody:   "<html>fi</html>",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			resp, body := s.get(ts.URL+tc.path, tc.header)
			s.Equal(tc.wantStatus, resp.StatusCode)
			if tc.wantBody != "" {
				s.Equal(tc.wantBody, body)
			}
			if tc.check != nil {
				tc.check(resp)
			}
		})
	}
}

// errorPageLanguage echoes the language the error page was asked for.
func errorPageLanguage(r *http.Request) string {
	return localization.LanguageFromContext(r.Context())
}

func (s *ServiceTestSuite) TestErrorPageOriginIgnoresRequestHost() {
	var foreignHits atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits.Add(1)
		s.Empty(r.Header.Get(sitekit.InternalRequestHeader))
		s.Empty(r.Header.Get("Cookie"))
		_, _ = io.WriteString(w, "<html>foreign</html>")
	}))
	defer foreign.Close()

	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "<html>public</html>")
	}))
	defer public.Close()

	testCases := []struct {
		name     string
		siteURL  string
		wantBody string
	}{
		{name: "own listener without site url", wantBody: "<html>fi:internal</html>"},
		{name: "configured site url", siteURL: public.URL + "/", wantBody: "<html>public</html>"},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			cfg := s.testConfig()
			cfg.PublicSiteURL = tc.siteURL

			var svc *sitekit.Service
			hOpt, tsGetter := sitetests.WithHTTPTestDriver()
			ctx, svc := sitekit.NewService("origin",
				sitekit.WithConfig(cfg),
				sitekit.WithTranslations(s.translations()),
				hOpt,
				sitekit.WithHTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Path != "/fi/error" {
						http.NotFound(w, r)
						return
					}
					caller := "visitor"
					if r.Header.Get(sitekit.InternalRequestHeader) == svc.InternalToken() {
						caller = "internal"
					}
					w.WriteHeader(http.StatusNotFound)
					fmt.Fprintf(w, "<html>%s:%s</html>", errorPageLanguage(r), caller)
				})),
			)
			defer svc.Stop(ctx)

			s.Require().NoError(svc.Run(ctx, ""))

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, tsGetter().URL+"/fi/nothing", nil)
			s.Require().NoError(err)
			req.Host = strings.TrimPrefix(foreign.URL, "http://")
			req.Header.Set("Cookie", "session=secret")

			resp, err := s.client.Do(req)
			s.Require().NoError(err)
			defer util.CloseAndLogOnError(ctx, resp.Body)
			body, err := io.ReadAll(resp.Body)
			s.Require().NoError(err)

			s.Equal(http.StatusNotFound, resp.StatusCode)
			s.Equal(tc.wantBody, string(body))
		})
	}

	s.Zero(foreignHits.Load())
}

func (s *ServiceTestSuite) TestHTTPMiddlewareOrder() {
	trace := ""

	mwA := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trace += "A"
			next.ServeHTTP(w, r)
		})
	}
	mwB := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trace += "B"
			next.ServeHTTP(w, r)
		})
	}

	hOpt, tsGetter := sitetests.WithHTTPTestDriver()
	ctx, svc := sitekit.NewService("test",
		sitekit.WithConfig(s.testConfig()),
		sitekit.WithTranslations(s.translations()),
		hOpt,
		sitekit.WithHTTPMiddleware(mwA, mwB),
		sitekit.WithHTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			trace += "H"
			w.WriteHeader(http.StatusOK)
		})),
	)
	defer svc.Stop(ctx)

	s.Require().NoError(svc.Run(ctx, ""))

	resp, _ := s.get(tsGetter().URL+"/en", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ABH", trace)
}

func (s *ServiceTestSuite) TestHealthChecks() {
	hOpt, tsGetter := sitetests.WithHTTPTestDriver()
	ctx, svc := sitekit.NewService("health",
		sitekit.WithConfig(s.testConfig()),
		sitekit.WithHealthCheckPath("/_health"),
		hOpt,
	)
	defer svc.Stop(ctx)

	var healthy atomic.Bool
	healthy.Store(true)
	svc.AddHealthCheck(sitekit.CheckerFunc(func() error {
		if healthy.Load() {
			return nil
		}
		return errors.New("down")
	}))

	s.Require().NoError(svc.Run(ctx, ""))
	ts := tsGetter()

	resp, body := s.get(ts.URL+"/_health", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body)

	healthy.Store(false)
	resp, body = s.get(ts.URL+"/_health", nil)
	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	s.Equal("unhealthy", body)
}

func (s *ServiceTestSuite) TestCleanupOrderAndSingleStop() {
	ctx, svc := sitekit.NewService("cleanup", sitekit.WithConfig(s.testConfig()))

	var order []string
	svc.AddCleanupMethod(func(_ context.Context) { order = append(order, "first") })
	svc.AddCleanupMethod(func(_ context.Context) { order = append(order, "second") })

	started := false
	svc.AddPreStartMethod(func(_ context.Context, _ *sitekit.Service) { started = true })

	hOpt, _ := sitetests.WithHTTPTestDriver()
	svc.Init(ctx, hOpt)
	s.Require().NoError(svc.Run(ctx, ""))
	s.True(started)

	svc.Stop(ctx)
	svc.Stop(ctx)

	s.Equal([]string{"second", "first"}, order)
	s.Require().ErrorIs(ctx.Err(), context.Canceled)
}

func (s *ServiceTestSuite) TestRunWithDefaultDriver() {
	ctx := s.T().Context()
	port, err := sitetests.GetFreePort(ctx)
	s.Require().NoError(err)

	cfg := s.testConfig()
	cfg.ProfilerEnable = true
	cfg.ProfilerPortAddr = "127.0.0.1:0"

	ctx, svc := sitekit.NewServiceWithContext(ctx, "serve", sitekit.WithConfig(cfg),
		sitekit.WithHTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/en/error" {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "<html>served by the listener</html>")
		})))

	done := make(chan error, 1)
	address := fmt.Sprintf("127.0.0.1:%d", port)
	go func() { done <- svc.Run(ctx, address) }()

	s.Require().NoError(sitetests.WaitForHealthy(ctx, "http://"+address+"/healthz", 5*time.Second))
	s.Require().NotNil(svc.Profiler())
	s.True(svc.Profiler().IsRunning())

	resp, body := s.get("http://"+address+"/en/nothing", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("<html>served by the listener</html>", body)

	h2Protocols := new(http.Protocols)
	h2Protocols.SetUnencryptedHTTP2(true)
	h2Client := &http.Client{Transport: &http.Transport{Protocols: h2Protocols}}
	h2Req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+"/healthz", nil)
	s.Require().NoError(err)
	h2Resp, err := h2Client.Do(h2Req)
	s.Require().NoError(err)
	util.CloseAndLogOnError(ctx, h2Resp.Body)
	s.Equal(http.StatusOK, h2Resp.StatusCode)
	s.Equal(2, h2Resp.ProtoMajor)

	svc.Stop(context.Background())
	s.False(svc.Profiler().IsRunning())

	select {
	case runErr := <-done:
		if runErr != nil {
			s.Require().ErrorIs(runErr, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		s.Fail("service did not stop")
	}
}

func TestOpenCache(t *testing.T) {
	testCases := []struct {
		name    string
		uri     string
		wantErr error
	}{
		{name: "memory scheme", uri: "mem://"},
		{name: "empty uri", uri: ""},
		{name: "unsupported scheme", uri: "ftp://cache", wantErr: sitekit.ErrUnsupportedCacheScheme},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			counter, err := sitekit.OpenCache(t.Context(), tc.uri)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = counter.Close() })

			count, err := counter.Hit(t.Context(), "visits", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})
	}
}
