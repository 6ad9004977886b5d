package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type contextKey string

func (c contextKey) String() string {
	return "sitekit/config/" + string(c)
}

const (
	ctxKeyConfiguration = contextKey("configurationKey")

	defaultHTTPPort         = ":8080"
	defaultErrorPageTimeout = 5 * time.Second
	defaultRateLimitWindow  = time.Minute
)

// ToContext adds service configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts service configuration from the supplied context if any exist.
func FromContext[T any](ctx context.Context) T {
	if cfg, ok := ctx.Value(ctxKeyConfiguration).(T); ok {
		return cfg
	}
	var zero T
	return zero
}

// FromEnv convenience method to process configs.
func FromEnv[T any]() (T, error) {
	return env.ParseAs[T]()
}

// FillEnv convenience method to fill a config object with environment data.
func FillEnv(v any) error {
	return env.Parse(v)
}

type ConfigurationDefault struct {
	LogLevel      string `envDefault:"info"                      env:"LOG_LEVEL"       yaml:"log_level"`
	LogFormat     string `envDefault:"info"                      env:"LOG_FORMAT"      yaml:"log_format"`
	LogTimeFormat string `envDefault:"2006-01-02T15:04:05Z07:00" env:"LOG_TIME_FORMAT" yaml:"log_time_format"`
	LogColored    bool   `envDefault:"true"                      env:"LOG_COLORED"     yaml:"log_colored"`

	LogShowStackTrace bool `envDefault:"false" env:"LOG_SHOW_STACK_TRACE" yaml:"log_show_stack_trace"`

	TraceRequests        bool `envDefault:"false" env:"TRACE_REQUESTS"          yaml:"trace_requests"`
	TraceRequestsLogBody bool `envDefault:"false" env:"TRACE_REQUESTS_LOG_BODY" yaml:"trace_requests_log_body"`

	OpenTelemetryDisable    bool    `envDefault:"false" env:"OPENTELEMETRY_DISABLE"        yaml:"opentelemetry_disable"`
	OpenTelemetryTraceRatio float64 `envDefault:"0.1"   env:"OPENTELEMETRY_TRACE_ID_RATIO" yaml:"opentelemetry_trace_id_ratio"`

	ProfilerEnable   bool   `envDefault:"false" env:"PROFILER_ENABLE" yaml:"profiler_enable"`
	ProfilerPortAddr string `envDefault:":6060" env:"PROFILER_PORT"   yaml:"profiler_port"`

	ServiceName        string `envDefault:"" env:"SERVICE_NAME"        yaml:"service_name"`
	ServiceEnvironment string `envDefault:"" env:"SERVICE_ENVIRONMENT" yaml:"service_environment"`
	ServiceVersion     string `envDefault:"" env:"SERVICE_VERSION"     yaml:"service_version"`

	HTTPServerPort string `envDefault:":8080" env:"HTTP_PORT" yaml:"http_server_port"`

	PublicSiteURL  string `envDefault:""       env:"PUBLIC_SITE_URL"  yaml:"public_site_url"`
	PublicName     string `envDefault:""       env:"PUBLIC_NAME"      yaml:"public_name"`
	PublicDir      string `envDefault:"public" env:"PUBLIC_DIR"       yaml:"public_dir"`
	SiteConfigPath string `envDefault:""       env:"SITE_CONFIG_PATH" yaml:"site_config_path"`

	ErrorPageTimeout string `envDefault:"5s" env:"ERROR_PAGE_TIMEOUT" yaml:"error_page_timeout"`

	CacheServiceURI string `envDefault:"mem://" env:"CACHE_URI" yaml:"cache_uri"`

	RateLimitWindowValue  string `envDefault:"1m" env:"RATE_LIMIT_WINDOW"         yaml:"rate_limit_window"`
	RateLimitMaxPerWindow int    `envDefault:"0"  env:"RATE_LIMIT_MAX_PER_WINDOW" yaml:"rate_limit_max_per_window"`

	RateLimitBurstRPS  int `envDefault:"0" env:"RATE_LIMIT_BURST_RPS"  yaml:"rate_limit_burst_rps"`
	RateLimitBurstSize int `envDefault:"0" env:"RATE_LIMIT_BURST_SIZE" yaml:"rate_limit_burst_size"`
}

type ConfigurationService interface {
	Name() string
	Environment() string
	Version() string
}

var _ ConfigurationService = new(ConfigurationDefault)

func (c *ConfigurationDefault) Name() string {
	return c.ServiceName
}
func (c *ConfigurationDefault) Environment() string {
	return c.ServiceEnvironment
}
func (c *ConfigurationDefault) Version() string {
	return c.ServiceVersion
}

type ConfigurationLogLevel interface {
	LoggingLevel() string
	LoggingFormat() string
	LoggingTimeFormat() string
	LoggingShowStackTrace() bool
	LoggingColored() bool
	LoggingLevelIsDebug() bool
}

var _ ConfigurationLogLevel = new(ConfigurationDefault)

func (c *ConfigurationDefault) LoggingLevel() string {
	return c.LogLevel
}

func (c *ConfigurationDefault) LoggingTimeFormat() string {
	return c.LogTimeFormat
}

func (c *ConfigurationDefault) LoggingFormat() string {
	return c.LogFormat
}

func (c *ConfigurationDefault) LoggingColored() bool {
	return c.LogColored
}

func (c *ConfigurationDefault) LoggingShowStackTrace() bool {
	return c.LogShowStackTrace
}

func (c *ConfigurationDefault) LoggingLevelIsDebug() bool {
	return c.LoggingLevel() == "debug" || c.LoggingLevel() == "trace"
}

type ConfigurationTraceRequests interface {
	TraceReq() bool
	TraceReqLogBody() bool
}

var _ ConfigurationTraceRequests = new(ConfigurationDefault)

func (c *ConfigurationDefault) TraceReq() bool {
	return c.TraceRequests
}

func (c *ConfigurationDefault) TraceReqLogBody() bool {
	return c.TraceRequestsLogBody
}

type ConfigurationProfiler interface {
	ProfilerEnabled() bool
	ProfilerPort() string
}

var _ ConfigurationProfiler = new(ConfigurationDefault)

func (c *ConfigurationDefault) ProfilerEnabled() bool {
	return c.ProfilerEnable
}

func (c *ConfigurationDefault) ProfilerPort() string {
	if c.ProfilerPortAddr != "" {
		return c.ProfilerPortAddr
	}
	return ":6060"
}

type ConfigurationPorts interface {
	HTTPPort() string
}

var _ ConfigurationPorts = new(ConfigurationDefault)

func (c *ConfigurationDefault) HTTPPort() string {
	if i, err := strconv.Atoi(strings.TrimSpace(c.HTTPServerPort)); err == nil && i > 0 {
		return fmt.Sprintf(":%d", i)
	}

	if strings.Contains(c.HTTPServerPort, ":") {
		return c.HTTPServerPort
	}

	return defaultHTTPPort
}

type ConfigurationTelemetry interface {
	DisableOpenTelemetry() bool
	SamplingRatio() float64
}

var _ ConfigurationTelemetry = new(ConfigurationDefault)

func (c *ConfigurationDefault) DisableOpenTelemetry() bool {
	return c.OpenTelemetryDisable
}

func (c *ConfigurationDefault) SamplingRatio() float64 {
	return c.OpenTelemetryTraceRatio
}

// ConfigurationSite exposes the public facing settings of the site.
type ConfigurationSite interface {
	SiteURL() string
	SiteName() string
	PublicDirectory() string
	SiteConfigFile() string
	ErrorPageFetchTimeout() time.Duration
}

var _ ConfigurationSite = new(ConfigurationDefault)

func (c *ConfigurationDefault) SiteURL() string {
	return strings.TrimRight(c.PublicSiteURL, "/")
}

func (c *ConfigurationDefault) SiteName() string {
	return c.PublicName
}

func (c *ConfigurationDefault) PublicDirectory() string {
	if c.PublicDir == "" {
		return "public"
	}
	return c.PublicDir
}

func (c *ConfigurationDefault) SiteConfigFile() string {
	return c.SiteConfigPath
}

func (c *ConfigurationDefault) ErrorPageFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.ErrorPageTimeout)
	if err != nil || d <= 0 {
		return defaultErrorPageTimeout
	}
	return d
}

type ConfigurationCache interface {
	CacheURI() string
}

var _ ConfigurationCache = new(ConfigurationDefault)

func (c *ConfigurationDefault) CacheURI() string {
	if c.CacheServiceURI == "" {
		return "mem://"
	}
	return c.CacheServiceURI
}

type ConfigurationRateLimit interface {
	RateLimitEnabled() bool
	RateLimitWindow() time.Duration
	RateLimitMax() int
	BurstLimitEnabled() bool
	BurstLimit() (int, int)
}

var _ ConfigurationRateLimit = new(ConfigurationDefault)

func (c *ConfigurationDefault) RateLimitEnabled() bool {
	return c.RateLimitMaxPerWindow > 0
}

func (c *ConfigurationDefault) RateLimitWindow() time.Duration {
	d, err := time.ParseDuration(c.RateLimitWindowValue)
	if err != nil || d <= 0 {
		return defaultRateLimitWindow
	}
	return d
}

func (c *ConfigurationDefault) RateLimitMax() int {
	return c.RateLimitMaxPerWindow
}

func (c *ConfigurationDefault) BurstLimitEnabled() bool {
	return c.RateLimitBurstRPS > 0
}

// BurstLimit returns the per second refill rate and bucket size of the in-process
// token bucket. A missing size defaults to twice the rate.
func (c *ConfigurationDefault) BurstLimit() (int, int) {
	size := c.RateLimitBurstSize
	if size <= 0 {
		size = 2 * c.RateLimitBurstRPS
	}
	return c.RateLimitBurstRPS, size
}
