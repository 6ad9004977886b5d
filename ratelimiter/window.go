package ratelimiter

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/sitekit/cache"
)

const (
	defaultWindowPrefix = "ratelimit:ip"
	defaultWindowMax    = 600
	windowTTLOffset     = time.Second
)

var ErrCounterRequired = errors.New("counter store is required")

// WindowConfig defines fixed-window counter limiter settings.
type WindowConfig struct {
	WindowDuration time.Duration
	MaxPerWindow   int
	KeyPrefix      string
	// FailOpen lets requests through when the counter store cannot be reached.
	FailOpen bool
}

// DefaultWindowConfig returns conservative window limiter defaults.
func DefaultWindowConfig() *WindowConfig {
	return &WindowConfig{
		WindowDuration: time.Minute,
		MaxPerWindow:   defaultWindowMax,
		KeyPrefix:      defaultWindowPrefix,
		FailOpen:       true,
	}
}

// WindowLimiter enforces per-key fixed-window limits using atomic counter hits,
// so every instance sharing the store shares the allowance.
type WindowLimiter struct {
	counter cache.Counter
	config  WindowConfig
	now     func() time.Time
}

var _ Limiter = (*WindowLimiter)(nil)

// NewWindowLimiter creates a window limiter counting in counter.
func NewWindowLimiter(counter cache.Counter, cfg *WindowConfig) (*WindowLimiter, error) {
	if counter == nil {
		return nil, ErrCounterRequired
	}

	return &WindowLimiter{counter: counter, config: normalizeWindowConfig(cfg), now: time.Now}, nil
}

// Config returns the effective settings.
func (wl *WindowLimiter) Config() WindowConfig {
	return wl.config
}

func (wl *WindowLimiter) Take(ctx context.Context, key string) Decision {
	now := wl.now().UTC()
	bucket, resetIn := wl.bucket(now)
	d := Decision{Allowed: true, Limit: wl.config.MaxPerWindow, RetryAfter: resetIn}

	bucketKey := wl.bucketKey(normalizeKey(key), bucket)
	count, err := wl.counter.Hit(ctx, bucketKey, wl.config.WindowDuration+windowTTLOffset)
	if err != nil {
		util.Log(ctx).WithError(err).WithField("key", bucketKey).Warn("rate limit counter unavailable")
		d.Allowed = wl.config.FailOpen
		return d
	}

	d.Allowed = count <= int64(wl.config.MaxPerWindow)
	d.Remaining = max(wl.config.MaxPerWindow-int(count), 0)
	return d
}

// bucket numbers windows from the unix epoch and reports the time left in the current one.
func (wl *WindowLimiter) bucket(now time.Time) (int64, time.Duration) {
	window := wl.config.WindowDuration
	bucket := now.UnixNano() / int64(window)
	end := time.Unix(0, (bucket+1)*int64(window))
	return bucket, end.Sub(now)
}

func (wl *WindowLimiter) bucketKey(key string, bucket int64) string {
	buf := make([]byte, 0, len(wl.config.KeyPrefix)+len(key)+24)
	buf = append(buf, wl.config.KeyPrefix...)
	buf = append(buf, ':')
	buf = append(buf, key...)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, bucket, 10)
	return string(buf)
}

func normalizeWindowConfig(cfg *WindowConfig) WindowConfig {
	if cfg == nil {
		return *DefaultWindowConfig()
	}

	result := *cfg
	if result.WindowDuration < time.Second {
		result.WindowDuration = time.Minute
	}
	if result.MaxPerWindow <= 0 {
		result.MaxPerWindow = defaultWindowMax
	}
	if result.KeyPrefix == "" {
		result.KeyPrefix = defaultWindowPrefix
	}

	return result
}
