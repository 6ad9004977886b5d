package sitekit

import (
	"context"

	"github.com/pitabwire/util"

	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/ratelimiter"
)

// WithRateLimit replaces the limiters built from configuration. A nil limiter
// turns rate limiting off.
func WithRateLimit(limiter ratelimiter.Limiter) Option {
	return func(_ context.Context, s *Service) {
		s.limiter = limiter
		s.limiterSet = true
	}
}

// RateLimiter is the limiter guarding the pipeline, nil when limiting is off.
func (s *Service) RateLimiter() ratelimiter.Limiter {
	return s.limiter
}

func (s *Service) setupRateLimit(ctx context.Context) {
	if s.limiterSet {
		return
	}

	cfg, ok := s.Config().(config.ConfigurationRateLimit)
	if !ok {
		return
	}

	var chain ratelimiter.Chain

	if cfg.BurstLimitEnabled() {
		rps, size := cfg.BurstLimit()
		burst := ratelimiter.NewBurstLimiter(&ratelimiter.BurstConfig{RequestsPerSecond: rps, BurstSize: size})
		s.AddCleanupMethod(func(ctx context.Context) {
			util.CloseAndLogOnError(ctx, burst, "could not stop burst limiter")
		})
		chain = append(chain, burst)
	}

	if cfg.RateLimitEnabled() {
		counter, _ := s.caches.Get(DefaultCacheName)
		window, err := ratelimiter.NewWindowLimiter(counter, &ratelimiter.WindowConfig{
			WindowDuration: cfg.RateLimitWindow(),
			MaxPerWindow:   cfg.RateLimitMax(),
			KeyPrefix:      "ratelimit",
			FailOpen:       true,
		})
		if err != nil {
			s.Log(ctx).WithError(err).Error("could not create window rate limiter")
		} else {
			chain = append(chain, window)
		}
	}

	if len(chain) > 0 {
		s.limiter = chain
	}
}
