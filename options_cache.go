package sitekit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pitabwire/sitekit/cache"
	rediscache "github.com/pitabwire/sitekit/cache/redis"
	valkeycache "github.com/pitabwire/sitekit/cache/valkey"
	"github.com/pitabwire/sitekit/config"
)

// DefaultCacheName is the manager name of the counter store opened from CACHE_URI.
const DefaultCacheName = "default"

var ErrUnsupportedCacheScheme = errors.New("unsupported cache uri scheme")

// OpenCache opens the counter store named by the uri scheme: mem for the
// process local store, redis or rediss for go-redis, valkey or valkeys for valkey-go.
func OpenCache(ctx context.Context, uri string, opts ...cache.Option) (cache.Counter, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse cache uri: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "", "mem", "memory":
		return cache.NewMemory(), nil
	case "redis", "rediss":
		rc, rcErr := rediscache.New(ctx, append(opts, cache.WithURI(uri))...)
		if rcErr != nil {
			return nil, rcErr
		}
		return rc, nil
	case "valkey", "valkeys":
		u.Scheme = strings.Replace(strings.ToLower(u.Scheme), "valkey", "redis", 1)
		vc, vcErr := valkeycache.New(ctx, append(opts, cache.WithURI(u.String()))...)
		if vcErr != nil {
			return nil, vcErr
		}
		return vc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCacheScheme, u.Scheme)
	}
}

// WithCache sets the default counter store instead of opening CACHE_URI.
func WithCache(counter cache.Counter) Option {
	return func(_ context.Context, s *Service) {
		s.defaultCache = counter
	}
}

// Caches is the manager holding the default counter store and any added by the
// application. They are all closed when the service stops.
func (s *Service) Caches() *cache.Manager {
	return s.caches
}

func (s *Service) setupCache(ctx context.Context) {
	if s.defaultCache == nil {
		uri := "mem://"
		if cfg, ok := s.Config().(config.ConfigurationCache); ok {
			uri = cfg.CacheURI()
		}

		counter, err := OpenCache(ctx, uri, cache.WithName(s.Name()))
		if err != nil {
			s.Log(ctx).WithError(err).Error("could not open cache, counting in memory")
			counter = cache.NewMemory()
		}
		s.defaultCache = counter
	}

	if err := s.caches.Add(DefaultCacheName, s.defaultCache); err != nil {
		s.Log(ctx).WithError(err).Warn("could not close replaced counter store")
	}
	s.AddCleanupMethod(func(ctx context.Context) {
		if err := s.caches.Close(); err != nil {
			s.Log(ctx).WithError(err).Warn("could not close caches")
		}
	})
}
