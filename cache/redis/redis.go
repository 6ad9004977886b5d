// Package redis stores counters on a redis server through go-redis.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/sitekit/cache"
)

//nolint:gochecknoglobals // the script hash is computed once
var hit = redis.NewScript(cache.HitScript())

// Counter keeps counters on a redis server so every site instance shares them.
type Counter struct {
	client *redis.Client
	opts   *cache.Options
}

var _ cache.Counter = (*Counter)(nil)

// New connects to the redis:// or rediss:// uri and pings the server.
func New(ctx context.Context, opts ...cache.Option) (*Counter, error) {
	o := cache.NewOptions(opts...)

	redisOpts, err := redis.ParseURL(o.URI)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		_ = client.Close()
		return nil, pingErr
	}

	return &Counter{client: client, opts: o}, nil
}

func (c *Counter) Hit(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms, err := cache.CheckTTL(ttl)
	if err != nil {
		return 0, err
	}
	return hit.Run(ctx, c.client, []string{c.opts.Key(key)}, strconv.FormatInt(ms, 10)).Int64()
}

// TTL reports the time left on key, negative when it does not exist.
func (c *Counter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.client.PTTL(ctx, c.opts.Key(key)).Result()
}

func (c *Counter) Close() error {
	return c.client.Close()
}
