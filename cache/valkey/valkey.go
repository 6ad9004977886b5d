// Package valkey stores counters on a valkey server through valkey-go.
package valkey

import (
	"context"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/pitabwire/sitekit/cache"
)

//nolint:gochecknoglobals // the script hash is computed once
var hit = valkey.NewLuaScript(cache.HitScript())

// Counter keeps counters on a valkey server so every site instance shares them.
type Counter struct {
	client valkey.Client
	opts   *cache.Options
}

var _ cache.Counter = (*Counter)(nil)

// New connects to the redis:// or rediss:// style uri and pings the server.
func New(ctx context.Context, opts ...cache.Option) (*Counter, error) {
	o := cache.NewOptions(opts...)

	valkeyOpts, err := valkey.ParseURL(o.URI)
	if err != nil {
		return nil, err
	}

	client, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer cancel()
	if pingErr := client.Do(pingCtx, client.B().Ping().Build()).Error(); pingErr != nil {
		client.Close()
		return nil, pingErr
	}

	return &Counter{client: client, opts: o}, nil
}

func (c *Counter) Hit(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms, err := cache.CheckTTL(ttl)
	if err != nil {
		return 0, err
	}
	return hit.Exec(ctx, c.client, []string{c.opts.Key(key)}, []string{strconv.FormatInt(ms, 10)}).AsInt64()
}

// TTL reports the time left on key, negative when it does not exist.
func (c *Counter) TTL(ctx context.Context, key string) (time.Duration, error) {
	ms, err := c.client.Do(ctx, c.client.B().Pttl().Key(c.opts.Key(key)).Build()).AsInt64()
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (c *Counter) Close() error {
	c.client.Close()
	return nil
}
