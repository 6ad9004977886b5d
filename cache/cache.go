// Package cache holds the expiring counters rate limiting shares between site
// instances, in process or on a redis compatible server.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidTTL is returned by Hit for a ttl shorter than a millisecond.
var ErrInvalidTTL = errors.New("counter ttl must be at least one millisecond")

// Counter is a store of expiring counters.
type Counter interface {
	// Hit adds one to key and returns the new count. The hit that creates the
	// key starts its ttl, later hits leave the expiry alone.
	Hit(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Close() error
}

// hitScript increments a key and sets its expiry on creation in one round trip,
// so a counter can never be left without a ttl.
const hitScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

// HitScript is the lua source the server backed counters evaluate for Hit.
func HitScript() string {
	return hitScript
}

// CheckTTL validates a Hit ttl and returns it in whole milliseconds.
func CheckTTL(ttl time.Duration) (int64, error) {
	ms := ttl.Milliseconds()
	if ms < 1 {
		return 0, ErrInvalidTTL
	}
	return ms, nil
}
