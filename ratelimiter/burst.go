package ratelimiter

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBurstRPS       = 20
	defaultBurstCleanup   = 5 * time.Minute
	defaultBurstEntryTTL  = 10 * time.Minute
	defaultBurstMaxKeys   = 100000
	defaultBurstSizeRatio = 2
)

// BurstConfig defines the in-process token bucket settings.
type BurstConfig struct {
	RequestsPerSecond int
	BurstSize         int
	CleanupInterval   time.Duration
	EntryTTL          time.Duration
	MaxEntries        int
}

type bucketEntry struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64
}

// BurstLimiter smooths request spikes with one token bucket per key held in
// process memory. Idle keys are dropped after EntryTTL.
type BurstLimiter struct {
	mu      sync.RWMutex
	entries map[string]*bucketEntry
	config  BurstConfig

	stopOnce sync.Once
	stopCh   chan struct{}
}

var _ Limiter = (*BurstLimiter)(nil)

// NewBurstLimiter creates the limiter and starts its cleanup loop. Close stops it.
func NewBurstLimiter(cfg *BurstConfig) *BurstLimiter {
	bl := &BurstLimiter{
		entries: make(map[string]*bucketEntry),
		config:  normalizeBurstConfig(cfg),
		stopCh:  make(chan struct{}),
	}

	go bl.cleanupLoop()
	return bl
}

func (b *BurstLimiter) Take(_ context.Context, key string) Decision {
	entry := b.entry(normalizeKey(key))
	now := time.Now()
	entry.lastAccess.Store(now.UnixNano())

	d := Decision{Limit: b.config.BurstSize}
	d.Allowed = entry.limiter.AllowN(now, 1)
	d.Remaining = max(int(math.Floor(entry.limiter.TokensAt(now))), 0)
	if !d.Allowed {
		d.RetryAfter = time.Duration(float64(time.Second) / float64(b.config.RequestsPerSecond))
	}
	return d
}

// Len returns the number of tracked keys.
func (b *BurstLimiter) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

func (b *BurstLimiter) Close() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	return nil
}

func normalizeBurstConfig(cfg *BurstConfig) BurstConfig {
	var result BurstConfig
	if cfg != nil {
		result = *cfg
	}
	if result.RequestsPerSecond <= 0 {
		result.RequestsPerSecond = defaultBurstRPS
	}
	if result.BurstSize <= 0 {
		result.BurstSize = defaultBurstSizeRatio * result.RequestsPerSecond
	}
	if result.CleanupInterval <= 0 {
		result.CleanupInterval = defaultBurstCleanup
	}
	if result.EntryTTL <= 0 {
		result.EntryTTL = defaultBurstEntryTTL
	}
	if result.MaxEntries <= 0 {
		result.MaxEntries = defaultBurstMaxKeys
	}
	return result
}

func (b *BurstLimiter) entry(key string) *bucketEntry {
	b.mu.RLock()
	entry, found := b.entries[key]
	b.mu.RUnlock()
	if found {
		return entry
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, found = b.entries[key]; found {
		return entry
	}

	entry = &bucketEntry{
		limiter: rate.NewLimiter(rate.Limit(b.config.RequestsPerSecond), b.config.BurstSize),
	}
	entry.lastAccess.Store(time.Now().UnixNano())
	b.entries[key] = entry

	b.evictLocked()
	return entry
}

func (b *BurstLimiter) cleanupLoop() {
	ticker := time.NewTicker(b.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.cleanupExpired(time.Now())
		case <-b.stopCh:
			return
		}
	}
}

func (b *BurstLimiter) cleanupExpired(now time.Time) {
	cutoff := now.Add(-b.config.EntryTTL).UnixNano()

	b.mu.Lock()
	defer b.mu.Unlock()

	for key, entry := range b.entries {
		if entry.lastAccess.Load() < cutoff {
			delete(b.entries, key)
		}
	}
}

// evictLocked drops the least recently used keys above MaxEntries.
func (b *BurstLimiter) evictLocked() {
	for len(b.entries) > b.config.MaxEntries {
		oldestKey := ""
		oldest := int64(math.MaxInt64)
		for key, entry := range b.entries {
			if last := entry.lastAccess.Load(); last < oldest {
				oldest = last
				oldestKey = key
			}
		}
		if oldestKey == "" {
			return
		}
		delete(b.entries, oldestKey)
	}
}
