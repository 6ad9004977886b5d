package cache

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

type memoryEntry struct {
	count   int64
	expires time.Time
}

// Memory keeps counters in process. It serves a single instance, counts are not
// shared with other replicas.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

var _ Counter = (*Memory)(nil)

// NewMemory creates an in process counter store that drops expired counters
// every minute.
func NewMemory() *Memory {
	return newMemory(defaultSweepInterval)
}

func newMemory(sweep time.Duration) *Memory {
	m := &Memory{
		entries: map[string]memoryEntry{},
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go m.sweepEvery(sweep)
	return m
}

func (m *Memory) Hit(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if _, err := CheckTTL(ttl); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]
	if !ok || !now.Before(entry.expires) {
		entry = memoryEntry{expires: now.Add(ttl)}
	}
	entry.count++
	m.entries[key] = entry
	return entry.count, nil
}

// Len is the number of counters held, expired ones not yet swept included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, entry := range m.entries {
		if !now.Before(entry.expires) {
			delete(m.entries, key)
		}
	}
}

// Close stops the sweeper. Hit keeps working afterwards.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	return nil
}
