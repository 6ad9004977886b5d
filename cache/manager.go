package cache

import (
	"errors"
	"fmt"
	"sync"
)

// Manager keeps named counter stores for the lifetime of a service.
type Manager struct {
	mu       sync.RWMutex
	counters map[string]Counter
}

func NewManager() *Manager {
	return &Manager{counters: map[string]Counter{}}
}

// Add registers counter under name, closing the store it replaces.
func (m *Manager) Add(name string, counter Counter) error {
	m.mu.Lock()
	old, ok := m.counters[name]
	m.counters[name] = counter
	m.mu.Unlock()

	if ok && old != counter {
		return old.Close()
	}
	return nil
}

func (m *Manager) Get(name string) (Counter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.counters[name]
	return c, ok
}

// Remove unregisters and closes the store with the given name.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	c, ok := m.counters[name]
	delete(m.counters, name)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return c.Close()
}

// Close closes every registered store.
func (m *Manager) Close() error {
	m.mu.Lock()
	counters := m.counters
	m.counters = map[string]Counter{}
	m.mu.Unlock()

	var errs []error
	for name, c := range counters {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close counter %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
