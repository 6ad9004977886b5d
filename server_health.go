package sitekit

import (
	"context"
	"io"
	"net/http"
	"strconv"
)

// Checker reports the health of a resource. CheckHealth must be safe to call
// from multiple goroutines.
type Checker interface {
	CheckHealth() error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func() error

func (f CheckerFunc) CheckHealth() error {
	return f()
}

// WithHealthCheckPath moves the health endpoint away from /healthz.
func WithHealthCheckPath(path string) Option {
	return func(_ context.Context, s *Service) {
		s.healthCheckPath = path
	}
}

// AddHealthCheck adds a checker consulted by the health endpoint.
func (s *Service) AddHealthCheck(checker Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthCheckers = append(s.healthCheckers, checker)
}

func (s *Service) HealthCheckers() []Checker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Checker(nil), s.healthCheckers...)
}

// HandleHealth answers 200 ok when every checker passes and 503 unhealthy otherwise.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	for _, c := range s.HealthCheckers() {
		if err := c.CheckHealth(); err != nil {
			s.Log(r.Context()).WithError(err).Warn("health check failed")
			writeHealth(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	writeHealth(w, http.StatusOK, "ok")
}

func writeHealth(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Length", strconv.Itoa(len(status)))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, status)
}
