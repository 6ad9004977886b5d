package sitekit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pitabwire/util"

	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/generator"
)

// RequestIDHeader carries the request id in and out of the service.
const RequestIDHeader = "X-Request-ID"

const (
	ctxKeyRequestID     = contextKey("requestID")
	ctxKeyRequestLogger = contextKey("requestLogger")

	maxRequestIDLen = 64

	tintAttrCodeDuration = 214
	tintAttrCodeOK       = 10
	tintAttrCodeRedirect = 14
	tintAttrCodeClient   = 11
	tintAttrCodeServer   = 9
)

// RequestID is the id of the request being served with ctx, empty outside one.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// requestContext gives each request an id, a logger carrying it and access to
// the service and its configuration. Each served request is logged once.
func (s *Service) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = generator.RequestID()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := r.Context()
		log := s.logger.WithContext(ctx).WithFields(map[string]any{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
		})

		ctx = ToContext(ctx, s)
		ctx = config.ToContext(ctx, s.Config())
		ctx = context.WithValue(ctx, ctxKeyRequestID, id)
		ctx = context.WithValue(ctx, ctxKeyRequestLogger, log)
		ctx = util.ContextWithLogger(ctx, log)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		access := log.With(
			tint.Attr(statusColor(rec.Status()), slog.Int("status", rec.Status())),
			tint.Attr(tintAttrCodeDuration, slog.String("duration", time.Since(begin).String())),
		)
		defer access.Release()
		access.Info("request served")
	})
}

func statusColor(status int) uint8 {
	switch {
	case status >= http.StatusInternalServerError:
		return tintAttrCodeServer
	case status >= http.StatusBadRequest:
		return tintAttrCodeClient
	case status >= http.StatusMultipleChoices:
		return tintAttrCodeRedirect
	default:
		return tintAttrCodeOK
	}
}

// statusRecorder remembers the status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// validRequestID accepts short ids made of letters, digits, dots, dashes and underscores.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
