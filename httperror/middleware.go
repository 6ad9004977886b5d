package httperror

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pitabwire/util"
)

// DefaultIgnorePatterns are path fragments that never get an error page.
var DefaultIgnorePatterns = []string{
	"/_",
	".jpg", ".jpeg", ".png", ".gif", ".svg",
	".webp", ".avif", ".ico", ".js", ".css",
}

// DefaultErrorSegment is the path segment of the error page route.
const DefaultErrorSegment = "error"

type middlewareOptions struct {
	ignore       []string
	errorSegment string
}

// Option configures the error middleware.
type Option func(*middlewareOptions)

// WithIgnore replaces the ignored path fragments.
func WithIgnore(patterns ...string) Option {
	return func(o *middlewareOptions) {
		o.ignore = patterns
	}
}

// WithErrorSegment changes the path segment that identifies the error page.
func WithErrorSegment(segment string) Option {
	return func(o *middlewareOptions) {
		o.errorSegment = segment
	}
}

// Middleware substitutes the configured error page for failed responses.
//
// Requests for the error page itself pass through, as do ignored paths; a
// failure those record without writing gets a plain text answer. A status query parameter renders
// that status straight away. Downstream responses with a status of 400 or more,
// StatusError failures and any other failure or panic (as a server error carrying
// its text) are rendered through the renderer.
func Middleware(n *Normalizer, renderer Renderer, opts ...Option) func(http.Handler) http.Handler {
	o := &middlewareOptions{
		ignore:       DefaultIgnorePatterns,
		errorSegment: DefaultErrorSegment,
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := NewState()
			r = r.WithContext(ToContext(r.Context(), state))

			if !n.Enabled() || isErrorPage(r.URL.Path, o.errorSegment) {
				passThrough(n, next, w, r, state)
				return
			}

			if override := r.URL.Query().Get("status"); override != "" {
				code, _ := strconv.Atoi(override)
				renderer.Render(w, r, state.Set(n, code), "")
				return
			}

			if ignored(r.URL.Path, o.ignore) {
				passThrough(n, next, w, r, state)
				return
			}

			iw := &interceptWriter{ResponseWriter: w}
			failure := serve(next, iw, r)
			if failure == nil {
				failure = state.failure
			}

			log := util.Log(r.Context()).WithField("path", r.URL.Path)

			if iw.committed() {
				if failure != nil {
					log.WithError(failure).Error("handler failed after the response was sent")
				}
				return
			}

			switch {
			case failure != nil:
				var se *StatusError
				if errors.As(failure, &se) && se.Code >= http.StatusBadRequest {
					status := state.Set(n, se.Code)
					log.WithError(failure).WithField("status", status.Int()).Info("rendering error page")
					renderer.Render(w, r, status, "")
					return
				}

				status := state.Set(n, http.StatusInternalServerError)
				state.SetMessage(failure.Error())
				log.WithError(failure).WithField("status", status.Int()).Error("request failed")
				renderer.Render(w, r, status, failure.Error())

			case iw.intercepted:
				status := state.Set(n, iw.status)
				log.WithFields(map[string]any{
					"upstream_status": iw.status,
					"status":          status.Int(),
				}).Debug("rendering error page")
				renderer.Render(w, r, status, "")
			}
		})
	}
}

// passThrough serves r without error pages. A recorded failure that left the
// response unwritten is answered with the plain status text.
func passThrough(n *Normalizer, next http.Handler, w http.ResponseWriter, r *http.Request, state *State) {
	pw := &passWriter{ResponseWriter: w}
	next.ServeHTTP(pw, r)
	if state.failure == nil {
		return
	}

	log := util.Log(r.Context()).WithError(state.failure).WithField("path", r.URL.Path)
	if pw.wrote {
		log.Error("handler failed after the response was sent")
		return
	}

	code := http.StatusInternalServerError
	var se *StatusError
	if errors.As(state.failure, &se) && se.Code >= http.StatusBadRequest {
		code = se.Code
	}
	status := state.Set(n, code)
	log.WithField("status", status.Int()).Error("request failed without an error page")

	prepareHeaders(w.Header(), "text/plain; charset=utf-8")
	w.WriteHeader(status.Int())
	_, _ = io.WriteString(w, status.Text())
}

func serve(next http.Handler, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
			panic(rec)
		}
		if recErr, ok := rec.(error); ok {
			err = recErr
			return
		}
		err = fmt.Errorf("%v", rec)
	}()

	next.ServeHTTP(w, r)
	return nil
}

func isErrorPage(p, segment string) bool {
	for _, part := range strings.Split(p, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func ignored(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(p, pattern) {
			return true
		}
	}
	return false
}
