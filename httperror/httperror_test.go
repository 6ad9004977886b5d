package httperror_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/sitekit/client"
	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/httperror"
	"github.com/pitabwire/sitekit/localization"
)

type recordingRenderer struct {
	calls   int
	status  httperror.Status
	message string
}

func (rr *recordingRenderer) Render(w http.ResponseWriter, _ *http.Request, status httperror.Status, message string) {
	rr.calls++
	rr.status = status
	rr.message = message
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(status.Int())
	_, _ = fmt.Fprintf(w, "page:%d", status)
}

type HTTPErrorSuite struct {
	suite.Suite

	normalizer *httperror.Normalizer
	localizer  *localization.Manager
}

func TestHTTPErrorSuite(t *testing.T) {
	suite.Run(t, new(HTTPErrorSuite))
}

func (s *HTTPErrorSuite) SetupTest() {
	site := config.DefaultSite()
	s.normalizer = httperror.NewNormalizer(site.Errors)
	s.localizer = localization.NewManager(site.I18n, localization.StaticLoader{
		"en": {
			"error.404.description": "The page you are looking for does not exist.",
			"error.500.description": "Something went wrong on our end.",
			"error.404.title":       "Not Found",
		},
		"fi": {
			"error.404.description": "Etsimääsi sivua ei ole olemassa.",
		},
	})
}

func (s *HTTPErrorSuite) TestKnown() {
	s.Len(httperror.KnownStatuses(), 40)
	for _, code := range []int{400, 418, 421, 426, 428, 429, 431, 451, 500, 508, 510, 511} {
		s.True(httperror.Known(code), code)
	}
	for _, code := range []int{0, 200, 302, 399, 419, 420, 427, 430, 450, 509, 512, 999} {
		s.False(httperror.Known(code), code)
	}
	s.Equal("Not Found", httperror.StatusNotFound.Text())
	s.True(httperror.StatusBadGateway.IsServerError())
	s.False(httperror.StatusTeapot.IsServerError())
}

func (s *HTTPErrorSuite) TestNormalize() {
	testCases := []struct {
		name string
		code int
		want httperror.Status
	}{
		{name: "supported client error", code: 418, want: 418},
		{name: "supported server error", code: 503, want: 503},
		{name: "known client error falls back", code: 402, want: 404},
		{name: "known conflict falls back", code: 409, want: 404},
		{name: "known server error falls back", code: 502, want: 500},
		{name: "network auth falls back", code: 511, want: 500},
		{name: "unknown code", code: 999, want: 404},
		{name: "unparsable override", code: 0, want: 404},
		{name: "success is not an error status", code: 200, want: 404},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.want, s.normalizer.Normalize(tc.code))
		})
	}

	custom := httperror.NewNormalizer(config.Errors{
		Enabled:   true,
		Supported: []int{400, 503},
		Fallback:  config.ErrorFallback{ClientError: 400, ServerError: 503},
	})
	s.Equal(httperror.StatusBadRequest, custom.Normalize(404))
	s.Equal(httperror.StatusServiceUnavailable, custom.Normalize(500))
	s.Equal(httperror.StatusNotFound, custom.Normalize(600))
}

func (s *HTTPErrorSuite) TestStateAndTranslations() {
	state := httperror.NewState()
	s.Equal(httperror.StatusNotFound, state.Status())

	s.Equal(httperror.StatusServerError, state.Set(s.normalizer, 504))
	s.Equal(httperror.StatusServerError, state.Status())

	ctx := httperror.ToContext(context.Background(), state)
	s.Same(state, httperror.FromContext(ctx))
	s.Nil(httperror.FromContext(context.Background()))

	s.Equal("error.404.title", httperror.TitleKey(404))
	s.Equal("Not Found", httperror.Title(context.Background(), s.localizer, 404))
	s.Equal("error.418.title", httperror.Title(context.Background(), s.localizer, 418))

	fi := localization.ToContext(context.Background(), &localization.State{Language: "fi"})
	s.Equal("Etsimääsi sivua ei ole olemassa.", httperror.Description(fi, s.localizer, 404))
}

func (s *HTTPErrorSuite) TestMiddleware() {
	testCases := []struct {
		name        string
		target      string
		handler     http.Handler
		wantCode    int
		wantBody    string
		wantRender  bool
		wantStatus  httperror.Status
		wantMessage string
	}{
		{
			name:     "success passes through",
			target:   "/en/about",
			handler:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "about") }),
			wantCode: http.StatusOK,
			wantBody: "about",
		},
		{
			name:       "downstream not found renders page",
			target:     "/en/missing",
			handler:    http.NotFoundHandler(),
			wantCode:   http.StatusNotFound,
			wantBody:   "page:404",
			wantRender: true,
			wantStatus: 404,
		},
		{
			name:   "unsupported downstream status is normalized",
			target: "/en/pay",
			handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
			}),
			wantCode:   http.StatusNotFound,
			wantBody:   "page:404",
			wantRender: true,
			wantStatus: 404,
		},
		{
			name:   "returned status error",
			target: "/en/secret",
			handler: httperror.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) error {
				return httperror.NewStatusError(http.StatusForbidden, errors.New("members only"))
			}),
			wantCode:   http.StatusForbidden,
			wantBody:   "page:403",
			wantRender: true,
			wantStatus: 403,
		},
		{
			name:   "returned plain error",
			target: "/en/db",
			handler: httperror.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) error {
				return errors.New("database offline")
			}),
			wantCode:    http.StatusInternalServerError,
			wantBody:    "page:500",
			wantRender:  true,
			wantStatus:  500,
			wantMessage: "database offline",
		},
		{
			name:   "panic",
			target: "/en/boom",
			handler: http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				panic("boom")
			}),
			wantCode:    http.StatusInternalServerError,
			wantBody:    "page:500",
			wantRender:  true,
			wantStatus:  500,
			wantMessage: "boom",
		},
		{
			name:       "status override",
			target:     "/en/about?status=503",
			handler:    http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) { s.Fail("must not run") }),
			wantCode:   http.StatusServiceUnavailable,
			wantBody:   "page:503",
			wantRender: true,
			wantStatus: 503,
		},
		{
			name:       "garbage override",
			target:     "/en/about?status=abc",
			handler:    http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) { s.Fail("must not run") }),
			wantCode:   http.StatusNotFound,
			wantBody:   "page:404",
			wantRender: true,
			wantStatus: 404,
		},
		{
			name:     "error page is never intercepted",
			target:   "/en/error?status=500",
			handler:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { http.Error(w, "raw", 500) }),
			wantCode: http.StatusInternalServerError,
			wantBody: "raw\n",
		},
		{
			name:   "failing error page answers in plain text",
			target: "/en/error?status=404",
			handler: httperror.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) error {
				return errors.New("render page: template exploded")
			}),
			wantCode: http.StatusInternalServerError,
			wantBody: "Internal Server Error",
		},
		{
			name:   "failing ignored asset keeps its status",
			target: "/en/img/secret.png",
			handler: httperror.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) error {
				return httperror.NewStatusError(http.StatusForbidden, errors.New("members only"))
			}),
			wantCode: http.StatusForbidden,
			wantBody: "Forbidden",
		},
		{
			name:     "ignored asset",
			target:   "/en/img/logo.png",
			handler:  http.NotFoundHandler(),
			wantCode: http.StatusNotFound,
			wantBody: "404 page not found\n",
		},
		{
			name:     "internal path",
			target:   "/_static/app",
			handler:  http.NotFoundHandler(),
			wantCode: http.StatusNotFound,
			wantBody: "404 page not found\n",
		},
		{
			name:   "failure after commit keeps response",
			target: "/en/stream",
			handler: httperror.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) error {
				_, _ = io.WriteString(w, "partial")
				return errors.New("late failure")
			}),
			wantCode: http.StatusOK,
			wantBody: "partial",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			renderer := &recordingRenderer{}
			handler := httperror.Middleware(s.normalizer, renderer)(tc.handler)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.target, nil))

			s.Equal(tc.wantCode, w.Code)
			s.Equal(tc.wantBody, w.Body.String())
			if !tc.wantRender {
				s.Zero(renderer.calls)
				return
			}
			s.Equal(1, renderer.calls)
			s.Equal(tc.wantStatus, renderer.status)
			s.Equal(tc.wantMessage, renderer.message)
		})
	}
}

func (s *HTTPErrorSuite) TestMiddlewareOptionsAndDisabled() {
	renderer := &recordingRenderer{}

	custom := httperror.Middleware(s.normalizer, renderer,
		httperror.WithIgnore("/api/"),
		httperror.WithErrorSegment("oops"),
	)(http.NotFoundHandler())

	w := httptest.NewRecorder()
	custom.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/en/logo.png", nil))
	s.Equal("page:404", w.Body.String())

	w = httptest.NewRecorder()
	custom.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/en/oops", nil))
	s.Equal("404 page not found\n", w.Body.String())

	cfg := config.DefaultSite().Errors
	cfg.Enabled = false
	disabled := httperror.Middleware(httperror.NewNormalizer(cfg), renderer)(http.NotFoundHandler())

	w = httptest.NewRecorder()
	disabled.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/en/missing?status=500", nil))
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(1, renderer.calls)
}

func (s *HTTPErrorSuite) TestHandlerFuncWithoutMiddleware() {
	handler := httperror.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) error {
		return fmt.Errorf("wrapped: %w", httperror.NewStatusError(http.StatusTeapot, nil))
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/en/tea", nil))
	s.Equal(http.StatusTeapot, w.Code)
}

func (s *HTTPErrorSuite) TestErrorPath() {
	s.Equal("/fi/error?path=%2Ffi%2Fblog&status=404", httperror.ErrorPath("fi", 404, "/fi/blog", ""))
	s.Equal(
		"/en/error?message=db+down&path=%2Fen&status=500",
		httperror.ErrorPath("en", 500, "/en", "db down"),
	)

	r := httptest.NewRequest(http.MethodGet, "/fi/blog", nil)
	s.Equal("fi", httperror.PageLanguage(r, s.localizer))

	r = httptest.NewRequest(http.MethodGet, "/sv/blog", nil)
	s.Equal("en", httperror.PageLanguage(r, s.localizer))
}

func (s *HTTPErrorSuite) TestWriteText() {
	r := httptest.NewRequest(http.MethodGet, "/en/missing", nil)

	w := httptest.NewRecorder()
	httperror.WriteText(w, r, s.localizer, 404, "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	s.Equal("The page you are looking for does not exist.", w.Body.String())

	w = httptest.NewRecorder()
	httperror.WriteText(w, r, s.localizer, 500, "database offline")
	s.Equal("database offline", w.Body.String())
}

func (s *HTTPErrorSuite) TestFetchRenderer() {
	queries := make(chan string, 1)
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Path + "?" + r.URL.RawQuery
		_, _ = io.WriteString(w, "<h1>error page</h1>")
	}))
	defer site.Close()

	renderer := httperror.NewFetchRenderer(
		client.NewHTTPClient(client.WithHTTPTelemetryDisabled()), site.URL, s.localizer)

	r := httptest.NewRequest(http.MethodGet, "/fi/blog", nil)
	w := httptest.NewRecorder()
	w.Header().Set("Content-Length", "12")
	renderer.Render(w, r, 404, "")

	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("text/html; charset=utf-8", w.Header().Get("Content-Type"))
	s.Empty(w.Header().Get("Content-Length"))
	s.Equal("<h1>error page</h1>", w.Body.String())
	s.Equal("/fi/error?path=%2Ffi%2Fblog&status=404", <-queries)
}

func (s *HTTPErrorSuite) TestFetchRendererFallsBackToText() {
	site := httptest.NewServer(http.NotFoundHandler())
	origin := site.URL
	site.Close()

	renderer := httperror.NewFetchRenderer(
		client.NewHTTPClient(client.WithHTTPTelemetryDisabled()), origin, s.localizer)

	r := httptest.NewRequest(http.MethodGet, "/fi/blog", nil)
	r = r.WithContext(localization.ToContext(r.Context(), &localization.State{Language: "fi"}))

	w := httptest.NewRecorder()
	renderer.Render(w, r, 404, "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	s.Equal("Etsimääsi sivua ei ole olemassa.", w.Body.String())

	w = httptest.NewRecorder()
	renderer.Render(w, r, 500, "database offline")
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal("database offline", w.Body.String())
}

func (s *HTTPErrorSuite) TestHandlerRenderer() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{lang}/error", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Query().Get("status") == "500" {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_, _ = fmt.Fprintf(w, "%s:%s:%s", r.PathValue("lang"), r.URL.Query().Get("status"), r.URL.Query().Get("message"))
	})
	renderer := httperror.NewHandlerRenderer(mux, s.localizer)

	w := httptest.NewRecorder()
	renderer.Render(w, httptest.NewRequest(http.MethodGet, "/fi/blog", nil), 500, "db down")
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal("text/html; charset=utf-8", w.Header().Get("Content-Type"))
	s.Equal("fi:500:db down", w.Body.String())

	failing := httperror.NewHandlerRenderer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("template missing")
	}), s.localizer)

	w = httptest.NewRecorder()
	failing.Render(w, httptest.NewRequest(http.MethodGet, "/en/blog", nil), 404, "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("The page you are looking for does not exist.", w.Body.String())
}

func (s *HTTPErrorSuite) TestHandlerRendererRejectsUnusablePage() {
	testCases := []struct {
		name    string
		handler http.Handler
	}{
		{
			name: "returned error",
			handler: httperror.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) error {
				return errors.New("render page: template exploded")
			}),
		},
		{
			name:    "nothing written",
			handler: http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}),
		},
		{
			name: "server failure of its own",
			handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, "<p>upstream</p>")
			}),
		},
		{
			name: "not html",
			handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"error":"missing"}`)
			}),
		},
		{
			name: "redirect",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/en/login", http.StatusFound)
			}),
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			renderer := httperror.NewHandlerRenderer(tc.handler, s.localizer)

			w := httptest.NewRecorder()
			renderer.Render(w, httptest.NewRequest(http.MethodGet, "/en/blog", nil), 404, "")
			s.Equal(http.StatusNotFound, w.Code)
			s.Equal("text/plain; charset=utf-8", w.Header().Get("Content-Type"))
			s.Equal("The page you are looking for does not exist.", w.Body.String())
		})
	}
}

func (s *HTTPErrorSuite) TestHandlerRendererKeepsPageFailureOffOuterState() {
	outer := httperror.NewState()
	renderer := httperror.NewHandlerRenderer(httperror.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) error {
		return errors.New("render page: template exploded")
	}), s.localizer)

	r := httptest.NewRequest(http.MethodGet, "/en/blog", nil)
	r = r.WithContext(httperror.ToContext(r.Context(), outer))

	w := httptest.NewRecorder()
	renderer.Render(w, r, 404, "")
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("The page you are looking for does not exist.", w.Body.String())
	s.NoError(outer.Failure())
}

func (s *HTTPErrorSuite) TestFetchRendererRejectsUnusablePage() {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name:    "empty success",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
		},
		{
			name: "plain text server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "template exploded", http.StatusInternalServerError)
			},
		},
		{
			name: "unavailable",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = io.WriteString(w, "<p>maintenance</p>")
			},
		},
		{
			name: "redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/en/login", http.StatusFound)
			},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			site := httptest.NewServer(tc.handler)
			defer site.Close()

			renderer := httperror.NewFetchRenderer(
				client.NewHTTPClient(client.WithHTTPTelemetryDisabled(), client.WithHTTPNoRedirects()),
				site.URL, s.localizer)

			w := httptest.NewRecorder()
			renderer.Render(w, httptest.NewRequest(http.MethodGet, "/en/blog", nil), 404, "")
			s.Equal(http.StatusNotFound, w.Code)
			s.Equal("text/plain; charset=utf-8", w.Header().Get("Content-Type"))
			s.Equal("The page you are looking for does not exist.", w.Body.String())
		})
	}
}

func (s *HTTPErrorSuite) TestFetchRendererOrigin() {
	var foreignHits atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		foreignHits.Add(1)
		_, _ = io.WriteString(w, "<h1>foreign</h1>")
	}))
	defer foreign.Close()

	received := make(chan http.Header, 1)
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Clone()
		_, _ = io.WriteString(w, "<h1>own page</h1>")
	}))
	defer site.Close()

	httpClient := client.NewHTTPClient(client.WithHTTPTelemetryDisabled())
	foreignHost := strings.TrimPrefix(foreign.URL, "http://")

	newRequest := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/en/blog", nil)
		r.Host = foreignHost
		r.Header.Set("Cookie", "session=secret")
		return r
	}

	unset := httperror.NewFetchRenderer(httpClient, "", s.localizer,
		httperror.WithFetchHeader("X-Internal", "token"))
	w := httptest.NewRecorder()
	unset.Render(w, newRequest(), 404, "")
	s.Equal("text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	s.Equal("The page you are looking for does not exist.", w.Body.String())

	resolved := httperror.NewFetchRenderer(httpClient, "", s.localizer,
		httperror.WithOriginFunc(func() string { return site.URL + "/" }),
		httperror.WithFetchHeader("X-Internal", "token"))
	w = httptest.NewRecorder()
	resolved.Render(w, newRequest(), 404, "")
	s.Equal("<h1>own page</h1>", w.Body.String())

	header := <-received
	s.Equal("token", header.Get("X-Internal"))
	s.Equal("session=secret", header.Get("Cookie"))

	configured := httperror.NewFetchRenderer(httpClient, site.URL, s.localizer,
		httperror.WithOriginFunc(func() string { return foreign.URL }))
	w = httptest.NewRecorder()
	configured.Render(w, newRequest(), 404, "")
	s.Equal("<h1>own page</h1>", w.Body.String())
	<-received

	s.Zero(foreignHits.Load())
}
