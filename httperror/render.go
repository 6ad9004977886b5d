package httperror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pitabwire/util"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/sitekit/telemetry"
)

const maxErrorPageLen = 1 << 20

//nolint:gochecknoglobals // one tracer per package
var tracer = telemetry.NewTracer("github.com/pitabwire/sitekit/httperror")

// Renderer writes the error page of status as the response to r.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, status Status, message string)
}

// Localizer is the language knowledge the renderers need.
type Localizer interface {
	Translator
	IsSupported(code string) bool
	Current(ctx context.Context) string
}

// PageLanguage picks the error page language: the first path segment when it is
// a supported language, else the request language.
func PageLanguage(r *http.Request, l Localizer) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if first != "" && l.IsSupported(first) {
		return first
	}
	return l.Current(r.Context())
}

// ErrorPath builds the error page path with its query for status.
func ErrorPath(lang string, status Status, originalPath, message string) string {
	q := url.Values{}
	q.Set("status", status.String())
	q.Set("path", originalPath)
	if message != "" {
		q.Set("message", message)
	}
	return "/" + lang + "/" + DefaultErrorSegment + "?" + q.Encode()
}

// WriteText is the plain text fallback: the message, or the status description.
func WriteText(w http.ResponseWriter, r *http.Request, t Translator, status Status, message string) {
	body := message
	if body == "" {
		body = Description(r.Context(), t, status)
	}

	prepareHeaders(w.Header(), "text/plain; charset=utf-8")
	w.WriteHeader(status.Int())
	_, _ = io.WriteString(w, body)
}

func prepareHeaders(h http.Header, contentType string) {
	h.Del("Content-Length")
	h.Del("Content-Encoding")
	h.Del("ETag")
	h.Del("Last-Modified")
	h.Set("Content-Type", contentType)
}

func writeHTML(w http.ResponseWriter, status Status, body []byte) {
	prepareHeaders(w.Header(), "text/html; charset=utf-8")
	w.WriteHeader(status.Int())
	_, _ = w.Write(body)
}

// ErrNoOrigin is returned by the fetch when no origin to request the error page
// from is known.
var ErrNoOrigin = errors.New("no error page origin configured")

// checkPage reports why a rendered error page cannot be sent in place of the
// error. A server error status is only accepted when it is the one rendered.
func checkPage(requested Status, code int, contentType string, body []byte) error {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	switch {
	case code == 0:
		return errors.New("error page wrote no response")
	case isRedirect(code):
		return fmt.Errorf("error page redirected with status %d", code)
	case code >= http.StatusInternalServerError && code != requested.Int():
		return fmt.Errorf("error page failed with status %d", code)
	case len(bytes.TrimSpace(body)) == 0:
		return errors.New("error page body is empty")
	case !strings.HasPrefix(strings.ToLower(contentType), "text/html"):
		return fmt.Errorf("error page has content type %q", contentType)
	}
	return nil
}

// FetchRenderer renders error pages by requesting the site's own error route.
type FetchRenderer struct {
	client     *http.Client
	origin     string
	originFunc func() string
	header     http.Header
	localizer  Localizer
}

// FetchOption configures a FetchRenderer.
type FetchOption func(*FetchRenderer)

// WithOriginFunc resolves the origin on every render when the origin passed to
// NewFetchRenderer is empty, typically the listener the service is bound to.
func WithOriginFunc(fn func() string) FetchOption {
	return func(f *FetchRenderer) {
		f.originFunc = fn
	}
}

// WithFetchHeader sets a header on every error page request.
func WithFetchHeader(name, value string) FetchOption {
	return func(f *FetchRenderer) {
		f.header.Set(name, value)
	}
}

// NewFetchRenderer creates a renderer fetching from origin. The request host is
// never used as origin: with neither origin nor WithOriginFunc every render
// falls back to text.
func NewFetchRenderer(client *http.Client, origin string, l Localizer, opts ...FetchOption) *FetchRenderer {
	f := &FetchRenderer{
		client:    client,
		origin:    strings.TrimRight(origin, "/"),
		header:    http.Header{},
		localizer: l,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FetchRenderer) originOf() string {
	if f.origin != "" || f.originFunc == nil {
		return f.origin
	}
	return strings.TrimRight(f.originFunc(), "/")
}

func (f *FetchRenderer) Render(w http.ResponseWriter, r *http.Request, status Status, message string) {
	ctx, span := tracer.Start(r.Context(), "FetchErrorPage",
		trace.WithAttributes(attribute.Int("http.response.status_code", status.Int())))

	path := ErrorPath(PageLanguage(r, f.localizer), status, r.URL.Path, message)

	body, err := f.fetch(ctx, r, status, path)
	tracer.End(ctx, span, err)
	if err != nil {
		util.Log(ctx).WithError(err).WithField("target", path).Warn("error page fetch failed, using text fallback")
		WriteText(w, r, f.localizer, status, message)
		return
	}

	writeHTML(w, status, body)
}

func (f *FetchRenderer) fetch(ctx context.Context, r *http.Request, status Status, path string) ([]byte, error) {
	origin := f.originOf()
	if origin == "" {
		return nil, ErrNoOrigin
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+path, nil)
	if err != nil {
		return nil, err
	}
	for name, values := range f.header {
		req.Header[name] = values
	}
	if cookie := r.Header.Get("Cookie"); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer util.CloseAndLogOnError(ctx, resp.Body, "could not close error page body")

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorPageLen))
	if err != nil {
		return nil, err
	}

	if err = checkPage(status, resp.StatusCode, resp.Header.Get("Content-Type"), body); err != nil {
		return nil, err
	}
	return body, nil
}

// HandlerRenderer renders error pages by dispatching to an in-process handler.
type HandlerRenderer struct {
	handler   http.Handler
	localizer Localizer
}

func NewHandlerRenderer(handler http.Handler, l Localizer) *HandlerRenderer {
	return &HandlerRenderer{handler: handler, localizer: l}
}

func (h *HandlerRenderer) Render(w http.ResponseWriter, r *http.Request, status Status, message string) {
	target := ErrorPath(PageLanguage(r, h.localizer), status, r.URL.Path, message)

	body, err := h.dispatch(r, status, target)
	if err != nil {
		util.Log(r.Context()).WithError(err).WithField("target", target).
			Warn("error page handler failed, using text fallback")
		WriteText(w, r, h.localizer, status, message)
		return
	}

	writeHTML(w, status, body)
}

func (h *HandlerRenderer) dispatch(r *http.Request, status Status, target string) ([]byte, error) {
	pageState := NewState()
	req, err := http.NewRequestWithContext(ToContext(r.Context(), pageState), http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	req.Host = r.Host

	buf := &bufferWriter{header: http.Header{}}
	if err = serve(h.handler, buf, req); err != nil {
		return nil, err
	}
	if pageState.failure != nil {
		return nil, pageState.failure
	}

	body := buf.body.Bytes()
	if err = checkPage(status, buf.status, buf.header.Get("Content-Type"), body); err != nil {
		return nil, err
	}
	return body, nil
}

func isRedirect(code int) bool {
	return code >= http.StatusMultipleChoices && code < http.StatusBadRequest
}

// bufferWriter collects a response in memory.
type bufferWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferWriter) Header() http.Header {
	return b.header
}

func (b *bufferWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}
