// Package site is the starter site served by cmd/site.
package site

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/pitabwire/util"

	"github.com/pitabwire/sitekit"
	"github.com/pitabwire/sitekit/httperror"
	"github.com/pitabwire/sitekit/localization"
	"github.com/pitabwire/sitekit/metadata"
)

const (
	stylesheet   = "/site.css"
	staticPrefix = "/_static"
)

var (
	//go:embed templates/*.html
	templateFS embed.FS

	//go:embed locales/*.toml
	localeFS embed.FS
)

// Translations loads the translation files embedded in the binary.
func Translations() localization.Loader {
	return localization.NewFSLoader(localeFS, "locales")
}

// Handler routes the pages of the site.
type Handler struct {
	svc     *sitekit.Service
	home    *template.Template
	errPage *template.Template
	static  http.Handler
	mux     *http.ServeMux
}

// New parses the page templates and builds the site routes for svc.
func New(svc *sitekit.Service) (*Handler, error) {
	base, err := template.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	h := &Handler{svc: svc, mux: http.NewServeMux()}
	if h.home, err = page(base, "templates/home.html"); err != nil {
		return nil, err
	}
	if h.errPage, err = page(base, "templates/error.html"); err != nil {
		return nil, err
	}

	h.static = http.StripPrefix(staticPrefix, http.FileServer(http.Dir(svc.Files().Dir())))
	h.mux.Handle("GET /{$}", httperror.HandlerFunc(h.serveHome))
	h.mux.Handle("GET /{lang}", httperror.HandlerFunc(h.serveHome))
	h.mux.Handle("GET /{lang}/"+httperror.DefaultErrorSegment, httperror.HandlerFunc(h.serveError))
	h.mux.Handle("/", httperror.HandlerFunc(notFound))
	return h, nil
}

func page(base *template.Template, file string) (*template.Template, error) {
	t, err := base.Clone()
	if err != nil {
		return nil, err
	}
	if t, err = t.ParseFS(templateFS, file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return t, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, staticPrefix+"/") {
		h.static.ServeHTTP(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

func notFound(_ http.ResponseWriter, _ *http.Request) error {
	return httperror.NewStatusError(http.StatusNotFound, nil)
}

func (h *Handler) serveHome(w http.ResponseWriter, r *http.Request) error {
	if err := h.checkLanguage(r); err != nil {
		return err
	}

	ctx := r.Context()
	loc := h.svc.Localization()
	metadata.FromContext(ctx).Set(metadata.Patch{
		Index:       metadata.Value(true),
		Follow:      metadata.Value(true),
		Title:       metadata.Value(loc.Translate(ctx, "page.home.title")),
		Description: metadata.Value(loc.Translate(ctx, "page.home.description")),
		Keywords:    splitKeywords(loc.Translate(ctx, "page.home.keywords")),
		Type:        metadata.Value(metadata.TypeWebsite),
	})

	return h.render(w, r, h.home, http.StatusOK, nil)
}

// serveError renders the page the error middleware fetches. Its query carries
// status, path and an optional message.
func (h *Handler) serveError(w http.ResponseWriter, r *http.Request) error {
	if err := h.checkLanguage(r); err != nil {
		return err
	}

	ctx := r.Context()
	q := r.URL.Query()
	code, _ := strconv.Atoi(q.Get("status"))
	status := h.svc.Errors().Normalize(code)

	info := &errorInfo{
		Status:      status.Int(),
		Title:       httperror.Title(ctx, h.svc.Localization(), status),
		Description: httperror.Description(ctx, h.svc.Localization(), status),
		Message:     q.Get("message"),
		Path:        q.Get("path"),
	}

	metadata.FromContext(ctx).Set(metadata.Patch{
		Title:       metadata.Value(info.Title),
		Description: metadata.Value(info.Description),
	})

	return h.render(w, r, h.errPage, status.Int(), info)
}

// checkLanguage rejects a language segment the site does not serve. With i18n
// disabled every path is unprefixed and any segment is a missing page.
func (h *Handler) checkLanguage(r *http.Request) error {
	lang := r.PathValue("lang")
	loc := h.svc.Localization()
	if lang == "" || (loc.Enabled() && loc.IsSupported(lang)) {
		return nil
	}
	return httperror.NewStatusError(http.StatusNotFound, nil)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, t *template.Template, status int, info *errorInfo) error {
	data := h.pageData(r, info)
	data.Theme = ResolveTheme(w, r, h.svc.Site().Theme)

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render page: %w", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		util.Log(r.Context()).WithError(err).Debug("client went away while writing page")
	}
	return nil
}

func (h *Handler) pageData(r *http.Request, info *errorInfo) *pageData {
	ctx := r.Context()
	loc := h.svc.Localization()
	store := metadata.FromContext(ctx)

	lang := loc.Current(ctx)
	data := &pageData{
		ctx:        ctx,
		loc:        loc,
		Lang:       lang,
		Dir:        "ltr",
		Title:      store.Title(),
		Tags:       store.Tags(),
		Stylesheet: staticPrefix + h.svc.Versions().URL(ctx, stylesheet),
		Error:      info,
	}
	if l, ok := loc.Info(lang); ok && l.Direction != "" {
		data.Dir = l.Direction
	}

	pagePath := r.URL.Path
	if info != nil && info.Path != "" {
		pagePath = info.Path
	}
	if loc.Enabled() {
		for _, l := range loc.Locales() {
			data.Alternates = append(data.Alternates, alternate{
				Code:    l.Code,
				Endonym: l.Endonym,
				Href:    loc.Change(ctx, l.Code, pagePath),
				Current: l.Code == lang,
			})
		}
	}

	if themeCfg := h.svc.Site().Theme; themeCfg.Enabled {
		data.Themes = themeCfg.Options
	}
	return data
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

type errorInfo struct {
	Status      int
	Title       string
	Description string
	Message     string
	Path        string
}

type alternate struct {
	Code    string
	Endonym string
	Href    string
	Current bool
}

type pageData struct {
	ctx context.Context
	loc *localization.Manager

	Lang       string
	Dir        string
	Title      string
	Tags       []metadata.Tag
	Alternates []alternate
	Theme      string
	Themes     []string
	Stylesheet string
	Error      *errorInfo
}

// T translates key in the page language.
func (p *pageData) T(key string) string {
	return p.loc.Translate(p.ctx, key)
}
