package localization

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/pitabwire/util"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/telemetry"
)

//nolint:gochecknoglobals // one tracer per package
var tracer = telemetry.NewTracer("github.com/pitabwire/sitekit/localization")

// Manager resolves request languages and serves their translation tables.
//
// Tables are loaded at most once per language. A failed load is cached as an
// empty table and never retried, so missing keys render as the key itself.
type Manager struct {
	cfg       config.I18n
	supported []string
	loader    Loader

	tables sync.Map // map[string]Table
	group  singleflight.Group
}

// NewManager creates a manager for the configured locales. A nil loader serves empty tables.
func NewManager(cfg config.I18n, loader Loader) *Manager {
	if loader == nil {
		loader = StaticLoader{}
	}

	return &Manager{
		cfg:       cfg,
		supported: sortedKeys(cfg.Locales),
		loader:    loader,
	}
}

func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

func (m *Manager) Fallback() string {
	return m.cfg.Fallback
}

// Supported lists the configured language codes in sorted order.
func (m *Manager) Supported() []string {
	return slices.Clone(m.supported)
}

func (m *Manager) IsSupported(code string) bool {
	_, ok := m.cfg.Locales[code]
	return ok
}

// Info returns the locale description of code.
func (m *Manager) Info(code string) (Locale, bool) {
	info, ok := m.cfg.Locales[code]
	if !ok {
		return Locale{}, false
	}
	return Locale{Code: code, Name: info.Name, Endonym: info.Endonym, Direction: info.Direction}, true
}

// Locales lists the requested locales, or every locale when no code is given.
// Unknown codes are skipped.
func (m *Manager) Locales(codes ...string) []Locale {
	if len(codes) == 0 {
		codes = m.supported
	}

	locales := make([]Locale, 0, len(codes))
	for _, code := range codes {
		if l, ok := m.Info(code); ok {
			locales = append(locales, l)
		}
	}
	return locales
}

// Current is the request language, or the fallback outside of a resolved request.
func (m *Manager) Current(ctx context.Context) string {
	if lang := LanguageFromContext(ctx); lang != "" {
		return lang
	}
	return m.Fallback()
}

// Load returns the cached table of code, loading it on first use.
func (m *Manager) Load(ctx context.Context, code string) Table {
	if table, ok := m.tables.Load(code); ok {
		return table.(Table) //nolint:forcetypeassert // only Table values are stored
	}

	v, _, _ := m.group.Do(code, func() (any, error) {
		if table, ok := m.tables.Load(code); ok {
			return table, nil
		}

		loadCtx, span := tracer.Start(ctx, "LoadTranslations")
		table, err := m.loader.Load(loadCtx, code)
		tracer.End(loadCtx, span, err)
		if err != nil {
			util.Log(ctx).WithError(err).WithField("locale", code).
				Error("failed to load translations, serving untranslated keys")
			table = Table{}
		}
		if table == nil {
			table = Table{}
		}

		m.tables.Store(code, table)
		return table, nil
	})

	return v.(Table) //nolint:forcetypeassert // the loader closure always returns a Table
}

// Loaded reports whether code already has a cached table.
func (m *Manager) Loaded(code string) bool {
	_, ok := m.tables.Load(code)
	return ok
}

// Preload loads every configured language concurrently.
func (m *Manager) Preload(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, code := range m.supported {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m.Load(gctx, code)
			return nil
		})
	}
	return g.Wait()
}

// Translate looks key up in the request language.
func (m *Manager) Translate(ctx context.Context, key string) string {
	return m.TranslateIn(ctx, m.Current(ctx), key)
}

// TranslateIn looks key up in the table of code, returning key when there is no entry.
func (m *Manager) TranslateIn(ctx context.Context, code, key string) string {
	if !m.IsSupported(code) {
		return key
	}
	if value, ok := m.Load(ctx, code)[key]; ok {
		return value
	}
	return key
}

// URL prefixes p with the request language.
//
// A path that already starts with a supported language is returned as is,
// unless force is set, in which case that prefix is replaced by the request language.
func (m *Manager) URL(ctx context.Context, p string, force bool) string {
	if !m.Enabled() {
		return p
	}

	current := m.Current(ctx)
	segments := splitPath(p)
	if len(segments) == 0 {
		return "/" + current
	}

	if m.IsSupported(segments[0]) {
		if segments[0] == current || !force {
			return "/" + strings.Join(segments, "/")
		}
		segments = segments[1:]
	}

	return joinLocalePath(current, segments)
}

// Change builds the path of the same page in the language code.
func (m *Manager) Change(ctx context.Context, code, p string) string {
	if !m.IsSupported(code) {
		util.Log(ctx).WithField("locale", code).Warn("changing to an unsupported locale")
	}

	segments := splitPath(p)
	if len(segments) > 0 && m.IsSupported(segments[0]) {
		segments = segments[1:]
	}

	return joinLocalePath(code, segments)
}

func joinLocalePath(code string, segments []string) string {
	if len(segments) == 0 {
		return "/" + code
	}
	return "/" + code + "/" + strings.Join(segments, "/")
}
