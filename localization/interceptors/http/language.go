package http

import (
	"net/http"
	"strings"

	"github.com/pitabwire/util"

	"github.com/pitabwire/sitekit/localization"
)

// InternalPrefix marks framework owned paths that are never language prefixed.
const InternalPrefix = "/_"

// LanguageHTTPMiddleware resolves the request language and installs it on the context.
// Requests without a supported language prefix are redirected with 302 Found.
func LanguageHTTPMiddleware(m *localization.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.Enabled() || strings.HasPrefix(r.URL.Path, InternalPrefix) {
				ctx := localization.ToContext(r.Context(), &localization.State{Language: m.Fallback()})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			res := m.Resolve(r)
			if res.PersistCookie {
				localization.SetCookie(w, res.Language)
			}

			if res.Redirect {
				util.Log(r.Context()).WithFields(map[string]any{
					"path":     r.URL.Path,
					"location": res.Location,
				}).Debug("redirecting to language prefixed path")

				http.Redirect(w, r, res.Location, http.StatusFound)
				return
			}

			ctx := localization.ToContext(r.Context(), &localization.State{Language: res.Language})
			m.Load(ctx, res.Language)

			w.Header().Set("Content-Language", res.Language)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
