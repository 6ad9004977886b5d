package site

import (
	"net/http"
	"slices"
	"time"

	"github.com/pitabwire/sitekit/config"
)

const (
	// ThemeCookie remembers the chosen colour theme.
	ThemeCookie = "theme"
	themeQuery  = "theme"

	themeCookieMaxAge = 365 * 24 * time.Hour
)

// ResolveTheme picks the page theme: a valid theme query parameter, which is
// remembered in the theme cookie, then a valid cookie, then the default.
// It is empty when themes are disabled.
func ResolveTheme(w http.ResponseWriter, r *http.Request, cfg config.Theme) string {
	if !cfg.Enabled {
		return ""
	}

	if chosen := r.URL.Query().Get(themeQuery); slices.Contains(cfg.Options, chosen) {
		http.SetCookie(w, &http.Cookie{
			Name:     ThemeCookie,
			Value:    chosen,
			Path:     "/",
			MaxAge:   int(themeCookieMaxAge.Seconds()),
			SameSite: http.SameSiteLaxMode,
		})
		return chosen
	}

	if c, err := r.Cookie(ThemeCookie); err == nil && slices.Contains(cfg.Options, c.Value) {
		return c.Value
	}
	return cfg.Default
}
