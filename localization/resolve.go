package localization

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const cookieMaxAge = 365 * 24 * time.Hour

// Resolution is the language decision for one request.
type Resolution struct {
	Language string
	// Redirect is set when the path has no supported language prefix.
	Redirect bool
	Location string
	// PersistCookie is set when the choice should be remembered in the locale cookie.
	PersistCookie bool
}

// Resolve decides the request language.
//
// A path whose first segment is a supported language uses it. Any other path is
// redirected to the same path under the locale cookie language, else under the
// primary tag of the first Accept-Language entry, else under the fallback.
func (m *Manager) Resolve(r *http.Request) Resolution {
	segments := splitPath(r.URL.Path)

	if len(segments) > 0 && m.IsSupported(segments[0]) {
		res := Resolution{Language: segments[0]}
		if c, err := r.Cookie(CookieName); err != nil || c.Value != res.Language {
			res.PersistCookie = true
		}
		return res
	}

	res := Resolution{Language: m.Fallback(), Redirect: true}

	if c, err := r.Cookie(CookieName); err == nil && m.IsSupported(c.Value) {
		res.Language = c.Value
	} else if browser := PrimaryTag(r.Header.Get("Accept-Language")); browser != "" && m.IsSupported(browser) {
		res.Language = browser
		res.PersistCookie = true
	}

	res.Location = "/" + res.Language
	if p := r.URL.EscapedPath(); p != "" && p != "/" {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		res.Location += p
	}
	if r.URL.RawQuery != "" {
		res.Location += "?" + r.URL.RawQuery
	}

	return res
}

// PrimaryTag returns the lower case primary language subtag of the first
// Accept-Language entry, ignoring quality weights. "fi-FI,en;q=0.5" gives "fi".
func PrimaryTag(header string) string {
	first, _, _ := strings.Cut(header, ",")
	first, _, _ = strings.Cut(first, ";")
	first = strings.TrimSpace(first)
	if first == "" || first == "*" {
		return ""
	}

	if tag, err := language.Raw.Parse(first); err == nil {
		if base, _ := tag.Base(); base.String() != "und" {
			return base.String()
		}
	}

	primary, _, _ := strings.Cut(first, "-")
	return strings.ToLower(primary)
}

// SetCookie remembers code as the visitor's language for a year.
func SetCookie(w http.ResponseWriter, code string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    code,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}
