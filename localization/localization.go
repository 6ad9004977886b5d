package localization

import (
	"context"
	"sort"
	"strings"
)

type contextKey string

func (c contextKey) String() string {
	return "sitekit/localization/" + string(c)
}

const ctxKeyState = contextKey("stateKey")

// CookieName is the cookie that remembers the visitor's language choice.
const CookieName = "locale"

// Locale is a configured language together with its code.
type Locale struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Endonym   string `json:"endonym"`
	Direction string `json:"direction"`
}

// Table maps flat dotted keys to translated strings.
type Table map[string]string

// State is the language resolved for a single request.
type State struct {
	Language string
}

// ToContext adds the request language state to the supplied context.
func ToContext(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, ctxKeyState, state)
}

// FromContext extracts the request language state, nil when the request was not resolved.
func FromContext(ctx context.Context) *State {
	state, ok := ctx.Value(ctxKeyState).(*State)
	if !ok {
		return nil
	}
	return state
}

// LanguageFromContext returns the resolved request language or an empty string.
func LanguageFromContext(ctx context.Context) string {
	if state := FromContext(ctx); state != nil {
		return state.Language
	}
	return ""
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
