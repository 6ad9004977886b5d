// Package generator builds url slugs and element ids.
package generator

import (
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/xid"
	"golang.org/x/text/unicode/norm"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 13
)

var (
	disallowed = regexp.MustCompile(`[^a-z0-9\-\s\v\p{Z}]`)
	whitespace = regexp.MustCompile(`[\s\v\p{Z}]+`)
	dashes     = regexp.MustCompile(`-+`)
)

// Slug lower cases text, decomposes accented letters, drops everything except
// ascii letters, digits, dashes and whitespace, then joins words with single dashes.
// "Hello, Wörld!" gives "hello-world".
func Slug(text string) string {
	s := strings.ToLower(norm.NFKD.String(text))
	s = disallowed.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = whitespace.ReplaceAllString(s, "-")
	return dashes.ReplaceAllString(s, "-")
}

// ID is the slug of prefix followed by a dash and 13 random base36 characters.
func ID(prefix string) (string, error) {
	suffix, err := gonanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return "", err
	}
	return Slug(prefix) + "-" + suffix, nil
}

// MustID is ID for callers that treat a broken random source as fatal.
func MustID(prefix string) string {
	id, err := ID(prefix)
	if err != nil {
		panic(err)
	}
	return id
}

// RequestID is a sortable unique id for correlating a request's log lines.
func RequestID() string {
	return xid.New().String()
}
