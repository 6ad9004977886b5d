// Package metadata accumulates the SEO metadata of the page being rendered.
package metadata

import (
	"context"
	"net/http"
	"slices"
	"strings"
)

// Type is the Open Graph type of a page.
type Type string

const (
	TypeWebsite Type = "website"
	TypeArticle Type = "article"
	TypeProfile Type = "profile"
	TypeVideo   Type = "video"
	TypeMusic   Type = "music"
	TypeImage   Type = "image"
)

func (t Type) Valid() bool {
	switch t {
	case TypeWebsite, TypeArticle, TypeProfile, TypeVideo, TypeMusic, TypeImage:
		return true
	}
	return false
}

const (
	// DefaultTitle marks pages that never set a title.
	DefaultTitle = "Missing title!"
	placeholder  = "%s"
)

// Record is the metadata of one page.
type Record struct {
	Index    bool
	Follow   bool
	Absolute bool
	Template string
	Title    string

	Description string
	Keywords    []string
	Image       string
	Type        Type
}

// Defaults is the record every request starts from. The title template adds
// siteName when one is configured.
func Defaults(siteName string) Record {
	template := placeholder
	if siteName != "" {
		template = placeholder + " | " + siteName
	}
	return Record{
		Template: template,
		Title:    DefaultTitle,
	}
}

func (r Record) clone() Record {
	r.Keywords = slices.Clone(r.Keywords)
	return r
}

// Patch holds the fields to change, nil fields are left alone.
type Patch struct {
	Index    *bool
	Follow   *bool
	Absolute *bool
	Template *string
	Title    *string

	Description *string
	Keywords    []string
	Image       *string
	Type        *Type
}

// Value returns a pointer to v, for filling a Patch.
func Value[T any](v T) *T {
	return &v
}

type phase int

const (
	mutable phase = iota
	finalized
)

// Store holds the record of one request. Once a patch sets Absolute the store
// is finalized and rejects further patches until Reset.
type Store struct {
	defaults Record
	record   Record
	phase    phase
}

func NewStore(defaults Record) *Store {
	return &Store{
		defaults: defaults.clone(),
		record:   defaults.clone(),
	}
}

// Get returns a copy of the current record.
func (s *Store) Get() Record {
	return s.record.clone()
}

func (s *Store) Finalized() bool {
	return s.phase == finalized
}

// Set merges p into the record. It reports false, changing nothing, when the
// store is finalized or p carries an unknown type.
func (s *Store) Set(p Patch) bool {
	if s.phase == finalized {
		return false
	}
	if p.Type != nil && !p.Type.Valid() {
		return false
	}

	r := s.record
	if p.Index != nil {
		r.Index = *p.Index
	}
	if p.Follow != nil {
		r.Follow = *p.Follow
	}
	if p.Absolute != nil {
		r.Absolute = *p.Absolute
	}
	if p.Template != nil {
		r.Template = *p.Template
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Keywords != nil {
		r.Keywords = slices.Clone(p.Keywords)
	}
	if p.Image != nil {
		r.Image = *p.Image
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	s.record = r

	if p.Absolute != nil && *p.Absolute {
		s.phase = finalized
	}
	return true
}

// Reset restores the defaults and makes the store mutable again.
func (s *Store) Reset() {
	s.record = s.defaults.clone()
	s.phase = mutable
}

// Title is the page title with the template applied, or the bare title for absolute records.
func (s *Store) Title() string {
	r := s.record
	if r.Absolute || r.Title == "" || !strings.Contains(r.Template, placeholder) {
		return r.Title
	}
	return strings.Replace(r.Template, placeholder, r.Title, 1)
}

// Robots is the content of the robots meta tag.
func (s *Store) Robots() string {
	index, follow := "noindex", "nofollow"
	if s.record.Index {
		index = "index"
	}
	if s.record.Follow {
		follow = "follow"
	}
	return index + ", " + follow
}

// Tag is one meta element of the document head.
type Tag struct {
	Name     string
	Property string
	Content  string
}

// Tags lists the meta elements for the record, skipping empty values.
func (s *Store) Tags() []Tag {
	r := s.record
	tags := []Tag{{Name: "robots", Content: s.Robots()}}

	if r.Description != "" {
		tags = append(tags,
			Tag{Name: "description", Content: r.Description},
			Tag{Property: "og:description", Content: r.Description})
	}
	if len(r.Keywords) > 0 {
		tags = append(tags, Tag{Name: "keywords", Content: strings.Join(r.Keywords, ", ")})
	}
	tags = append(tags, Tag{Property: "og:title", Content: s.Title()})
	if r.Image != "" {
		tags = append(tags, Tag{Property: "og:image", Content: r.Image})
	}
	if r.Type != "" {
		tags = append(tags, Tag{Property: "og:type", Content: string(r.Type)})
	}
	return tags
}

type contextKey string

func (c contextKey) String() string {
	return "sitekit/metadata/" + string(c)
}

const ctxKeyStore = contextKey("storeKey")

func ToContext(ctx context.Context, store *Store) context.Context {
	return context.WithValue(ctx, ctxKeyStore, store)
}

// FromContext returns the request store, or a detached default store outside of
// the metadata middleware.
func FromContext(ctx context.Context) *Store {
	if store, ok := ctx.Value(ctxKeyStore).(*Store); ok {
		return store
	}
	return NewStore(Defaults(""))
}

// Middleware gives every request a fresh store seeded with defaults.
func Middleware(defaults Record) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ToContext(r.Context(), NewStore(defaults))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
