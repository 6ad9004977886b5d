package sitekit

import (
	"context"
	"os"

	"github.com/pitabwire/sitekit/localization"
)

// DefaultTranslationsDir is where translation files are read from, relative to
// the public directory, when WithTranslations is not given.
const DefaultTranslationsDir = "locales"

// WithTranslations sets where translation tables come from.
func WithTranslations(loader localization.Loader) Option {
	return func(_ context.Context, s *Service) {
		s.loader = loader
	}
}

// Localization is the language manager of the site.
func (s *Service) Localization() *localization.Manager {
	return s.localization
}

func (s *Service) setupLocalization(_ context.Context) {
	if s.loader == nil {
		s.loader = localization.NewFSLoader(os.DirFS(s.files.Dir()), DefaultTranslationsDir)
	}
	s.localization = localization.NewManager(s.site.I18n, s.loader)
}
