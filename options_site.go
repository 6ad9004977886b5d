package sitekit

import (
	"context"
	"os"

	"github.com/pitabwire/sitekit/config"
	"github.com/pitabwire/sitekit/document"
	"github.com/pitabwire/sitekit/metadata"
)

const defaultPublicDir = "public"

// WithSite replaces the site configuration read from SITE_CONFIG_PATH.
func WithSite(site config.Site) Option {
	return func(_ context.Context, s *Service) {
		s.site = &site
	}
}

// WithMetadata replaces the per request metadata defaults.
func WithMetadata(defaults metadata.Record) Option {
	return func(_ context.Context, s *Service) {
		s.metadata = &defaults
	}
}

// Site is the effective site configuration.
func (s *Service) Site() config.Site {
	return *s.site
}

// MetadataDefaults is the record every request starts from.
func (s *Service) MetadataDefaults() metadata.Record {
	return *s.metadata
}

// Files resolves web paths inside the public directory.
func (s *Service) Files() *document.Files {
	return s.files
}

// Versions produces cache busting urls for public files.
func (s *Service) Versions() *document.Versions {
	return s.versions
}

func (s *Service) setupSite(ctx context.Context) {
	siteCfg, hasSiteCfg := s.Config().(config.ConfigurationSite)

	if s.site == nil {
		site := config.DefaultSite()
		if hasSiteCfg && siteCfg.SiteConfigFile() != "" {
			loaded, err := config.LoadSite(siteCfg.SiteConfigFile())
			if err != nil {
				s.Log(ctx).WithError(err).WithField("path", siteCfg.SiteConfigFile()).
					Error("could not load site configuration, using defaults")
			} else {
				site = loaded
			}
		}
		s.site = &site
	}

	for _, warning := range s.site.Warnings() {
		s.Log(ctx).Warn(warning)
	}

	publicDir, siteName := defaultPublicDir, s.Name()
	if hasSiteCfg {
		publicDir = siteCfg.PublicDirectory()
		if siteCfg.SiteName() != "" {
			siteName = siteCfg.SiteName()
		}
	}

	if s.metadata == nil {
		defaults := metadata.Defaults(siteName)
		s.metadata = &defaults
	}

	s.files = document.New(publicDir)
	s.versions = document.NewVersions(s.files)
}

// watchDocuments keeps version urls fresh while the service runs.
func (s *Service) watchDocuments(ctx context.Context) {
	if info, err := os.Stat(s.files.Dir()); err != nil || !info.IsDir() {
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.versions.Watch(watchCtx, nil); err != nil {
			s.Log(ctx).WithError(err).Warn("public directory watcher stopped")
		}
	}()

	s.AddCleanupMethod(func(_ context.Context) {
		cancel()
		<-done
	})
}
