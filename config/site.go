package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownFallbackLocale   = errors.New("fallback locale is not a configured locale")
	ErrUnknownDefaultTheme     = errors.New("default theme is not a configured theme option")
	ErrUnsupportedConfigFormat = errors.New("unsupported site config format")
)

// LocaleInfo describes one configured language.
type LocaleInfo struct {
	Name      string `yaml:"name"      toml:"name"`
	Endonym   string `yaml:"endonym"   toml:"endonym"`
	Direction string `yaml:"direction" toml:"direction"`
}

type I18n struct {
	Enabled  bool                  `yaml:"enabled"  toml:"enabled"`
	Fallback string                `yaml:"fallback" toml:"fallback"`
	Locales  map[string]LocaleInfo `yaml:"locales"  toml:"locales"`
}

type ErrorFallback struct {
	ClientError int `yaml:"client_error" toml:"client_error"`
	ServerError int `yaml:"server_error" toml:"server_error"`
}

type Errors struct {
	Enabled   bool          `yaml:"enabled"   toml:"enabled"`
	Supported []int         `yaml:"supported" toml:"supported"`
	Fallback  ErrorFallback `yaml:"fallback"  toml:"fallback"`
}

type Theme struct {
	Enabled bool     `yaml:"enabled" toml:"enabled"`
	Default string   `yaml:"default" toml:"default"`
	Options []string `yaml:"options" toml:"options"`
}

// Site is the application level configuration shared by every request.
type Site struct {
	I18n   I18n   `yaml:"i18n"   toml:"i18n"`
	Errors Errors `yaml:"errors" toml:"errors"`
	Theme  Theme  `yaml:"theme"  toml:"theme"`
}

// DefaultSite returns the configuration the starter site ships with.
func DefaultSite() Site {
	return Site{
		I18n: I18n{
			Enabled:  true,
			Fallback: "en",
			Locales: map[string]LocaleInfo{
				"en": {Name: "English", Endonym: "English", Direction: "ltr"},
				"fi": {Name: "Finnish", Endonym: "Suomi", Direction: "ltr"},
			},
		},
		Errors: Errors{
			Enabled:   true,
			Supported: []int{400, 401, 403, 404, 408, 418, 429, 500, 503},
			Fallback:  ErrorFallback{ClientError: 404, ServerError: 500},
		},
		Theme: Theme{
			Enabled: true,
			Default: "light",
			Options: []string{"light", "dark"},
		},
	}
}

// LoadSite reads a YAML or TOML site file on top of DefaultSite.
// A file that declares locales replaces the default locale set.
func LoadSite(path string) (Site, error) {
	site := DefaultSite()

	data, err := os.ReadFile(path)
	if err != nil {
		return site, fmt.Errorf("read site config %q: %w", path, err)
	}

	defaults := site.I18n.Locales
	site.I18n.Locales = nil

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &site)
	case ".toml":
		err = toml.Unmarshal(data, &site)
	default:
		return DefaultSite(), fmt.Errorf("%w: %q", ErrUnsupportedConfigFormat, filepath.Ext(path))
	}
	if err != nil {
		return DefaultSite(), fmt.Errorf("parse site config %q: %w", path, err)
	}

	if len(site.I18n.Locales) == 0 {
		site.I18n.Locales = defaults
	}

	return site, site.Validate()
}

// Validate checks the invariants the request pipeline depends on.
func (s Site) Validate() error {
	if _, ok := s.I18n.Locales[s.I18n.Fallback]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFallbackLocale, s.I18n.Fallback)
	}

	if s.Theme.Enabled && !slices.Contains(s.Theme.Options, s.Theme.Default) {
		return fmt.Errorf("%w: %q", ErrUnknownDefaultTheme, s.Theme.Default)
	}

	return nil
}

// Warnings lists configuration that is accepted but probably unintended.
func (s Site) Warnings() []string {
	var warnings []string

	if !slices.Contains(s.Errors.Supported, s.Errors.Fallback.ClientError) {
		warnings = append(warnings,
			fmt.Sprintf("client error fallback %d is not a supported status", s.Errors.Fallback.ClientError))
	}

	if !slices.Contains(s.Errors.Supported, s.Errors.Fallback.ServerError) {
		warnings = append(warnings,
			fmt.Sprintf("server error fallback %d is not a supported status", s.Errors.Fallback.ServerError))
	}

	return warnings
}
