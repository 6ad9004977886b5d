package localization

import (
	"context"
	"fmt"
	"io/fs"
	"path"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Loader fetches the translation table of one language.
type Loader interface {
	Load(ctx context.Context, code string) (Table, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, code string) (Table, error)

func (f LoaderFunc) Load(ctx context.Context, code string) (Table, error) {
	return f(ctx, code)
}

// StaticLoader serves tables that are compiled into the binary.
type StaticLoader map[string]Table

func (s StaticLoader) Load(_ context.Context, code string) (Table, error) {
	table, ok := s[code]
	if !ok {
		return nil, fmt.Errorf("no translations for %q: %w", code, fs.ErrNotExist)
	}
	return table, nil
}

// FSLoader reads messages.<code>.toml files from a directory of fsys.
type FSLoader struct {
	fsys fs.FS
	dir  string
}

func NewFSLoader(fsys fs.FS, dir string) *FSLoader {
	if dir == "" {
		dir = "."
	}
	return &FSLoader{fsys: fsys, dir: dir}
}

// FileName is the translation file name of a language.
func FileName(code string) string {
	return fmt.Sprintf("messages.%s.toml", code)
}

func (l *FSLoader) Load(_ context.Context, code string) (Table, error) {
	filePath := path.Join(l.dir, FileName(code))

	buf, err := fs.ReadFile(l.fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("read translations %q: %w", filePath, err)
	}

	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	messageFile, err := bundle.ParseMessageFileBytes(buf, filePath)
	if err != nil {
		return nil, fmt.Errorf("parse translations %q: %w", filePath, err)
	}

	table := make(Table, len(messageFile.Messages))
	for _, msg := range messageFile.Messages {
		table[msg.ID] = msg.Other
	}
	return table, nil
}
