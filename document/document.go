// Package document answers questions about files in the public directory.
package document

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pitabwire/util"
)

// Files resolves web paths such as /img/logo.png against a public directory.
type Files struct {
	dir string
}

func New(publicDir string) *Files {
	return &Files{dir: publicDir}
}

func (f *Files) Dir() string {
	return f.dir
}

// Clean normalizes a web path to a rooted slash path that cannot escape the public directory.
func Clean(webPath string) string {
	return path.Clean("/" + strings.TrimSpace(webPath))
}

// Path is the filesystem location of webPath.
func (f *Files) Path(webPath string) string {
	return filepath.Join(f.dir, filepath.FromSlash(Clean(webPath)))
}

// Modified is the unix time in seconds of the last change to webPath, 0 when it cannot be read.
func (f *Files) Modified(ctx context.Context, webPath string) int64 {
	if strings.TrimSpace(webPath) == "" {
		util.Log(ctx).Warn("no path given for modification time")
		return 0
	}

	info, err := os.Stat(f.Path(webPath))
	if err != nil {
		util.Log(ctx).WithError(err).WithField("path", webPath).Warn("could not read modification time")
		return 0
	}
	return info.ModTime().Unix()
}

func (f *Files) Exists(webPath string) bool {
	_, err := os.Stat(f.Path(webPath))
	return err == nil
}

// Size is the size of webPath in bytes.
func (f *Files) Size(webPath string) (int64, error) {
	info, err := os.Stat(f.Path(webPath))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
