package document

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pitabwire/util"
)

// Versions caches modification times for cache busting asset urls.
type Versions struct {
	files *Files

	mu    sync.RWMutex
	times map[string]int64
}

func NewVersions(files *Files) *Versions {
	return &Versions{files: files, times: map[string]int64{}}
}

// Version is the cached modification time of webPath.
func (v *Versions) Version(ctx context.Context, webPath string) int64 {
	key := Clean(webPath)

	v.mu.RLock()
	t, ok := v.times[key]
	v.mu.RUnlock()
	if ok {
		return t
	}

	t = v.files.Modified(ctx, key)
	if t == 0 {
		return 0
	}

	v.mu.Lock()
	v.times[key] = t
	v.mu.Unlock()
	return t
}

// URL appends the version of webPath as the v query parameter.
func (v *Versions) URL(ctx context.Context, webPath string) string {
	key := Clean(webPath)
	if t := v.Version(ctx, key); t > 0 {
		return key + "?v=" + strconv.FormatInt(t, 10)
	}
	return key
}

func (v *Versions) Invalidate(webPath string) {
	v.mu.Lock()
	delete(v.times, Clean(webPath))
	v.mu.Unlock()
}

func (v *Versions) cached(webPath string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.times[Clean(webPath)]
	return ok
}

// Watch drops cached versions of files that change on disk until ctx is done.
// ready, when not nil, is closed once the watches are in place.
func (v *Versions) Watch(ctx context.Context, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer util.CloseAndLogOnError(ctx, watcher, "could not close public directory watcher")

	if err = addTree(watcher, v.files.Dir()); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	log := util.Log(ctx).WithField("dir", v.files.Dir())
	log.Debug("watching public directory")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			v.handle(ctx, watcher, event)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(watchErr).Warn("public directory watcher error")
		}
	}
}

func (v *Versions) handle(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if addErr := addTree(watcher, event.Name); addErr != nil {
				util.Log(ctx).WithError(addErr).WithField("dir", event.Name).Warn("could not watch new directory")
			}
			return
		}
	}

	rel, err := filepath.Rel(v.files.Dir(), event.Name)
	if err != nil {
		return
	}
	v.Invalidate(filepath.ToSlash(rel))
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}
