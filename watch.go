package stencil

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch drops cached templates whenever the files they were loaded from, under
// root on disk, change. root should be the directory the CachedSite's
// TemplateDir was created from. Watching stops when ctx is canceled or the
// returned function is called.
func (s *CachedSite) Watch(ctx context.Context, root string) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating template watcher: %w", err)
	}
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("error watching templates in %q: %w", root, err)
	}
	logger(ctx).DebugContext(ctx, "watching templates", "root", root)
	go s.watchLoop(ctx, root, watcher)
	return watcher.Close, nil
}

func (s *CachedSite) watchLoop(ctx context.Context, root string, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logger(ctx).WarnContext(ctx, "error watching new template directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			rel, err := filepath.Rel(root, event.Name)
			if err != nil {
				s.InvalidateAll()
				continue
			}
			s.InvalidatePath(filepath.ToSlash(rel))
			logger(ctx).DebugContext(ctx, "template changed", "path", rel)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger(ctx).ErrorContext(ctx, "template watcher error", "error", err)
		}
	}
}
