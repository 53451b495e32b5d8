package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a fixed set of files.
//
// Directories are watched rather than the files themselves: record files
// are replaced by rename, which would orphan a watch on the old inode.
type Watcher struct {
	w       *fsnotify.Watcher
	targets map[string]struct{}
	logger  *slog.Logger
}

// NewWatcher starts watching the parent directories of paths. Events are
// buffered by fsnotify until Run is called.
func NewWatcher(logger *slog.Logger, paths ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	fw := &Watcher{w: w, targets: make(map[string]struct{}), logger: logger}
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
		fw.targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for _, dir := range sortedKeys(dirs) {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return fw, nil
}

// Run calls onChange with the absolute path of every watched file that is
// written, created, renamed or removed, until ctx is done. The watcher is
// closed when Run returns.
func (fw *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	defer fw.w.Close()

	const interesting = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.w.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(ev.Name)
			if _, ok := fw.targets[path]; !ok || ev.Op&interesting == 0 {
				continue
			}
			fw.logger.Debug("watched file changed", "path", path, "op", ev.Op.String())
			onChange(path)

		case err, ok := <-fw.w.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn("file watcher error", "error", err)
		}
	}
}

// Close stops the watcher without running it.
func (fw *Watcher) Close() error {
	return fw.w.Close()
}

// WatchRecords invalidates the cached store of each record file whenever
// it changes on disk, until ctx is done. Blocks.
func (s *Session) WatchRecords(ctx context.Context, recordFiles ...string) error {
	fw, err := NewWatcher(s.logger, recordFiles...)
	if err != nil {
		return err
	}
	return fw.Run(ctx, s.Invalidate)
}
