// Package watch keeps the working-directory slot of a staging index fresh by
// listening for filesystem events below the working root.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 200 * time.Millisecond

// Refresher is the part of the staging index the watcher drives.
type Refresher interface {
	RefreshWorkingVsStaging() error
}

type Options struct {
	Debounce time.Duration
	Logger   *zap.Logger
	// OnRefresh, when set, is called after every refresh with its result.
	OnRefresh func(error)
	// Tracked reports whether a path has a staged fingerprint. Permission
	// changes on tracked paths trigger a refresh; all others are ignored.
	Tracked func(path string) bool
}

// Watcher coalesces bursts of events into a single refresh.
type Watcher struct {
	root      string
	metaName  string
	target    Refresher
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	onRefresh func(error)
	tracked   func(path string) bool
	logger    *zap.Logger
}

// New registers a watch on every directory below root, skipping metadata
// folders.
func New(root, metadataName string, target Refresher, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:      root,
		metaName:  metadataName,
		target:    target,
		watcher:   fw,
		debounce:  opts.Debounce,
		onRefresh: opts.OnRefresh,
		tracked:   opts.Tracked,
		logger:    opts.Logger,
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Warn("Skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == w.metaName {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Run processes events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Error("Adding new directory to watcher", zap.Error(err))
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			err := w.target.RefreshWorkingVsStaging()
			if err != nil {
				w.logger.Error("Refreshing working fingerprints", zap.Error(err))
			} else {
				w.logger.Debug("Working fingerprints refreshed")
			}
			if w.onRefresh != nil {
				w.onRefresh(err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

// relevant drops anything under a metadata folder and attribute-only changes
// to paths without a staged fingerprint.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == w.metaName {
			return false
		}
	}
	if event.Op == fsnotify.Chmod {
		return w.tracked != nil && w.tracked(event.Name)
	}
	return true
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
