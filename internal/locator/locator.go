// Package locator finds the repository that encloses a path.
package locator

import (
	"os"
	"path/filepath"

	"dvcs/internal/errors"

	"go.uber.org/zap"
)

// Location is a discovered repository: its metadata folder and the working
// root that contains it, both canonical.
type Location struct {
	MetaDir string
	Root    string
}

type Locator struct {
	MetadataName string
	Logger       *zap.Logger
}

func New(metadataName string, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{MetadataName: metadataName, Logger: logger}
}

// Locate walks from start (its parent, when start is a file) up to the
// filesystem root and stops at the first directory holding a child folder
// named MetadataName. found is false when no ancestor has one; err is set
// only when start itself cannot be resolved.
func (l *Locator) Locate(start string) (loc Location, found bool, err error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return Location{}, false, errors.NotFound(start, err)
	}
	dir, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return Location{}, false, errors.NotFound(start, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return Location{}, false, errors.NotFound(start, err)
	}
	if !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		if meta, ok := l.metadataChild(dir); ok {
			l.Logger.Debug("Repository located", zap.String("start", start), zap.String("root", dir))
			return Location{MetaDir: meta, Root: dir}, true, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	l.Logger.Debug("No repository above path", zap.String("start", start))
	return Location{}, false, nil
}

// metadataChild scans the immediate children of dir. Unreadable levels are
// skipped so the search continues upward.
func (l *Locator) metadataChild(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		l.Logger.Debug("Cannot list directory", zap.String("dir", dir), zap.Error(err))
		return "", false
	}
	for _, entry := range entries {
		if entry.Name() != l.MetadataName {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		canonical, err := filepath.EvalSymlinks(path)
		if err != nil {
			continue
		}
		return canonical, true
	}
	return "", false
}
