package staging

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

type walkItem struct {
	dir   string
	depth int
}

// walker visits every entry below a root with an explicit stack. Directories
// are entered once per canonical path, so symlink loops terminate, and never
// deeper than maxDepth.
type walker struct {
	metaName string
	maxDepth int
	logger   *zap.Logger
}

func (w walker) walk(root string, visit func(path string, info fs.FileInfo) error) error {
	visited := make(map[string]bool)
	if canonical, err := filepath.EvalSymlinks(root); err == nil {
		visited[canonical] = true
	}

	stack := []walkItem{{dir: root, depth: 0}}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(item.dir)
		if err != nil {
			w.logger.Warn("Skipping unreadable directory", zap.String("dir", item.dir), zap.Error(err))
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			if entry.Name() == w.metaName {
				continue
			}
			path := filepath.Join(item.dir, entry.Name())

			info, err := os.Stat(path)
			if err != nil {
				// dangling symlink or removed mid-walk
				w.logger.Debug("Skipping entry", zap.String("path", path), zap.Error(err))
				continue
			}
			if err := visit(path, info); err != nil {
				return err
			}
			if !info.IsDir() {
				continue
			}

			canonical, err := filepath.EvalSymlinks(path)
			if err != nil {
				continue
			}
			if visited[canonical] {
				w.logger.Debug("Directory already visited", zap.String("path", path), zap.String("target", canonical))
				continue
			}
			visited[canonical] = true

			if item.depth+1 >= w.maxDepth {
				w.logger.Warn("Depth limit reached, not descending",
					zap.String("dir", path),
					zap.Int("max_depth", w.maxDepth))
				continue
			}
			stack = append(stack, walkItem{dir: path, depth: item.depth + 1})
		}
	}
	return nil
}
