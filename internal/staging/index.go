// Package staging implements the three-way staging index: for every tracked
// path it records the working-tree, staged and committed fingerprints and
// writes the whole index through to disk on each mutation.
package staging

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dvcs/internal/errors"
	"dvcs/internal/fingerprint"
	"dvcs/internal/persist"

	"go.uber.org/zap"
)

const (
	DefaultIndexFile    = "index.json"
	DefaultMetadataName = ".dvcs_hidden"
	DefaultMaxDepth     = 256
)

type Options struct {
	IndexFile    string
	MetadataName string
	MaxDepth     int
	// Locking serialises read-modify-write cycles across processes.
	Locking      bool
	Fingerprints *fingerprint.Service
	Logger       *zap.Logger
}

// Index is the staging index of one repository.
type Index struct {
	metaDir     string
	workingRoot string
	indexPath   string
	lockPath    string
	locking     bool
	walker      walker

	fingerprints *fingerprint.Service
	logger       *zap.Logger

	mu      sync.RWMutex
	records map[string]*Record
}

// Open loads the index kept in metaDir for the tree rooted at workingRoot,
// creating an empty index file when none exists. An unparsable index file
// fails with CorruptIndex and is left untouched.
func Open(metaDir, workingRoot string, opts Options) (*Index, error) {
	info, err := os.Stat(metaDir)
	if err != nil || !info.IsDir() {
		return nil, errors.NoSuchRepository(metaDir)
	}

	if opts.IndexFile == "" {
		opts.IndexFile = DefaultIndexFile
	}
	if opts.MetadataName == "" {
		opts.MetadataName = DefaultMetadataName
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Fingerprints == nil {
		opts.Fingerprints, _ = fingerprint.NewService(fingerprint.Options{Logger: opts.Logger})
	}

	root, err := canonicalPath(workingRoot)
	if err != nil {
		return nil, errors.NoSuchDirectory(workingRoot, err)
	}
	meta, err := canonicalPath(metaDir)
	if err != nil {
		return nil, errors.NoSuchRepository(metaDir)
	}

	ix := &Index{
		metaDir:     meta,
		workingRoot: root,
		indexPath:   filepath.Join(meta, opts.IndexFile),
		lockPath:    filepath.Join(meta, strings.TrimSuffix(opts.IndexFile, filepath.Ext(opts.IndexFile))+".lock"),
		locking:     opts.Locking,
		walker: walker{
			metaName: opts.MetadataName,
			maxDepth: opts.MaxDepth,
			logger:   opts.Logger,
		},
		fingerprints: opts.Fingerprints,
		logger:       opts.Logger,
	}

	if err := persist.EnsureFile(ix.indexPath); err != nil {
		return nil, err
	}
	if err := ix.Reload(); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) WorkingRoot() string { return ix.workingRoot }
func (ix *Index) MetaDir() string     { return ix.metaDir }
func (ix *Index) Path() string        { return ix.indexPath }

// Reload replaces the in-memory records with the persisted ones.
func (ix *Index) Reload() error {
	records, err := ix.load()
	if err != nil {
		return err
	}
	ix.mu.Lock()
	ix.records = records
	ix.mu.Unlock()
	return nil
}

func (ix *Index) load() (map[string]*Record, error) {
	records := make(map[string]*Record)
	empty, err := persist.ReadJSON(ix.indexPath, &records)
	if err != nil {
		return nil, err
	}
	if empty {
		return make(map[string]*Record), nil
	}
	for path, rec := range records {
		if rec == nil || rec.Empty() {
			delete(records, path)
		}
	}
	return records, nil
}

// mutate runs one read-modify-write cycle: the persisted records are
// re-read, handed to fn and written back. Nothing is written and the
// in-memory view is kept when fn fails.
func (ix *Index) mutate(fn func(records map[string]*Record) error) error {
	release, err := persist.Lock(ix.lockPath, ix.locking)
	if err != nil {
		return err
	}
	defer release()

	records, err := ix.load()
	if err != nil {
		return err
	}
	if err := fn(records); err != nil {
		return err
	}
	for path, rec := range records {
		if rec.Empty() {
			delete(records, path)
		}
	}
	if err := persist.WriteJSON(ix.indexPath, records); err != nil {
		return err
	}

	ix.mu.Lock()
	ix.records = records
	ix.mu.Unlock()
	return nil
}

// key maps a path (absolute, or relative to the working root) to its index
// key: the slash-separated path relative to the working root.
func (ix *Index) key(path string) (key, abs string, err error) {
	abs = path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(ix.workingRoot, abs)
	}
	abs = filepath.Clean(abs)

	// canonicalise the parent only, so a symlink stays keyed under its own name
	if dir, err := canonicalPath(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}

	rel, err := filepath.Rel(ix.workingRoot, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", errors.InvalidPath(path, "outside the working tree")
	}
	if rel == "." {
		return "", "", errors.InvalidPath(path, "is the working tree root")
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == ix.walker.metaName {
			return "", "", errors.InvalidPath(path, "inside the metadata folder")
		}
	}
	return filepath.ToSlash(rel), abs, nil
}

// Key returns the index key of path.
func (ix *Index) Key(path string) (string, error) {
	key, _, err := ix.key(path)
	return key, err
}

func (ix *Index) fingerprint(key, abs string) (*fingerprint.Fingerprint, error) {
	fp, err := ix.fingerprints.Fingerprint(abs)
	if err != nil {
		return nil, err
	}
	fp.Path = key
	return &fp, nil
}

// AddPath fingerprints path into the staging slot.
func (ix *Index) AddPath(path string) error {
	key, abs, err := ix.key(path)
	if err != nil {
		return err
	}
	fp, err := ix.fingerprint(key, abs)
	if err != nil {
		return err
	}

	err = ix.mutate(func(records map[string]*Record) error {
		rec, ok := records[key]
		if !ok {
			rec = &Record{}
			records[key] = rec
		}
		rec.Staging = fp
		return nil
	})
	if err != nil {
		return fmt.Errorf("staging %s: %w", key, err)
	}

	ix.logger.Debug("Path staged", zap.String("path", key), zap.String("hash", fp.ContentHash))
	return nil
}

// RemovePath clears the staging slot of path. The other slots are kept.
func (ix *Index) RemovePath(path string) error {
	key, _, err := ix.key(path)
	if err != nil {
		return err
	}

	err = ix.mutate(func(records map[string]*Record) error {
		rec, ok := records[key]
		if !ok {
			return errors.NoSuchEntry(key)
		}
		rec.Staging = nil
		return nil
	})
	if err != nil {
		return fmt.Errorf("unstaging %s: %w", key, err)
	}

	ix.logger.Debug("Path unstaged", zap.String("path", key))
	return nil
}

// SnapshotTree fingerprints every file and directory under root into slot,
// replacing what the slot held for paths under root. An empty root means
// the whole working tree. Metadata folders are skipped.
func (ix *Index) SnapshotTree(root string, slot Slot) error {
	if root == "" {
		root = ix.workingRoot
	} else if !filepath.IsAbs(root) {
		root = filepath.Join(ix.workingRoot, root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return errors.NoSuchDirectory(root, err)
	}
	if !info.IsDir() {
		return errors.NoSuchDirectory(root, fmt.Errorf("not a directory"))
	}

	// keys under root that the walk does not see lose their slot
	prefix := ""
	if canonical, err := canonicalPath(root); err == nil && canonical != ix.workingRoot {
		rootKey, _, err := ix.key(root)
		if err != nil {
			return err
		}
		prefix = rootKey + "/"
	}

	count := 0
	err = ix.mutate(func(records map[string]*Record) error {
		seen := make(map[string]bool)
		err := ix.walker.walk(root, func(path string, _ fs.FileInfo) error {
			key, abs, err := ix.key(path)
			if err != nil {
				// outside the working tree through a symlink
				ix.logger.Debug("Not recording path", zap.String("path", path), zap.Error(err))
				return nil
			}
			fp, err := ix.fingerprint(key, abs)
			if err != nil {
				if errors.IsType(err, errors.ErrorTypeNotFound) {
					return nil
				}
				return err
			}
			rec, ok := records[key]
			if !ok {
				rec = &Record{}
				records[key] = rec
			}
			rec.Set(slot, fp)
			seen[key] = true
			count++
			return nil
		})
		if err != nil {
			return err
		}
		for key, rec := range records {
			if !seen[key] && strings.HasPrefix(key, prefix) {
				rec.Set(slot, nil)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("snapshotting %s into %s: %w", root, slot, err)
	}

	ix.logger.Info("Tree snapshot recorded",
		zap.String("root", root),
		zap.Stringer("slot", slot),
		zap.Int("entries", count))
	return nil
}

// RefreshWorkingVsStaging re-fingerprints the working copy of every staged
// path. Paths that no longer exist get an empty working slot.
func (ix *Index) RefreshWorkingVsStaging() error {
	err := ix.mutate(func(records map[string]*Record) error {
		for key, rec := range records {
			if rec.Staging == nil {
				continue
			}
			fp, err := ix.fingerprint(key, filepath.Join(ix.workingRoot, filepath.FromSlash(key)))
			if err != nil {
				if errors.IsType(err, errors.ErrorTypeNotFound) {
					rec.WorkingDirectory = nil
					continue
				}
				return err
			}
			rec.WorkingDirectory = fp
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("refreshing working fingerprints: %w", err)
	}
	return nil
}

// PromoteStaging records the staged fingerprints as the committed ones.
func (ix *Index) PromoteStaging() error {
	return ix.mutate(func(records map[string]*Record) error {
		for _, rec := range records {
			if rec.Staging == nil {
				rec.RepositoryVersion = nil
				continue
			}
			fp := *rec.Staging
			rec.RepositoryVersion = &fp
		}
		return nil
	})
}

// Record returns a copy of the record for path.
func (ix *Index) Record(path string) (Record, bool) {
	key, _, err := ix.key(path)
	if err != nil {
		return Record{}, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	rec, ok := ix.records[key]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Records returns a copy of every record keyed by path.
func (ix *Index) Records() map[string]Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make(map[string]Record, len(ix.records))
	for key, rec := range ix.records {
		out[key] = rec.clone()
	}
	return out
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Tree maps each file path populated in slot to its content hash. Entries
// without content (pipes, sockets, devices) are left out.
func (ix *Index) Tree(slot Slot) map[string]string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	tree := make(map[string]string)
	for key, rec := range ix.records {
		fp := rec.Get(slot)
		if fp == nil || !fp.IsFile || fp.ContentHash == "" {
			continue
		}
		tree[key] = fp.ContentHash
	}
	return tree
}

// Keys returns the sorted paths of all records.
func (ix *Index) Keys() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	keys := make([]string, 0, len(ix.records))
	for key := range ix.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
