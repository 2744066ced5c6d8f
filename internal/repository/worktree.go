package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dvcs/internal/diff"
	"dvcs/internal/errors"
	"dvcs/internal/staging"

	"go.uber.org/zap"
)

// Add stages a file, or every file below a directory, and stores the staged
// content in the object store.
func (r *Repository) Add(path string) error {
	log := r.op("add")

	abs, err := r.resolve(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return errors.NotFound(path, err)
	}
	if !info.IsDir() {
		return r.addFile(abs, log)
	}

	if err := r.Index.SnapshotTree(abs, staging.SlotStaging); err != nil {
		return err
	}

	prefix := ""
	if key, err := r.Index.Key(abs); err == nil {
		prefix = key + "/"
	}
	count := 0
	for key := range r.Index.Tree(staging.SlotStaging) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := r.addFile(filepath.Join(r.Root, filepath.FromSlash(key)), log); err != nil {
			return err
		}
		count++
	}

	log.Info("Directory staged", zap.String("path", path), zap.Int("files", count))
	return nil
}

// addFile stores the blob first so a staged fingerprint always names
// content the store holds. Entries that are not regular files are staged by
// fingerprint only; reading a pipe would block.
func (r *Repository) addFile(abs string, log *zap.Logger) error {
	info, err := os.Stat(abs)
	if err != nil {
		return errors.NotFound(abs, err)
	}
	if !info.Mode().IsRegular() {
		if err := r.Index.AddPath(abs); err != nil {
			return err
		}
		log.Debug("Special file staged without content", zap.String("path", abs), zap.Stringer("mode", info.Mode()))
		return nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound(abs, err)
		}
		return errors.Unreadable(abs, err)
	}
	hash, err := r.Objects.Put(content)
	if err != nil {
		return fmt.Errorf("storing content of %s: %w", abs, err)
	}

	if err := r.Index.AddPath(abs); err != nil {
		return err
	}
	rec, ok := r.Index.Record(abs)
	if !ok || rec.Staging == nil {
		return errors.NoSuchEntry(abs)
	}
	if rec.Staging.ContentHash != hash {
		return errors.Unreadable(abs, fmt.Errorf("file changed while being staged"))
	}

	log.Debug("File staged", zap.String("path", rec.Staging.Path), zap.String("hash", hash))
	return nil
}

// Remove unstages path.
func (r *Repository) Remove(path string) error {
	abs, err := r.resolve(path)
	if err != nil {
		return err
	}
	if err := r.Index.RemovePath(abs); err != nil {
		return err
	}
	r.op("remove").Info("Path unstaged", zap.String("path", path))
	return nil
}

// Status refreshes the working fingerprints of staged paths and returns the
// status report.
func (r *Repository) Status() (string, error) {
	if err := r.Index.RefreshWorkingVsStaging(); err != nil {
		return "", err
	}
	return r.Index.StatusReport(), nil
}

// Changes snapshots the whole working tree and classifies every path.
func (r *Repository) Changes() ([]staging.Change, error) {
	if err := r.Index.SnapshotTree("", staging.SlotWorkingDirectory); err != nil {
		return nil, err
	}
	if err := r.Index.RefreshWorkingVsStaging(); err != nil {
		return nil, err
	}
	return r.Index.Changes(), nil
}

// Diff compares the working copy of path with its staged content, or with
// the content recorded at revision when one is given.
func (r *Repository) Diff(path, revision string) (*diff.DiffResult, error) {
	abs, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	key, err := r.Index.Key(abs)
	if err != nil {
		return nil, err
	}

	working, err := readRegular(abs)
	if err != nil {
		return nil, err
	}

	var base []byte
	if revision == "" {
		rec, ok := r.Index.Record(abs)
		if ok && rec.Staging != nil {
			if !rec.Staging.IsFile {
				return nil, errors.InvalidPath(path, "is a directory")
			}
			if rec.Staging.ContentHash == "" {
				return nil, errors.InvalidPath(path, "not a regular file")
			}
			if base, err = r.Objects.Get(rec.Staging.ContentHash); err != nil {
				return nil, fmt.Errorf("loading staged content of %s: %w", key, err)
			}
		}
	} else {
		hash, ok := r.Ledger.Content(key, revision)
		if !ok {
			return nil, errors.NoSuchEntry(key + "@" + revision)
		}
		if base, err = r.Objects.Get(hash); err != nil {
			return nil, fmt.Errorf("loading %s at %s: %w", key, revision, err)
		}
	}

	return r.DiffEngine.Diff(base, working)
}

// Changed lists working-tree files that are new or differ from revision,
// or from the last commit when revision is empty.
func (r *Repository) Changed(revision string) (map[string]string, error) {
	var prior map[string]string
	if revision == "" {
		prior = r.Index.Tree(staging.SlotRepositoryVersion)
	} else {
		if !r.Ledger.Contains(revision) {
			return nil, errors.NoSuchEntry(revision)
		}
		prior = r.Ledger.Tree(revision)
	}

	if err := r.Index.SnapshotTree("", staging.SlotWorkingDirectory); err != nil {
		return nil, err
	}
	return r.Index.DiffAgainst(prior), nil
}

// readRegular returns the content of the regular file at abs. A missing file
// reads as empty.
func readRegular(abs string) ([]byte, error) {
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Unreadable(abs, err)
	}
	if info.IsDir() {
		return nil, errors.InvalidPath(abs, "is a directory")
	}
	if !info.Mode().IsRegular() {
		return nil, errors.InvalidPath(abs, "not a regular file")
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Unreadable(abs, err)
	}
	return content, nil
}
