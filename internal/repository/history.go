package repository

import (
	"fmt"
	"sort"

	"dvcs/internal/errors"
	"dvcs/internal/ledger"
	"dvcs/internal/merge"
	"dvcs/internal/staging"

	"go.uber.org/zap"
)

const DefaultBranch = "main"

// Commit records every staged file on branch under message, which doubles
// as the commit id, and marks the staged fingerprints as committed. It
// returns the number of files recorded.
//
// The ledger is written before the index. When marking the index fails the
// commit stays in the ledger and the index still shows the files as
// uncommitted; the returned error says so, and the next successful commit
// promotes them.
func (r *Repository) Commit(branch, message string) (int, error) {
	if branch == "" {
		branch = DefaultBranch
	}
	if message == "" {
		return 0, fmt.Errorf("commit message cannot be empty")
	}
	log := r.op("commit")

	staged := r.Index.Tree(staging.SlotStaging)
	files := make([]ledger.FileEntry, 0, len(staged))
	for path, hash := range staged {
		files = append(files, ledger.FileEntry{Path: path, Content: hash})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	if err := r.Ledger.Commit(branch, message, files); err != nil {
		return 0, err
	}
	if err := r.Index.PromoteStaging(); err != nil {
		log.Error("Commit recorded but index not updated", zap.String("commit", message), zap.Error(err))
		return len(files), fmt.Errorf("commit %q recorded, marking staged files committed: %w", message, err)
	}

	log.Info("Committed", zap.String("branch", branch), zap.Int("files", len(files)))
	return len(files), nil
}

func (r *Repository) Log() []string {
	return r.Ledger.Log()
}

func (r *Repository) Heads() []string {
	return r.Ledger.Heads()
}

// FileHistory returns the ledger entries recorded for path.
func (r *Repository) FileHistory(path string) ([]string, error) {
	abs, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	key, err := r.Index.Key(abs)
	if err != nil {
		return nil, err
	}
	return r.Ledger.FileHistory(key), nil
}

// Checkout moves branch to commitID by committing it again.
func (r *Repository) Checkout(branch, commitID string) error {
	if branch == "" {
		branch = DefaultBranch
	}
	if err := r.Ledger.Checkout(branch, commitID); err != nil {
		return err
	}
	r.op("checkout").Info("Branch moved", zap.String("branch", branch), zap.String("commit", commitID))
	return nil
}

func (r *Repository) Concatenate(branch string, commitIDs []string) (string, error) {
	if branch == "" {
		branch = DefaultBranch
	}
	return r.Ledger.Concatenate(branch, commitIDs)
}

// Merge runs a three-way merge over the paths recorded by three commits.
// A DeletionConflict error comes with a populated result.
func (r *Repository) Merge(ancestor, ours, theirs string) (merge.Result, error) {
	states := make([]merge.State, 0, 3)
	for _, id := range []string{ancestor, ours, theirs} {
		if !r.Ledger.Contains(id) {
			return merge.Result{}, errors.NoSuchEntry(id)
		}
		contents := merge.NewSet()
		for path := range r.Ledger.Tree(id) {
			contents[path] = struct{}{}
		}
		states = append(states, merge.State{Label: id, Contents: contents})
	}

	result, err := merge.ThreeWayMerge(states[0], states[1], states[2])
	r.op("merge").Info("Merge computed",
		zap.String("ancestor", ancestor),
		zap.String("ours", ours),
		zap.String("theirs", theirs),
		zap.Int("additions", len(result.Additions)),
		zap.Int("candidates", len(result.MergeCandidates)),
		zap.Bool("conflict", err != nil))
	return result, err
}
