// Package ledger keeps the commit history, branch heads and per-file
// history of a repository.
package ledger

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dvcs/internal/errors"
	"dvcs/internal/persist"

	"go.uber.org/zap"
)

const DefaultLedgerFile = "repo.json"

// FileEntry is one file recorded by a commit. Content is whatever the
// caller tracks for it; the repository stores the blob hash.
type FileEntry struct {
	Path    string
	Content string
}

// state is the persisted document.
type state struct {
	CommitHistory []string            `json:"commit_history"`
	BranchHeads   map[string]string   `json:"branch_heads"`
	FileHistory   map[string][]string `json:"file_history"`
}

func newState() *state {
	return &state{
		CommitHistory: []string{},
		BranchHeads:   make(map[string]string),
		FileHistory:   make(map[string][]string),
	}
}

type Options struct {
	Locking bool
	Logger  *zap.Logger
}

// Ledger is the commit ledger. Commit ids are opaque caller-supplied
// strings; nothing enforces their uniqueness.
type Ledger struct {
	path     string
	lockPath string
	locking  bool
	logger   *zap.Logger

	mu    sync.RWMutex
	state *state
}

// New returns an in-memory ledger.
func New() *Ledger {
	return &Ledger{state: newState(), logger: zap.NewNop()}
}

// Open loads the ledger file at path, creating it when absent. An empty file
// is an empty ledger; an unparsable one fails with CorruptIndex.
func Open(path string, opts Options) (*Ledger, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	l := &Ledger{
		path:     path,
		lockPath: strings.TrimSuffix(path, filepath.Ext(path)) + ".lock",
		locking:  opts.Locking,
		logger:   opts.Logger,
	}
	if err := persist.EnsureFile(path); err != nil {
		return nil, err
	}
	st, err := l.load()
	if err != nil {
		return nil, err
	}
	l.state = st
	return l, nil
}

func (l *Ledger) load() (*state, error) {
	st := newState()
	empty, err := persist.ReadJSON(l.path, st)
	if err != nil {
		return nil, err
	}
	if empty {
		return newState(), nil
	}
	if st.CommitHistory == nil {
		st.CommitHistory = []string{}
	}
	if st.BranchHeads == nil {
		st.BranchHeads = make(map[string]string)
	}
	if st.FileHistory == nil {
		st.FileHistory = make(map[string][]string)
	}
	return st, nil
}

// mutate applies fn to the freshest state and persists it. In-memory
// ledgers skip the file round trip.
func (l *Ledger) mutate(fn func(st *state) error) error {
	if l.path == "" {
		l.mu.Lock()
		defer l.mu.Unlock()
		return fn(l.state)
	}

	release, err := persist.Lock(l.lockPath, l.locking)
	if err != nil {
		return err
	}
	defer release()

	st, err := l.load()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	if err := persist.WriteJSON(l.path, st); err != nil {
		return err
	}

	l.mu.Lock()
	l.state = st
	l.mu.Unlock()
	return nil
}

func commitInto(st *state, branch, commitID string, files []FileEntry) {
	st.BranchHeads[branch] = commitID
	st.CommitHistory = append(st.CommitHistory, commitID)
	for _, f := range files {
		st.FileHistory[f.Path] = append(st.FileHistory[f.Path], FormatEntry(commitID, f.Content))
	}
}

// Commit points branch at commitID, appends it to the history and records
// each file's content under it. Content may not contain ':', which separates
// it from the commit id in file history entries; such a commit is rejected
// and nothing is recorded.
func (l *Ledger) Commit(branch, commitID string, files []FileEntry) error {
	for _, f := range files {
		if strings.Contains(f.Content, ":") {
			return errors.InvalidPath(f.Path, "recorded content contains ':'")
		}
	}

	err := l.mutate(func(st *state) error {
		commitInto(st, branch, commitID, files)
		return nil
	})
	if err != nil {
		return fmt.Errorf("committing %s on %s: %w", commitID, branch, err)
	}

	l.logger.Info("Commit recorded",
		zap.String("branch", branch),
		zap.String("commit", commitID),
		zap.Int("files", len(files)))
	return nil
}

// Checkout re-commits an existing commit onto branch, so it shows up in the
// history a second time. Unknown ids fail with NoSuchEntry.
func (l *Ledger) Checkout(branch, commitID string) error {
	err := l.mutate(func(st *state) error {
		if !contains(st.CommitHistory, commitID) {
			return errors.NoSuchEntry(commitID)
		}
		commitInto(st, branch, commitID, nil)
		return nil
	})
	if err != nil {
		return fmt.Errorf("checking out %s on %s: %w", commitID, branch, err)
	}
	return nil
}

// Concatenate joins the given commits (in the order given, unknown ids
// skipped) with newlines and commits the result on branch without files.
func (l *Ledger) Concatenate(branch string, commitIDs []string) (string, error) {
	var joined string
	err := l.mutate(func(st *state) error {
		var found []string
		for _, id := range commitIDs {
			if contains(st.CommitHistory, id) {
				found = append(found, id)
			}
		}
		if len(found) == 0 {
			return errors.NoSuchEntry(strings.Join(commitIDs, ","))
		}
		joined = strings.Join(found, "\n")
		commitInto(st, branch, joined, nil)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("concatenating commits on %s: %w", branch, err)
	}
	return joined, nil
}

// Log returns every commit id in commit order.
func (l *Ledger) Log() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string{}, l.state.CommitHistory...)
}

// Heads returns the head of every branch, ordered by branch name.
func (l *Ledger) Heads() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	heads := make([]string, 0, len(l.state.BranchHeads))
	for _, branch := range l.branchesLocked() {
		heads = append(heads, l.state.BranchHeads[branch])
	}
	return heads
}

func (l *Ledger) Branches() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.branchesLocked()
}

func (l *Ledger) branchesLocked() []string {
	branches := make([]string, 0, len(l.state.BranchHeads))
	for branch := range l.state.BranchHeads {
		branches = append(branches, branch)
	}
	sort.Strings(branches)
	return branches
}

func (l *Ledger) Head(branch string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.state.BranchHeads[branch]
	return id, ok
}

// FileHistory returns the "{commit}:{content}" entries recorded for path.
func (l *Ledger) FileHistory(path string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string{}, l.state.FileHistory[path]...)
}

func (l *Ledger) Contains(commitID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return contains(l.state.CommitHistory, commitID)
}

// Tree maps every path recorded under commitID to its content. When an id
// was committed more than once the latest entry per path wins.
func (l *Ledger) Tree(commitID string) map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tree := make(map[string]string)
	for path, entries := range l.state.FileHistory {
		for _, entry := range entries {
			id, content, ok := ParseEntry(entry)
			if ok && id == commitID {
				tree[path] = content
			}
		}
	}
	return tree
}

// Content returns the content recorded for path under commitID.
func (l *Ledger) Content(path, commitID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.state.FileHistory[path]
	for i := len(entries) - 1; i >= 0; i-- {
		if id, content, ok := ParseEntry(entries[i]); ok && id == commitID {
			return content, true
		}
	}
	return "", false
}

func FormatEntry(commitID, content string) string {
	return commitID + ":" + content
}

// ParseEntry splits a file history entry at its last colon. Commit ids may
// contain colons; recorded content (a hash) does not.
func ParseEntry(entry string) (commitID, content string, ok bool) {
	i := strings.LastIndex(entry, ":")
	if i < 0 {
		return "", "", false
	}
	return entry[:i], entry[i+1:], true
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
