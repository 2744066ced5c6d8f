package staging

import (
	"sort"
	"strings"
)

type ChangeKind string

const (
	ChangeStaged    ChangeKind = "staged"    // staged content differs from the last commit
	ChangeRemoved   ChangeKind = "removed"   // committed, unstaged for the next commit
	ChangeModified  ChangeKind = "modified"  // working copy differs from staged
	ChangeDeleted   ChangeKind = "deleted"   // staged but gone from the working tree
	ChangeUntracked ChangeKind = "untracked" // seen in the working tree only
)

type Change struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
}

// StatusReport lists, under a "changed:" header, every path whose staged and
// working fingerprints differ. Paths lacking either fingerprint are not
// considered; use Changes for the full classification.
func (ix *Index) StatusReport() string {
	ix.mu.RLock()
	var changed []string
	for key, rec := range ix.records {
		if rec.Staging == nil || rec.WorkingDirectory == nil {
			continue
		}
		if rec.Staging.Differs(*rec.WorkingDirectory) {
			changed = append(changed, key)
		}
	}
	ix.mu.RUnlock()

	sort.Strings(changed)
	var b strings.Builder
	b.WriteString("changed:\n")
	for _, key := range changed {
		b.WriteString(key)
		b.WriteString("\n")
	}
	return b.String()
}

// Changes classifies every file record. A path can appear under more than
// one kind, e.g. staged and then modified again.
func (ix *Index) Changes() []Change {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var changes []Change
	for key, rec := range ix.records {
		if !isFile(rec) {
			continue
		}
		staged, working, committed := rec.Staging, rec.WorkingDirectory, rec.RepositoryVersion

		switch {
		case staged != nil && (committed == nil || !staged.Equal(*committed)):
			changes = append(changes, Change{Path: key, Kind: ChangeStaged})
		case staged == nil && committed != nil:
			changes = append(changes, Change{Path: key, Kind: ChangeRemoved})
		}

		switch {
		case staged != nil && working == nil:
			changes = append(changes, Change{Path: key, Kind: ChangeDeleted})
		case staged != nil && staged.Differs(*working):
			changes = append(changes, Change{Path: key, Kind: ChangeModified})
		case staged == nil && committed == nil && working != nil:
			changes = append(changes, Change{Path: key, Kind: ChangeUntracked})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Path != changes[j].Path {
			return changes[i].Path < changes[j].Path
		}
		return changes[i].Kind < changes[j].Kind
	})
	return changes
}

func isFile(rec *Record) bool {
	for _, slot := range []Slot{SlotStaging, SlotWorkingDirectory, SlotRepositoryVersion} {
		if fp := rec.Get(slot); fp != nil {
			return fp.IsFile
		}
	}
	return false
}

// DiffAgainst returns the working-tree files that are new or changed
// relative to prior, mapped to their current content hash.
func (ix *Index) DiffAgainst(prior map[string]string) map[string]string {
	return DiffTrees(ix.Tree(SlotWorkingDirectory), prior)
}

// DiffTrees is the forward difference of current over prior. Paths that only
// prior holds are not reported.
func DiffTrees(current, prior map[string]string) map[string]string {
	out := make(map[string]string)
	for path, hash := range current {
		if old, ok := prior[path]; !ok || old != hash {
			out[path] = hash
		}
	}
	return out
}
