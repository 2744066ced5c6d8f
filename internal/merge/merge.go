// Package merge computes three-way merges of entry sets. Entries are opaque
// tokens; the repository uses working-tree paths.
package merge

import (
	"sort"

	"dvcs/internal/errors"
)

type Set map[string]struct{}

func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

func (s Set) Contains(item string) bool {
	_, ok := s[item]
	return ok
}

func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for item := range s {
		if !o.Contains(item) {
			return false
		}
	}
	return true
}

// Minus returns the items of s not in o.
func (s Set) Minus(o Set) Set {
	out := make(Set)
	for item := range s {
		if !o.Contains(item) {
			out[item] = struct{}{}
		}
	}
	return out
}

func (s Set) Intersect(o Set) Set {
	out := make(Set)
	for item := range s {
		if o.Contains(item) {
			out[item] = struct{}{}
		}
	}
	return out
}

// State is one side of a merge.
type State struct {
	Label    string
	Contents Set
}

type Result struct {
	// Additions are entries only theirs introduced.
	Additions Set
	// MergeCandidates are ancestor entries both sides kept.
	MergeCandidates Set

	DeletedOurs   Set
	DeletedTheirs Set
	AddedOurs     Set
	AddedTheirs   Set
}

// Partition splits ancestor into the entries side kept and the ones it
// removed.
func Partition(ancestor, side Set) (kept, removed Set) {
	return ancestor.Intersect(side), ancestor.Minus(side)
}

// Added returns what side introduced over ancestor.
func Added(ancestor, side Set) Set {
	return side.Minus(ancestor)
}

// ThreeWayMerge merges ours and theirs against their common ancestor. When
// the two sides deleted different entries the complete Result comes back
// with a DeletionConflict error; the caller decides how to resolve it.
func ThreeWayMerge(ancestor, ours, theirs State) (Result, error) {
	keptOurs, deletedOurs := Partition(ancestor.Contents, ours.Contents)
	keptTheirs, deletedTheirs := Partition(ancestor.Contents, theirs.Contents)

	addedOurs := Added(ancestor.Contents, ours.Contents)
	addedTheirs := Added(ancestor.Contents, theirs.Contents)

	result := Result{
		Additions:       addedTheirs.Minus(addedOurs),
		MergeCandidates: keptOurs.Intersect(keptTheirs),
		DeletedOurs:     deletedOurs,
		DeletedTheirs:   deletedTheirs,
		AddedOurs:       addedOurs,
		AddedTheirs:     addedTheirs,
	}

	if !deletedOurs.Equal(deletedTheirs) {
		return result, errors.DeletionConflict(deletedOurs.Sorted(), deletedTheirs.Sorted())
	}
	return result, nil
}
