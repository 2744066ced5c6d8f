package staging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusReport(t *testing.T) {
	ix, root := setupTestIndex(t)
	clean := writeFile(t, root, "clean.txt", "same")
	dirty := writeFile(t, root, "dirty.txt", "before")
	writeFile(t, root, "untracked.txt", "u")

	require.NoError(t, ix.AddPath(clean))
	require.NoError(t, ix.AddPath(dirty))
	require.NoError(t, ix.RefreshWorkingVsStaging())
	assert.Equal(t, "changed:\n", ix.StatusReport())

	require.NoError(t, os.WriteFile(dirty, []byte("after, and longer"), 0644))
	require.NoError(t, ix.RefreshWorkingVsStaging())
	assert.Equal(t, "changed:\ndirty.txt\n", ix.StatusReport())

	t.Run("mode change", func(t *testing.T) {
		require.NoError(t, os.Chmod(clean, 0444))
		require.NoError(t, ix.RefreshWorkingVsStaging())
		assert.Equal(t, "changed:\nclean.txt\ndirty.txt\n", ix.StatusReport())
	})
}

func TestRefreshClearsDeletedPaths(t *testing.T) {
	ix, root := setupTestIndex(t)
	path := writeFile(t, root, "a.txt", "a")
	require.NoError(t, ix.AddPath(path))
	require.NoError(t, ix.RefreshWorkingVsStaging())

	rec, _ := ix.Record(path)
	require.NotNil(t, rec.WorkingDirectory)

	require.NoError(t, os.Remove(path))
	require.NoError(t, ix.RefreshWorkingVsStaging())

	rec, ok := ix.Record(path)
	require.True(t, ok)
	assert.Nil(t, rec.WorkingDirectory)
	assert.NotNil(t, rec.Staging)
	assert.Equal(t, "changed:\n", ix.StatusReport(), "records missing a slot are not reported")
}

func TestChanges(t *testing.T) {
	ix, root := setupTestIndex(t)
	committed := writeFile(t, root, "committed.txt", "c")
	edited := writeFile(t, root, "edited.txt", "e")
	deleted := writeFile(t, root, "deleted.txt", "d")
	unstaged := writeFile(t, root, "unstaged.txt", "x")
	writeFile(t, root, "new.txt", "n")

	for _, p := range []string{committed, edited, deleted, unstaged} {
		require.NoError(t, ix.AddPath(p))
	}
	require.NoError(t, ix.PromoteStaging())

	require.NoError(t, os.WriteFile(edited, []byte("edited again"), 0644))
	require.NoError(t, ix.AddPath(edited))
	require.NoError(t, os.Remove(deleted))
	require.NoError(t, ix.RemovePath(unstaged))
	require.NoError(t, ix.SnapshotTree("", SlotWorkingDirectory))
	require.NoError(t, ix.RefreshWorkingVsStaging())

	assert.Equal(t, []Change{
		{Path: "deleted.txt", Kind: ChangeDeleted},
		{Path: "edited.txt", Kind: ChangeStaged},
		{Path: "new.txt", Kind: ChangeUntracked},
		{Path: "unstaged.txt", Kind: ChangeRemoved},
	}, ix.Changes())
}

func TestDiffAgainst(t *testing.T) {
	ix, root := setupTestIndex(t)
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")
	require.NoError(t, ix.SnapshotTree("", SlotWorkingDirectory))

	t.Run("equal snapshot", func(t *testing.T) {
		assert.Empty(t, ix.DiffAgainst(ix.Tree(SlotWorkingDirectory)))
	})

	t.Run("changed and added", func(t *testing.T) {
		current := ix.Tree(SlotWorkingDirectory)
		prior := map[string]string{
			"a.txt":    "stale",
			"gone.txt": "whatever",
		}
		assert.Equal(t, map[string]string{
			"a.txt": current["a.txt"],
			"b.txt": current["b.txt"],
		}, ix.DiffAgainst(prior))
	})
}

func TestDiffTrees(t *testing.T) {
	tests := []struct {
		name    string
		current map[string]string
		prior   map[string]string
		want    map[string]string
	}{
		{"both empty", nil, nil, map[string]string{}},
		{"all new", map[string]string{"a": "1"}, nil, map[string]string{"a": "1"}},
		{"deletions not reported", map[string]string{}, map[string]string{"a": "1"}, map[string]string{}},
		{"changed", map[string]string{"a": "2", "b": "1"}, map[string]string{"a": "1", "b": "1"}, map[string]string{"a": "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DiffTrees(tt.current, tt.prior))
		})
	}
}
