package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"dvcs/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultLedgerFile)
	l, err := Open(path, Options{Locking: true})
	require.NoError(t, err)
	return l, path
}

func TestCommit(t *testing.T) {
	l := New()
	require.NoError(t, l.Commit("main", "c1", []FileEntry{{Path: "f.txt", Content: "hello"}}))

	assert.Equal(t, []string{"c1"}, l.Log())
	assert.Equal(t, []string{"c1:hello"}, l.FileHistory("f.txt"))
	assert.Equal(t, []string{"c1"}, l.Heads())
}

func TestCommitSequence(t *testing.T) {
	l := New()
	require.NoError(t, l.Commit("main", "c1", []FileEntry{{Path: "a", Content: "1"}}))
	require.NoError(t, l.Commit("feature", "c2", []FileEntry{{Path: "a", Content: "2"}, {Path: "b", Content: "x"}}))
	require.NoError(t, l.Commit("main", "c3", nil))

	assert.Equal(t, []string{"c1", "c2", "c3"}, l.Log())
	assert.Equal(t, []string{"feature", "main"}, l.Branches())
	assert.Equal(t, []string{"c2", "c3"}, l.Heads())
	assert.Equal(t, []string{"c1:1", "c2:2"}, l.FileHistory("a"))
	assert.Empty(t, l.FileHistory("missing"))

	head, ok := l.Head("main")
	assert.True(t, ok)
	assert.Equal(t, "c3", head)

	assert.Equal(t, map[string]string{"a": "2", "b": "x"}, l.Tree("c2"))
	content, ok := l.Content("a", "c1")
	assert.True(t, ok)
	assert.Equal(t, "1", content)
}

func TestCommitRejectsColonInContent(t *testing.T) {
	l, _ := setupTestLedger(t)

	err := l.Commit("main", "c1", []FileEntry{{Path: "ok.txt", Content: "abc"}, {Path: "f.txt", Content: "key: value"}})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidPath))
	assert.Empty(t, l.Log())
	assert.Empty(t, l.FileHistory("ok.txt"))

	// colons in the commit id are fine
	require.NoError(t, l.Commit("main", "fix: typo", []FileEntry{{Path: "f.txt", Content: "abc"}}))
	assert.Equal(t, map[string]string{"f.txt": "abc"}, l.Tree("fix: typo"))
}

func TestDuplicateCommitIDs(t *testing.T) {
	l := New()
	require.NoError(t, l.Commit("main", "same", []FileEntry{{Path: "a", Content: "1"}}))
	require.NoError(t, l.Commit("main", "same", []FileEntry{{Path: "a", Content: "2"}}))

	assert.Equal(t, []string{"same", "same"}, l.Log())
	assert.Equal(t, map[string]string{"a": "2"}, l.Tree("same"))
}

func TestCheckout(t *testing.T) {
	l := New()
	require.NoError(t, l.Commit("main", "c1", nil))
	require.NoError(t, l.Commit("main", "c2", nil))

	require.NoError(t, l.Checkout("main", "c1"))
	assert.Equal(t, []string{"c1", "c2", "c1"}, l.Log())
	head, _ := l.Head("main")
	assert.Equal(t, "c1", head)

	err := l.Checkout("main", "nope")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNoSuchEntry))
	assert.Len(t, l.Log(), 3)
}

func TestConcatenate(t *testing.T) {
	l := New()
	require.NoError(t, l.Commit("main", "first", nil))
	require.NoError(t, l.Commit("main", "second", nil))

	joined, err := l.Concatenate("squash", []string{"first", "unknown", "second"})
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", joined)

	head, _ := l.Head("squash")
	assert.Equal(t, "first\nsecond", head)

	_, err = l.Concatenate("squash", []string{"unknown"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNoSuchEntry))
}

func TestParseEntry(t *testing.T) {
	tests := []struct {
		entry   string
		id      string
		content string
		ok      bool
	}{
		{"c1:hello", "c1", "hello", true},
		{"fix: typo:abc123", "fix: typo", "abc123", true},
		{"c1:", "c1", "", true},
		{"nocolon", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			id, content, ok := ParseEntry(tt.entry)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.content, content)
		})
	}
}

func TestPersistence(t *testing.T) {
	l, path := setupTestLedger(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Commit("main", fmt.Sprintf("c%d", i), []FileEntry{{Path: "f", Content: fmt.Sprint(i)}}))
	}

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, l.Log(), reopened.Log())
	assert.Equal(t, l.Heads(), reopened.Heads())
	assert.Equal(t, l.FileHistory("f"), reopened.FileHistory("f"))
}

func TestOpen(t *testing.T) {
	t.Run("creates missing file", func(t *testing.T) {
		l, path := setupTestLedger(t)
		_, err := os.Stat(path)
		require.NoError(t, err)
		assert.Empty(t, l.Log())
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultLedgerFile)
		require.NoError(t, os.WriteFile(path, nil, 0644))
		l, err := Open(path, Options{})
		require.NoError(t, err)
		assert.Empty(t, l.Heads())
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultLedgerFile)
		require.NoError(t, os.WriteFile(path, []byte(`{"commit_history":`), 0644))
		_, err := Open(path, Options{})
		assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptIndex))
	})

	t.Run("partial document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultLedgerFile)
		require.NoError(t, os.WriteFile(path, []byte(`{"commit_history":["c1"]}`), 0644))
		l, err := Open(path, Options{})
		require.NoError(t, err)
		require.NoError(t, l.Commit("main", "c2", []FileEntry{{Path: "a", Content: "x"}}))
		assert.Equal(t, []string{"c1", "c2"}, l.Log())
	})
}

func TestTwoWritersShareFile(t *testing.T) {
	a, path := setupTestLedger(t)
	b, err := Open(path, Options{Locking: true})
	require.NoError(t, err)

	require.NoError(t, a.Commit("main", "from-a", nil))
	require.NoError(t, b.Commit("main", "from-b", nil))

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"from-a", "from-b"}, reopened.Log())
}
