//go:build unix

package repository

import (
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"dvcs/internal/errors"
	"dvcs/internal/staging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runWithin fails the test when fn has not returned after d.
func runWithin(t *testing.T, d time.Duration, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		t.Fatalf("still running after %s", d)
		return nil
	}
}

func TestAddSkipsPipeContent(t *testing.T) {
	r, root := setupTestRepo(t)
	writeFile(t, root, "a.txt", "a")
	pipe := filepath.Join(root, "pipe")
	require.NoError(t, syscall.Mkfifo(pipe, 0644))

	t.Run("directory", func(t *testing.T) {
		err := runWithin(t, 5*time.Second, func() error { return r.Add(root) })
		require.NoError(t, err)

		staged := r.Index.Tree(staging.SlotStaging)
		assert.Equal(t, []string{"a.txt"}, keys(staged))

		rec, ok := r.Index.Record(pipe)
		require.True(t, ok)
		require.NotNil(t, rec.Staging)
		assert.Empty(t, rec.Staging.ContentHash)
	})

	t.Run("single path", func(t *testing.T) {
		err := runWithin(t, 5*time.Second, func() error { return r.Add(pipe) })
		require.NoError(t, err)
	})

	t.Run("diff", func(t *testing.T) {
		err := runWithin(t, 5*time.Second, func() error {
			_, err := r.Diff(pipe, "")
			return err
		})
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidPath))
	})

	t.Run("commit leaves the pipe out", func(t *testing.T) {
		n, err := r.Commit("main", "c1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"a.txt"}, keys(r.Ledger.Tree("c1")))
	})
}
