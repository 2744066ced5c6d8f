package locator

import (
	"os"
	"path/filepath"
	"testing"

	"dvcs/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metaName = ".dvcs_hidden"

func canonical(t *testing.T, path string) string {
	t.Helper()
	c, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return c
}

func TestLocate(t *testing.T) {
	root := canonical(t, t.TempDir())
	require.NoError(t, os.Mkdir(filepath.Join(root, metaName), 0755))
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0755))
	file := filepath.Join(deep, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	l := New(metaName, nil)

	tests := []struct {
		name  string
		start string
	}{
		{"root itself", root},
		{"three levels below", deep},
		{"file start", file},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, found, err := l.Locate(tt.start)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, root, loc.Root)
			assert.Equal(t, filepath.Join(root, metaName), loc.MetaDir)
		})
	}
}

func TestLocateNotFound(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "x", "y")
	require.NoError(t, os.MkdirAll(dir, 0755))

	_, found, err := New(metaName, nil).Locate(dir)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocateNearestWins(t *testing.T) {
	outer := canonical(t, t.TempDir())
	inner := filepath.Join(outer, "nested")
	require.NoError(t, os.MkdirAll(filepath.Join(outer, metaName), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(inner, metaName), 0755))

	loc, found, err := New(metaName, nil).Locate(filepath.Join(inner))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, inner, loc.Root)
}

func TestLocateIgnoresFileWithReservedName(t *testing.T) {
	root := canonical(t, t.TempDir())
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, metaName), []byte("not a dir"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, metaName), 0755))

	loc, found, err := New(metaName, nil).Locate(sub)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, root, loc.Root)
}

func TestLocateMissingStart(t *testing.T) {
	_, found, err := New(metaName, nil).Locate(filepath.Join(t.TempDir(), "missing"))
	assert.False(t, found)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
