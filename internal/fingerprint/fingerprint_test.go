package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dvcs/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, cacheSize int) *Service {
	t.Helper()
	s, err := NewService(Options{CacheSize: cacheSize})
	require.NoError(t, err)
	return s
}

func TestFingerprintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	fp, err := newService(t, 0).Fingerprint(path)
	require.NoError(t, err)

	assert.Equal(t, path, fp.Path)
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", fp.ContentHash)
	assert.True(t, fp.IsFile)
	assert.False(t, fp.ReadOnly)
	assert.NotZero(t, fp.ModifiedTime)
	assert.NotZero(t, fp.CreatedTime)
	assert.True(t, strings.HasPrefix(fp.Mode, "-rw"))
}

func TestFingerprintDirectory(t *testing.T) {
	dir := t.TempDir()

	fp, err := newService(t, 0).Fingerprint(dir)
	require.NoError(t, err)
	assert.Empty(t, fp.ContentHash)
	assert.False(t, fp.IsFile)
}

func TestFingerprintReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0444))

	fp, err := newService(t, 0).Fingerprint(path)
	require.NoError(t, err)
	assert.True(t, fp.ReadOnly)
}

func TestFingerprintMissing(t *testing.T) {
	_, err := newService(t, 0).Fingerprint(filepath.Join(t.TempDir(), "gone"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestFingerprintIdempotent(t *testing.T) {
	for _, size := range []int{0, 16} {
		path := filepath.Join(t.TempDir(), "a.txt")
		require.NoError(t, os.WriteFile(path, []byte("stable content\n"), 0644))
		s := newService(t, size)

		first, err := s.Fingerprint(path)
		require.NoError(t, err)
		second, err := s.Fingerprint(path)
		require.NoError(t, err)

		assert.True(t, first.Equal(second), "cache size %d", size)
		assert.Equal(t, first.ContentHash, second.ContentHash)
		assert.Equal(t, first.ModifiedTime, second.ModifiedTime)
		assert.Equal(t, first.CreatedTime, second.CreatedTime)
	}
}

func TestFingerprintSeesRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0644))
	s := newService(t, 16)

	before, err := s.Fingerprint(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("three"), 0644))
	after, err := s.Fingerprint(path)
	require.NoError(t, err)

	assert.NotEqual(t, before.ContentHash, after.ContentHash)
	assert.Equal(t, HashBytes([]byte("three")), after.ContentHash)
}

func TestEqualIgnoresAccessTime(t *testing.T) {
	a := Fingerprint{ContentHash: "h", ModifiedTime: 1, CreatedTime: 2, AccessedTime: 3, Mode: "-rw-r--r--"}
	b := a
	b.AccessedTime = 99
	assert.True(t, a.Equal(b))
	assert.False(t, a.Differs(b))

	tests := []struct {
		name   string
		mutate func(f *Fingerprint)
	}{
		{"hash", func(f *Fingerprint) { f.ContentHash = "other" }},
		{"modified", func(f *Fingerprint) { f.ModifiedTime++ }},
		{"created", func(f *Fingerprint) { f.CreatedTime++ }},
		{"mode", func(f *Fingerprint) { f.Mode = "-r--r--r--" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := a
			tt.mutate(&c)
			assert.False(t, a.Equal(c))
			assert.True(t, a.Differs(c))
		})
	}

	t.Run("read only", func(t *testing.T) {
		c := a
		c.ReadOnly = true
		assert.True(t, a.Equal(c))
		assert.True(t, a.Differs(c))
	})
}

func TestHashReader(t *testing.T) {
	hash, err := HashReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", hash)
	assert.Equal(t, hash, HashBytes(nil))
}
