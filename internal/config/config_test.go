package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, ".dvcs_hidden", c.Repository.MetadataDir)
	assert.Equal(t, "index.json", c.Repository.IndexFile)
	assert.Equal(t, "repo.json", c.Repository.LedgerFile)
	assert.True(t, c.Locking.Enabled)
	assert.Equal(t, filepath.Join("/w", ".dvcs_hidden"), c.MetaDir("/w"))
}

func TestLoad(t *testing.T) {
	t.Run("json overrides defaults", func(t *testing.T) {
		path := writeFile(t, "config.json", `{"log_level":"debug","locking":{"enabled":false},"traversal":{"max_depth":8}}`)

		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", c.LogLevel)
		assert.False(t, c.Locking.Enabled)
		assert.Equal(t, 8, c.Traversal.MaxDepth)
		assert.Equal(t, ".dvcs_hidden", c.Repository.MetadataDir)
	})

	t.Run("yaml", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "repository:\n  metadata_dir: .meta\nobjects:\n  compress_min_size: 64\n")

		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ".meta", c.Repository.MetadataDir)
		assert.Equal(t, 64, c.Objects.CompressMinSize)
		assert.Equal(t, "repo.json", c.Repository.LedgerFile)
	})

	t.Run("malformed", func(t *testing.T) {
		path := writeFile(t, "config.json", `{"log_level":`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"nested metadata dir", func(c *Config) { c.Repository.MetadataDir = "a/b" }},
		{"dot metadata dir", func(c *Config) { c.Repository.MetadataDir = "." }},
		{"empty index file", func(c *Config) { c.Repository.IndexFile = "" }},
		{"zero depth", func(c *Config) { c.Traversal.MaxDepth = 0 }},
		{"negative cache", func(c *Config) { c.Objects.CacheSize = -1 }},
		{"compress level", func(c *Config) { c.Objects.CompressLevel = 9 }},
		{"negative context", func(c *Config) { c.Diff.ContextLines = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestFromEnv(t *testing.T) {
	path := writeFile(t, "config.yml", "log_level: warn\n")
	t.Setenv(EnvConfigPath, path)

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "warn", c.LogLevel)

	t.Setenv(EnvLogLevel, "error")
	c, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "error", c.LogLevel)
}
