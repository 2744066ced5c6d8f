// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Repository struct {
		MetadataDir string `json:"metadata_dir" yaml:"metadata_dir"`
		IndexFile   string `json:"index_file" yaml:"index_file"`
		LedgerFile  string `json:"ledger_file" yaml:"ledger_file"`
		ObjectsDir  string `json:"objects_dir" yaml:"objects_dir"`
	} `json:"repository" yaml:"repository"`

	Traversal struct {
		MaxDepth int `json:"max_depth" yaml:"max_depth"`
	} `json:"traversal" yaml:"traversal"`

	// Locking guards index and ledger read-modify-write cycles with an
	// advisory file lock. Disable only to reproduce unlocked behaviour.
	Locking struct {
		Enabled bool `json:"enabled" yaml:"enabled"`
	} `json:"locking" yaml:"locking"`

	Fingerprint struct {
		CacheSize int `json:"cache_size" yaml:"cache_size"`
	} `json:"fingerprint" yaml:"fingerprint"`

	Objects struct {
		CacheSize       int `json:"cache_size" yaml:"cache_size"`
		CompressMinSize int `json:"compress_min_size" yaml:"compress_min_size"`
		CompressLevel   int `json:"compress_level" yaml:"compress_level"`
	} `json:"objects" yaml:"objects"`

	Diff struct {
		ContextLines int `json:"context_lines" yaml:"context_lines"`
	} `json:"diff" yaml:"diff"`

	Environment string `json:"environment" yaml:"environment"` // dev, prod
	LogLevel    string `json:"log_level" yaml:"log_level"`     // debug, info, warn, error
}

const (
	EnvConfigPath = "DVCS_CONFIG"
	EnvLogLevel   = "DVCS_LOG_LEVEL"
)

func Default() *Config {
	var c Config
	c.Repository.MetadataDir = ".dvcs_hidden"
	c.Repository.IndexFile = "index.json"
	c.Repository.LedgerFile = "repo.json"
	c.Repository.ObjectsDir = "objects"
	c.Traversal.MaxDepth = 256
	c.Locking.Enabled = true
	c.Fingerprint.CacheSize = 1024
	c.Objects.CacheSize = 256
	c.Objects.CompressMinSize = 1024
	c.Objects.CompressLevel = 2
	c.Diff.ContextLines = 3
	c.Environment = "development"
	c.LogLevel = "info"
	return &c
}

// Load reads a JSON or YAML file (chosen by extension) over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FromEnv loads the file named by DVCS_CONFIG when set, then applies
// DVCS_LOG_LEVEL.
func FromEnv() (*Config, error) {
	config := Default()
	if path := os.Getenv(EnvConfigPath); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		config.LogLevel = level
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	name := c.Repository.MetadataDir
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("repository.metadata_dir must be a single path element, got %q", name)
	}
	for key, file := range map[string]string{
		"repository.index_file":  c.Repository.IndexFile,
		"repository.ledger_file": c.Repository.LedgerFile,
		"repository.objects_dir": c.Repository.ObjectsDir,
	} {
		if file == "" || strings.ContainsAny(file, `/\`) {
			return fmt.Errorf("%s must be a single path element, got %q", key, file)
		}
	}
	if c.Traversal.MaxDepth <= 0 {
		return fmt.Errorf("traversal.max_depth must be positive")
	}
	if c.Fingerprint.CacheSize < 0 || c.Objects.CacheSize < 0 {
		return fmt.Errorf("cache sizes cannot be negative")
	}
	if c.Objects.CompressLevel < 1 || c.Objects.CompressLevel > 4 {
		return fmt.Errorf("objects.compress_level must be between 1 and 4")
	}
	if c.Diff.ContextLines < 0 {
		return fmt.Errorf("diff.context_lines cannot be negative")
	}
	return nil
}

// MetaDir is the metadata folder inside a working root.
func (c *Config) MetaDir(root string) string {
	return filepath.Join(root, c.Repository.MetadataDir)
}

func (c *Config) LedgerPath(metaDir string) string {
	return filepath.Join(metaDir, c.Repository.LedgerFile)
}

func (c *Config) ObjectsPath(metaDir string) string {
	return filepath.Join(metaDir, c.Repository.ObjectsDir)
}
