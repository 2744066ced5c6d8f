// Package repository is the entry point used by front ends: it locates or
// creates a repository and runs add, remove, status, diff, commit and merge
// against its staging index, ledger and object store.
package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"dvcs/internal/config"
	"dvcs/internal/diff"
	"dvcs/internal/errors"
	"dvcs/internal/fingerprint"
	"dvcs/internal/ledger"
	"dvcs/internal/locator"
	"dvcs/internal/logging"
	"dvcs/internal/objects"
	"dvcs/internal/staging"

	"go.uber.org/zap"
)

// Repository is an opened repository.
type Repository struct {
	Root    string
	MetaDir string
	Config  *config.Config

	Index      *staging.Index
	Ledger     *ledger.Ledger
	Objects    *objects.Store
	DiffEngine *diff.Engine

	Logger *zap.Logger
}

// Init turns the existing directory path into a repository and records its
// current tree in the working-directory slot. Initialising an existing
// repository reopens it.
func Init(path string, cfg *config.Config, logger *zap.Logger) (*Repository, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	log := logging.WithOperation(logger, "init")

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.NotFound(path, err)
	}
	if !info.IsDir() {
		return nil, errors.NoSuchDirectory(path, fmt.Errorf("not a directory"))
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.NotFound(path, err)
	}

	metaDir := cfg.MetaDir(root)
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return nil, errors.WriteFailed(metaDir, err)
	}

	r, err := open(root, metaDir, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := r.Index.SnapshotTree("", staging.SlotWorkingDirectory); err != nil {
		r.Close()
		return nil, fmt.Errorf("recording initial tree: %w", err)
	}

	log.Info("Repository initialized", zap.String("root", r.Root))
	return r, nil
}

// Open finds the repository enclosing path.
func Open(path string, cfg *config.Config, logger *zap.Logger) (*Repository, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	loc, found, err := locator.New(cfg.Repository.MetadataDir, logger).Locate(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NoSuchRepository(path)
	}
	return open(loc.Root, loc.MetaDir, cfg, logger)
}

func open(root, metaDir string, cfg *config.Config, logger *zap.Logger) (*Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fingerprints, err := fingerprint.NewService(fingerprint.Options{
		CacheSize: cfg.Fingerprint.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	index, err := staging.Open(metaDir, root, staging.Options{
		IndexFile:    cfg.Repository.IndexFile,
		MetadataName: cfg.Repository.MetadataDir,
		MaxDepth:     cfg.Traversal.MaxDepth,
		Locking:      cfg.Locking.Enabled,
		Fingerprints: fingerprints,
		Logger:       logger.Named("staging"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening staging index: %w", err)
	}

	led, err := ledger.Open(cfg.LedgerPath(index.MetaDir()), ledger.Options{
		Locking: cfg.Locking.Enabled,
		Logger:  logger.Named("ledger"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	store, err := objects.Open(objects.Options{
		Root:      cfg.ObjectsPath(index.MetaDir()),
		CacheSize: cfg.Objects.CacheSize,
		Compression: objects.CompressionOptions{
			MinSize: cfg.Objects.CompressMinSize,
			Level:   cfg.Objects.CompressLevel,
		},
		Logger: logger.Named("objects"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening object store: %w", err)
	}

	logger.Debug("Repository opened",
		zap.String("index", index.Path()),
		zap.Int("records", index.Len()))

	return &Repository{
		Root:       index.WorkingRoot(),
		MetaDir:    index.MetaDir(),
		Config:     cfg,
		Index:      index,
		Ledger:     led,
		Objects:    store,
		DiffEngine: diff.NewEngine(cfg.Diff.ContextLines),
		Logger:     logger,
	}, nil
}

// Entry is one index record, for listings.
type Entry struct {
	Path string
	staging.Record
}

// Entries lists every index record in path order.
func (r *Repository) Entries() []Entry {
	records := r.Index.Records()
	entries := make([]Entry, 0, len(records))
	for _, key := range r.Index.Keys() {
		if rec, ok := records[key]; ok {
			entries = append(entries, Entry{Path: key, Record: rec})
		}
	}
	return entries
}

// Verify checks every stored object against its hash and drops metadata
// whose blob is gone.
func (r *Repository) Verify() (objects.VerifyReport, objects.Stats, error) {
	log := r.op("verify")

	report, err := r.Objects.Verify()
	if err != nil {
		return report, objects.Stats{}, fmt.Errorf("verifying objects: %w", err)
	}
	stats, err := r.Objects.Stats()
	if err != nil {
		return report, objects.Stats{}, fmt.Errorf("reading object stats: %w", err)
	}

	log.Info("Objects verified",
		zap.Int("verified", report.Verified),
		zap.Int("missing", len(report.Missing)),
		zap.Int("corrupt", len(report.Corrupt)))
	return report, stats, nil
}

func (r *Repository) Close() error {
	if r.Objects == nil {
		return nil
	}
	err := r.Objects.Close()
	r.Objects = nil
	return err
}

// resolve turns a caller path (absolute, or relative to the process working
// directory) into an absolute path.
func (r *Repository) resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.InvalidPath(path, err.Error())
	}
	return abs, nil
}

func (r *Repository) op(name string) *zap.Logger {
	return logging.WithOperation(r.Logger, name)
}
