// Package objects is the content-addressed blob store behind staged and
// committed file content. Blobs are keyed by the same SHA-1 the
// fingerprints carry.
package objects

import (
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dvcs/internal/errors"
	"dvcs/internal/fingerprint"
	"dvcs/internal/storage"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var ErrInvalidHash = stderrors.New("invalid object hash")

const metaPrefix = "object"

// Meta describes one stored blob.
type Meta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

func (m *Meta) GetID() string { return m.Hash }

type Stats struct {
	Objects    int
	Size       int64
	StoredSize int64
}

type VerifyReport struct {
	Verified int
	Missing  []string
	Corrupt  []string
}

type Options struct {
	// Root holds the blob files; the metadata database lives in Root/metadata
	// unless a database is handed to New.
	Root        string
	CacheSize   int
	Compression CompressionOptions
	Logger      *zap.Logger
}

type Store struct {
	root       string
	db         *badger.DB
	ownsDB     bool
	meta       *storage.BadgerStore
	cache      *lru.Cache[string, []byte]
	compressor *compressor
	logger     *zap.Logger
}

// Open creates Root if needed and opens the metadata database inside it.
func Open(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, errors.WriteFailed(opts.Root, err)
	}
	db, err := storage.OpenDB(filepath.Join(opts.Root, "metadata"), opts.Logger)
	if err != nil {
		return nil, err
	}
	s, err := New(db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New builds a store on an already opened database, which the caller keeps
// ownership of.
func New(db *badger.DB, opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, errors.WriteFailed(opts.Root, err)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Compression == (CompressionOptions{}) {
		opts.Compression = DefaultCompressionOptions()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	comp, err := newCompressor(opts.Compression)
	if err != nil {
		return nil, err
	}

	return &Store{
		root:       opts.Root,
		db:         db,
		meta:       storage.NewBadgerStore(db, metaPrefix),
		cache:      cache,
		compressor: comp,
		logger:     opts.Logger,
	}, nil
}

// Put stores content once and returns its hash. Concurrent writers of the
// same content all succeed; the first metadata record wins.
func (s *Store) Put(content []byte) (string, error) {
	hash := fingerprint.HashBytes(content)

	exists, err := s.Has(hash)
	if err != nil {
		return "", fmt.Errorf("checking object %s: %w", hash, err)
	}
	if exists {
		return hash, nil
	}

	stored, compressed := s.compressor.compress(content)
	path := s.objectPath(hash)
	if err := writeFileAtomic(path, stored); err != nil {
		return "", errors.WriteFailed(path, err)
	}

	meta := &Meta{
		Hash:       hash,
		Size:       int64(len(content)),
		StoredSize: int64(len(stored)),
		Compressed: compressed,
		CreatedAt:  time.Now(),
	}
	if err := s.meta.Create(meta); err != nil {
		if stderrors.Is(err, storage.ErrExists) {
			return hash, nil
		}
		os.Remove(path)
		return "", fmt.Errorf("storing object metadata: %w", err)
	}

	s.cache.Add(hash, content)
	s.logger.Debug("Object stored",
		zap.String("hash", hash),
		zap.Int64("size", meta.Size),
		zap.Bool("compressed", compressed))
	return hash, nil
}

// Get returns the content of hash, verifying it against the hash.
func (s *Store) Get(hash string) ([]byte, error) {
	if !validHash(hash) {
		return nil, ErrInvalidHash
	}
	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	meta, err := s.Stat(hash)
	if err != nil {
		return nil, err
	}

	path := s.objectPath(hash)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NoSuchEntry(hash)
		}
		return nil, errors.Unreadable(path, err)
	}
	if meta.Compressed {
		content, err = s.compressor.decompress(content)
		if err != nil {
			return nil, errors.Unreadable(path, err)
		}
	}
	if fingerprint.HashBytes(content) != hash {
		return nil, errors.Unreadable(path, fmt.Errorf("content hash mismatch"))
	}

	s.cache.Add(hash, content)
	return content, nil
}

func (s *Store) Has(hash string) (bool, error) {
	if !validHash(hash) {
		return false, ErrInvalidHash
	}
	if s.cache.Contains(hash) {
		return true, nil
	}
	return s.meta.Exists(hash)
}

func (s *Store) Stat(hash string) (Meta, error) {
	if !validHash(hash) {
		return Meta{}, ErrInvalidHash
	}
	var meta Meta
	if err := s.meta.Get(hash, &meta); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return Meta{}, errors.NoSuchEntry(hash)
		}
		return Meta{}, fmt.Errorf("reading object metadata: %w", err)
	}
	return meta, nil
}

// Stats totals the metadata of every stored object.
func (s *Store) Stats() (Stats, error) {
	var metas []Meta
	if err := s.meta.List(&metas); err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, m := range metas {
		st.Objects++
		st.Size += m.Size
		st.StoredSize += m.StoredSize
	}
	return st, nil
}

// Verify reads back every object. Metadata left behind by a vanished blob is
// deleted, so storing that content again rewrites the blob. Blobs that no
// longer match their hash are reported and kept.
func (s *Store) Verify() (VerifyReport, error) {
	hashes, err := s.meta.IDs()
	if err != nil {
		return VerifyReport{}, err
	}

	var report VerifyReport
	for _, hash := range hashes {
		s.cache.Remove(hash)
		_, err := s.Get(hash)
		switch {
		case err == nil:
			report.Verified++
		case errors.IsType(err, errors.ErrorTypeNoSuchEntry):
			if err := s.meta.Delete(hash); err != nil && !stderrors.Is(err, storage.ErrNotFound) {
				return report, fmt.Errorf("dropping metadata of %s: %w", hash, err)
			}
			report.Missing = append(report.Missing, hash)
			s.logger.Warn("Object blob missing, metadata dropped", zap.String("hash", hash))
		case errors.IsType(err, errors.ErrorTypeUnreadable):
			report.Corrupt = append(report.Corrupt, hash)
			s.logger.Warn("Object content does not match its hash", zap.String("hash", hash), zap.Error(err))
		default:
			return report, err
		}
	}
	return report, nil
}

// Close releases the database when the store opened it.
func (s *Store) Close() error {
	s.cache.Purge()
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash[2:])
}

func validHash(hash string) bool {
	if len(hash) != 40 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
