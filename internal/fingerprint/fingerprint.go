// Package fingerprint computes the content and metadata fingerprint that the
// staging index stores in each slot of a record.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"

	"dvcs/internal/errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Fingerprint is an immutable snapshot of one filesystem entry. Times are
// nanoseconds since the Unix epoch.
type Fingerprint struct {
	Path         string `json:"path"`
	ContentHash  string `json:"content_hash"`
	ModifiedTime int64  `json:"modified_time"`
	CreatedTime  int64  `json:"created_time"`
	AccessedTime int64  `json:"accessed_time"`
	Mode         string `json:"mode"`
	ReadOnly     bool   `json:"read_only"`
	IsFile       bool   `json:"is_file"`
}

// Equal compares content hash, modification time, creation time and mode.
// Access time is ignored: reading a file must not make it look changed.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.ContentHash == o.ContentHash &&
		f.ModifiedTime == o.ModifiedTime &&
		f.CreatedTime == o.CreatedTime &&
		f.Mode == o.Mode
}

// Differs is the status comparison: Equal plus the read-only flag.
func (f Fingerprint) Differs(o Fingerprint) bool {
	return !f.Equal(o) || f.ReadOnly != o.ReadOnly
}

// Service fingerprints paths. The zero value works without a cache.
type Service struct {
	cache  *lru.Cache[string, string]
	logger *zap.Logger
}

type Options struct {
	// CacheSize bounds the content hash cache; 0 disables it.
	CacheSize int
	Logger    *zap.Logger
}

func NewService(opts Options) (*Service, error) {
	s := &Service{logger: opts.Logger}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating hash cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Fingerprint stats path (following symlinks) and, for regular files,
// streams the content through SHA-1. Directories carry an empty hash.
func (s *Service) Fingerprint(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, errors.NotFound(path, err)
	}

	var hash string
	if info.Mode().IsRegular() {
		hash, err = s.contentHash(path, info)
		if err != nil {
			return Fingerprint{}, err
		}
		// re-stat so the recorded times reflect the state after reading
		if after, err := os.Stat(path); err == nil {
			info = after
		}
	}

	created, accessed := fileTimes(path, info)
	return Fingerprint{
		Path:         path,
		ContentHash:  hash,
		ModifiedTime: info.ModTime().UnixNano(),
		CreatedTime:  created,
		AccessedTime: accessed,
		Mode:         info.Mode().String(),
		ReadOnly:     info.Mode().Perm()&0o222 == 0,
		IsFile:       !info.IsDir(),
	}, nil
}

func (s *Service) contentHash(path string, info fs.FileInfo) (string, error) {
	key := cacheKey(path, info)
	if s.cache != nil {
		if hash, ok := s.cache.Get(key); ok {
			return hash, nil
		}
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound(path, err)
		}
		return "", errors.Unreadable(path, err)
	}
	defer f.Close()

	hash, err := HashReader(f)
	if err != nil {
		s.logger.Debug("Hashing interrupted", zap.String("path", path), zap.Error(err))
		return "", errors.Unreadable(path, err)
	}

	if s.cache != nil {
		s.cache.Add(key, hash)
	}
	return hash, nil
}

func cacheKey(path string, info fs.FileInfo) string {
	return fmt.Sprintf("%s|%d|%d|%s", path, info.Size(), info.ModTime().UnixNano(), info.Mode())
}

// HashReader returns the lowercase hex SHA-1 of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func HashBytes(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}
