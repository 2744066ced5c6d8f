// Package persist holds the whole-file JSON persistence shared by the
// staging index and the commit ledger.
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dvcs/internal/errors"

	"github.com/gofrs/flock"
)

// WriteJSON replaces path with the JSON encoding of v. The data goes to a
// temp file in the same directory first, so readers never see a partial
// document.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.WriteFailed(path, fmt.Errorf("marshaling: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.WriteFailed(path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WriteFailed(path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.WriteFailed(path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WriteFailed(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.WriteFailed(path, err)
	}
	return nil
}

// ReadJSON decodes path into v. It reports empty=true without touching v
// when the file is empty or whitespace only. Read and parse failures are
// CorruptIndex errors; the file is left as it is.
func ReadJSON(path string, v any) (empty bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, errors.NotFound(path, err)
		}
		return false, errors.CorruptIndex(path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.CorruptIndex(path, err)
	}
	return false, nil
}

// EnsureFile creates an empty file at path if nothing exists there.
func EnsureFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return errors.WriteFailed(path, err)
	}
	if err := f.Close(); err != nil {
		return errors.WriteFailed(path, err)
	}
	return nil
}

// Lock takes an exclusive advisory lock on path and returns its release
// function. A disabled lock is a no-op.
func Lock(path string, enabled bool) (func(), error) {
	if !enabled {
		return func() {}, nil
	}

	fl := flock.New(path)
	if err := fl.Lock(); err != nil {
		return nil, errors.WriteFailed(path, fmt.Errorf("acquiring lock: %w", err))
	}
	return func() {
		fl.Unlock()
	}, nil
}
