// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"dvcs/internal/logging"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var (
	ErrNotFound = stderrors.New("entity not found")
	ErrExists   = stderrors.New("entity already exists")
)

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// OpenDB opens a badger database in dir, or in memory when dir is empty.
// Badger's own logging is routed through logger.
func OpenDB(dir string, logger *zap.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(logging.BadgerLogger(logger)).
		WithNumVersionsToKeep(1).
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(64 << 20)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// BadgerStore stores JSON-encoded entities under "<prefix>:<id>" keys.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), s.prefix+":")
}

func encode(entity Entity) ([]byte, error) {
	if entity.GetID() == "" {
		return nil, fmt.Errorf("entity ID cannot be empty")
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("marshaling entity: %w", err)
	}
	return data, nil
}

// Create fails with ErrExists when the entity already exists. A transaction
// that lost a race with another writer is retried, so the loser sees
// ErrExists.
func (s *BadgerStore) Create(entity Entity) error {
	data, err := encode(entity)
	if err != nil {
		return err
	}

	key := s.makeKey(entity.GetID())
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(key)
			if err == nil {
				return fmt.Errorf("%w: %s", ErrExists, entity.GetID())
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			return txn.Set(key, data)
		})
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

// Put creates or replaces the entity.
func (s *BadgerStore) Put(entity Entity) error {
	data, err := encode(entity)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.makeKey(entity.GetID()), data)
	})
}

func (s *BadgerStore) Get(id string, entity Entity) error {
	key := s.makeKey(id)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, entity)
		})
	})

	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

func (s *BadgerStore) Exists(id string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(s.makeKey(id))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *BadgerStore) Delete(id string) error {
	key := s.makeKey(id)

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		} else if err != nil {
			return err
		}

		return txn.Delete(key)
	})
}

// IDs returns the ids stored under the prefix in key order.
func (s *BadgerStore) IDs() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(s.prefix + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, s.stripPrefix(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing ids: %w", err)
	}
	return ids, nil
}

// List decodes every entity under the prefix into results, which must be a
// pointer to a slice.
func (s *BadgerStore) List(results interface{}) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(s.prefix + ":")
		var values []json.RawMessage

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				values = append(values, append([]byte{}, val...))
				return nil
			})
			if err != nil {
				return err
			}
		}

		data, err := json.Marshal(values)
		if err != nil {
			return err
		}

		return json.Unmarshal(data, results)
	})

	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	return nil
}
