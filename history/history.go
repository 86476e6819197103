// Package history persists finished dictations in a local Badger store.
package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"go.aural.dev/aural/internal/types"
)

// keyPrefix namespaces transcript records. The key suffix is the
// big-endian creation timestamp so iteration order is chronological.
var keyPrefix = []byte("transcript/")

// Store is a durable transcript history.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the history store at dir. An empty dir
// selects the default location under the user config directory.
func Open(dir string) (*Store, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("get user config dir: %w", err)
		}
		dir = filepath.Join(base, "aural", "history")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return &Store{db: db}, nil
}

// Add stores a finished dictation and returns the stored record with
// its generated ID and timestamp filled in.
func (s *Store) Add(provider types.Provider, text, language string) (types.TranscriptRecord, error) {
	rec := types.TranscriptRecord{
		ID:        uuid.New().String(),
		Provider:  provider,
		Text:      text,
		Language:  language,
		CreatedAt: time.Now().UnixMilli(),
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return types.TranscriptRecord{}, fmt.Errorf("marshal record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(rec), value)
	})
	if err != nil {
		return types.TranscriptRecord{}, fmt.Errorf("store record: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]types.TranscriptRecord, error) {
	var records []types.TranscriptRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the last prefixed key.
		seek := append(append([]byte(nil), keyPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix) && len(records) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec types.TranscriptRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("unmarshal record: %w", err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes a record by ID.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			item := it.Item()
			var rec types.TranscriptRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if rec.ID == id {
				return txn.Delete(item.KeyCopy(nil))
			}
		}
		return badger.ErrKeyNotFound
	})
}

// Close releases the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(rec types.TranscriptRecord) []byte {
	k := make([]byte, 0, len(keyPrefix)+8+1+len(rec.ID))
	k = append(k, keyPrefix...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(rec.CreatedAt))
	k = append(k, ts[:]...)
	k = append(k, '/')
	k = append(k, rec.ID...)
	return k
}
