// Package prefs is a small persistent key-value store for daemon
// preferences and last-known values, kept in a badger database at
// <dir>/<name>.preferences_pb.
package prefs

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("idflow/prefs: key not found")

// Path returns the location of the store called name under dir.
func Path(dir, name string) string {
	return filepath.Join(dir, name+".preferences_pb")
}

// Store is a preferences datastore. It is safe for concurrent use.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens, creating if needed, the store called name under dir.
func Open(dir, name string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	path := Path(dir, name)

	opts := badger.DefaultOptions(path).
		WithLogger(newLogger(log.WithGroup("badger"))).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("idflow/prefs: open %q: %w", path, err)
	}

	log.Debug("Opened preferences", "path", path)
	return &Store{db: db, log: log}, nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("idflow/prefs: get %q: %w", key, err)
	}
	return out, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("idflow/prefs: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("idflow/prefs: delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("idflow/prefs: close: %w", err)
	}
	return nil
}
