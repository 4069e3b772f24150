// Package store provides the durable record store: string-keyed logical
// tables persisted in a single Pebble database. Writes are serialized by
// Pebble's batch commit; Scan reads from a snapshot so a reconcile tick
// sees a consistent view of a table.
package store

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Get when no record exists under the key.
// Callers must distinguish it from decode failures (see the codec package).
var ErrNotFound = errors.New("store: record not found")

// Table names a logical table. Table names must not contain '/'.
type Table string

// Store wraps a Pebble database with table-prefixed keys.
type Store struct {
	db    *pebble.DB
	locks keyLocks
}

// Entry is one scanned record.
type Entry struct {
	Key   string
	Value []byte
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	slog.Info("record store opened", slog.String("path", path))
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ready reports whether the store is open.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

func recordKey(table Table, key string) []byte {
	return []byte(string(table) + "/" + key)
}

// Get returns the value stored under (table, key), or ErrNotFound.
func (s *Store) Get(table Table, key string) ([]byte, error) {
	v, closer, err := s.db.Get(recordKey(table, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", table, key, err)
	}
	out := make([]byte, len(v))
	copy(out, v)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// Scan returns every record in the table, read from one snapshot.
func (s *Store) Scan(table Table) ([]Entry, error) {
	snap := s.db.NewSnapshot()
	defer func() {
		if err := snap.Close(); err != nil {
			slog.Warn("failed to close snapshot", slog.Any("err", err))
		}
	}()

	prefix := string(table) + "/"
	iter, err := snap.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(string(table) + "0"), // '0' is '/'+1
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	defer func() {
		if err := iter.Close(); err != nil {
			slog.Warn("failed to close iterator", slog.Any("err", err))
		}
	}()

	var out []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		out = append(out, Entry{Key: string(iter.Key())[len(prefix):], Value: v})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return out, nil
}

// Put stores value under (table, key), replacing any prior value.
func (s *Store) Put(table Table, key string, value []byte) error {
	if err := s.db.Set(recordKey(table, key), value, pebble.Sync); err != nil {
		return fmt.Errorf("put %s/%s: %w", table, key, err)
	}
	return nil
}

// Delete removes the record under (table, key). Deleting a missing key is
// not an error.
func (s *Store) Delete(table Table, key string) error {
	if err := s.db.Delete(recordKey(table, key), pebble.Sync); err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, key, err)
	}
	return nil
}

// Update performs an atomic read-modify-write of one record. fn receives
// the current value (nil, found=false when absent) and returns the new
// value; returning nil deletes the record. The per-key lock serializes
// concurrent handlers racing on the same entity.
func (s *Store) Update(table Table, key string, fn func(old []byte, found bool) ([]byte, error)) error {
	unlock := s.locks.lock(string(table) + "/" + key)
	defer unlock()

	b := s.db.NewIndexedBatch()
	defer func() {
		if err := b.Close(); err != nil {
			slog.Warn("failed to close batch", slog.Any("err", err))
		}
	}()

	k := recordKey(table, key)
	var old []byte
	found := false
	v, closer, err := b.Get(k)
	switch {
	case err == nil:
		old = make([]byte, len(v))
		copy(old, v)
		found = true
		if err := closer.Close(); err != nil {
			return err
		}
	case errors.Is(err, pebble.ErrNotFound):
		// absent
	default:
		return fmt.Errorf("update read %s/%s: %w", table, key, err)
	}

	next, err := fn(old, found)
	if err != nil {
		return err
	}
	if next == nil {
		if err := b.Delete(k, nil); err != nil {
			return fmt.Errorf("update delete %s/%s: %w", table, key, err)
		}
	} else {
		if err := b.Set(k, next, nil); err != nil {
			return fmt.Errorf("update set %s/%s: %w", table, key, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("update commit %s/%s: %w", table, key, err)
	}
	return nil
}

// Lock acquires the in-process lock for (table, key) and returns the
// release func. Used by handlers whose read-decide-write spans more than
// one store call. Update takes the same lock, so holding this across an
// Update of the same key deadlocks; pair it with Get/Put/Delete only.
func (s *Store) Lock(table Table, key string) func() {
	return s.locks.lock(string(table) + "/" + key)
}
