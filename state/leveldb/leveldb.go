// Package leveldb provides a state.Store backed by goleveldb.
//
// Staged writes are flushed with a single leveldb.Batch on Commit. The
// committed footprint is stored in the database under a reserved key so it
// survives restarts.
package leveldb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/xraph/escrow/state"
)

// compile-time interface check
var _ state.Store = (*Store)(nil)

// metaPrefix marks keys owned by the store itself.
var metaPrefix = []byte{0x00, 'm', 'e', 't', 'a', '/'}

var usageKey = append(append([]byte{}, metaPrefix...), "usage"...)

// Store meters a goleveldb database.
type Store struct {
	mu       sync.Mutex
	db       *leveldb.DB
	usage    uint64
	overhead uint64
	sync     bool
}

// Option configures a Store.
type Option func(*Store)

// WithRecordOverhead sets the per-record byte charge.
func WithRecordOverhead(n uint64) Option {
	return func(s *Store) { s.overhead = n }
}

// WithSync makes every commit fsync before returning.
func WithSync(enabled bool) Option {
	return func(s *Store) { s.sync = enabled }
}

// Open opens or creates a database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("escrow/leveldb: open %s: %w", path, err)
	}
	s, err := New(db, opts...)
	if err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return s, nil
}

// New wraps an open database and loads its recorded footprint.
func New(db *leveldb.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:       db,
		overhead: state.DefaultRecordOverhead,
	}
	for _, o := range opts {
		o(s)
	}

	raw, err := db.Get(usageKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("escrow/leveldb: load usage: %w", err)
	case len(raw) != 8:
		return nil, fmt.Errorf("escrow/leveldb: corrupt usage record (%d bytes)", len(raw))
	default:
		s.usage = binary.BigEndian.Uint64(raw)
	}
	return s, nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *leveldb.DB { return s.db }

// Begin implements state.Store.
func (s *Store) Begin(_ context.Context) (state.Tx, error) {
	s.mu.Lock()
	usage := s.usage
	s.mu.Unlock()
	return &tx{
		Overlay: state.NewOverlay(s.get, usage, s.overhead, isReserved),
		store:   s,
		base:    usage,
	}, nil
}

// StorageUsage implements state.Store.
func (s *Store) StorageUsage() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Close implements state.Store.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, state.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("escrow/leveldb: get: %w", err)
	}
	return v, nil
}

func isReserved(key []byte) bool { return bytes.HasPrefix(key, metaPrefix) }

type tx struct {
	*state.Overlay
	store *Store
	base  uint64
}

func (t *tx) Commit() error {
	if t.Closed() {
		return state.ErrTxClosed
	}
	defer t.Close()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if err := t.Validate(t.store.get); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	t.Each(func(key, value []byte, deleted bool) {
		if deleted {
			batch.Delete(key)
			return
		}
		batch.Put(key, value)
	})

	usage := t.store.usage
	if after := t.StorageUsage(); after >= t.base {
		usage += after - t.base
	} else {
		usage -= t.base - after
	}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], usage)
	batch.Put(usageKey, raw[:])

	if err := t.store.db.Write(batch, &opt.WriteOptions{Sync: t.store.sync}); err != nil {
		return fmt.Errorf("escrow/leveldb: commit: %w", err)
	}
	t.store.usage = usage
	return nil
}

func (t *tx) Discard() { t.Close() }
