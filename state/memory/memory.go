// Package memory provides an in-process state.Store.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/escrow/state"
)

// compile-time interface check
var _ state.Store = (*Store)(nil)

// Store keeps records in a map and meters their footprint.
type Store struct {
	mu       sync.RWMutex
	records  map[string][]byte
	usage    uint64
	overhead uint64
}

// Option configures a Store.
type Option func(*Store)

// WithRecordOverhead sets the per-record byte charge.
func WithRecordOverhead(n uint64) Option {
	return func(s *Store) { s.overhead = n }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		records:  make(map[string][]byte),
		overhead: state.DefaultRecordOverhead,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin implements state.Store.
func (s *Store) Begin(_ context.Context) (state.Tx, error) {
	s.mu.RLock()
	usage := s.usage
	s.mu.RUnlock()
	return &tx{
		Overlay: state.NewOverlay(s.get, usage, s.overhead, nil),
		store:   s,
		base:    usage,
	}, nil
}

// StorageUsage implements state.Store.
func (s *Store) StorageUsage() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements state.Store.
func (s *Store) Close() error { return nil }

func (s *Store) get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key []byte) ([]byte, error) {
	v, ok := s.records[string(key)]
	if !ok {
		return nil, state.ErrNotFound
	}
	return v, nil
}

type tx struct {
	*state.Overlay
	store *Store
	base  uint64
}

func (t *tx) Commit() error {
	if t.Closed() {
		return state.ErrTxClosed
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if err := t.Validate(t.store.getLocked); err != nil {
		t.Close()
		return err
	}
	t.Each(func(key, value []byte, deleted bool) {
		if deleted {
			delete(t.store.records, string(key))
			return
		}
		t.store.records[string(key)] = value
	})
	t.store.usage = applyDelta(t.store.usage, t.base, t.StorageUsage())
	t.Close()
	return nil
}

func (t *tx) Discard() { t.Close() }

// applyDelta moves current by the difference between before and after.
func applyDelta(current, before, after uint64) uint64 {
	if after >= before {
		return current + (after - before)
	}
	return current - (before - after)
}
