// Package state provides the metered key-value store that domain operations
// write to while a measurement scope is open.
//
// Every store reports its total footprint in bytes. A transaction reports the
// footprint the store would have if it were committed, which is what a meter
// observes while the scope runs.
package state

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get for absent keys.
	ErrNotFound = errors.New("state: key not found")
	// ErrTxClosed is returned by operations on a committed or discarded transaction.
	ErrTxClosed = errors.New("state: transaction closed")
	// ErrReservedKey is returned when writing a key the store uses internally.
	ErrReservedKey = errors.New("state: reserved key")
	// ErrEmptyKey is returned for zero-length keys.
	ErrEmptyKey = errors.New("state: empty key")
	// ErrConflict is returned by Commit when another transaction committed
	// one of the staged keys after this transaction read it.
	ErrConflict = errors.New("state: conflicting write")
)

// DefaultRecordOverhead is the per-record byte charge added to the raw key
// and value sizes.
const DefaultRecordOverhead uint64 = 40

// Store is a byte-metered key-value store.
type Store interface {
	// Begin opens a transaction. Writes stay private to it until Commit.
	Begin(ctx context.Context) (Tx, error)

	// StorageUsage returns the committed footprint in bytes.
	StorageUsage() uint64

	// Close releases the store.
	Close() error
}

// Tx is a pending set of writes against a Store. It satisfies meter.Gauge.
type Tx interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// StorageUsage returns the footprint the store would have after Commit.
	StorageUsage() uint64

	Commit() error
	Discard()
}

// Footprint returns the bytes charged for one record.
func Footprint(key, value []byte, overhead uint64) uint64 {
	return uint64(len(key)) + uint64(len(value)) + overhead
}
