package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

// Reader reads committed values. It returns ErrNotFound for absent keys.
type Reader func(key []byte) ([]byte, error)

// Overlay buffers writes on top of a Reader and tracks the resulting
// footprint. Backends embed it to implement Tx.
type Overlay struct {
	read     Reader
	writes   map[string][]byte
	deleted  map[string]struct{}
	base     map[string]committed
	usage    uint64
	overhead uint64
	reserved func(key []byte) bool
	closed   bool
}

// NewOverlay starts an overlay over read whose committed footprint is usage.
// reserved may be nil.
func NewOverlay(read Reader, usage, overhead uint64, reserved func([]byte) bool) *Overlay {
	return &Overlay{
		read:     read,
		writes:   make(map[string][]byte),
		deleted:  make(map[string]struct{}),
		base:     make(map[string]committed),
		usage:    usage,
		overhead: overhead,
		reserved: reserved,
	}
}

// Get returns the value visible to the transaction.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	if o.closed {
		return nil, ErrTxClosed
	}
	v, ok, err := o.lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Has reports whether key is visible to the transaction.
func (o *Overlay) Has(key []byte) (bool, error) {
	if o.closed {
		return false, ErrTxClosed
	}
	_, ok, err := o.lookup(key)
	return ok, err
}

// Put stages a write.
func (o *Overlay) Put(key, value []byte) error {
	if err := o.checkWrite(key); err != nil {
		return err
	}
	old, ok, err := o.lookup(key)
	if err != nil {
		return err
	}
	if ok {
		o.usage -= Footprint(key, old, o.overhead)
	}
	v := make([]byte, len(value))
	copy(v, value)
	k := string(key)
	o.writes[k] = v
	delete(o.deleted, k)
	o.usage += Footprint(key, v, o.overhead)
	return nil
}

// Delete stages a removal. Deleting an absent key is a no-op.
func (o *Overlay) Delete(key []byte) error {
	if err := o.checkWrite(key); err != nil {
		return err
	}
	old, ok, err := o.lookup(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	o.usage -= Footprint(key, old, o.overhead)
	k := string(key)
	delete(o.writes, k)
	o.deleted[k] = struct{}{}
	return nil
}

// StorageUsage returns the footprint including staged writes.
func (o *Overlay) StorageUsage() uint64 { return o.usage }

// Closed reports whether the overlay was committed or discarded.
func (o *Overlay) Closed() bool { return o.closed }

// Close marks the overlay finished. Later calls fail with ErrTxClosed.
func (o *Overlay) Close() { o.closed = true }

// Each calls fn for every staged change in key order. value is nil for
// deletions.
func (o *Overlay) Each(fn func(key, value []byte, deleted bool)) {
	keys := make([]string, 0, len(o.writes)+len(o.deleted))
	for k := range o.writes {
		keys = append(keys, k)
	}
	for k := range o.deleted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := o.writes[k]; ok {
			fn([]byte(k), v, false)
			continue
		}
		fn([]byte(k), nil, true)
	}
}

// Validate checks that every staged key still holds, according to read, the
// committed value the overlay charged its change against. Backends call it
// under their commit lock; a mismatch means another transaction committed
// the key first and the footprint delta would no longer be exact.
func (o *Overlay) Validate(read Reader) error {
	var err error
	o.Each(func(key, _ []byte, _ bool) {
		if err != nil {
			return
		}
		seen := o.base[string(key)]
		cur, rerr := read(key)
		switch {
		case errors.Is(rerr, ErrNotFound):
			if seen.exists {
				err = fmt.Errorf("%w: %q was removed", ErrConflict, key)
			}
		case rerr != nil:
			err = rerr
		case !seen.exists || !bytes.Equal(cur, seen.value):
			err = fmt.Errorf("%w: %q was rewritten", ErrConflict, key)
		}
	})
	return err
}

// committed is the value a key held when the overlay last read it.
type committed struct {
	value  []byte
	exists bool
}

func (o *Overlay) checkWrite(key []byte) error {
	if o.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if o.reserved != nil && o.reserved(key) {
		return ErrReservedKey
	}
	return nil
}

func (o *Overlay) lookup(key []byte) ([]byte, bool, error) {
	k := string(key)
	if v, ok := o.writes[k]; ok {
		return v, true, nil
	}
	if _, ok := o.deleted[k]; ok {
		return nil, false, nil
	}
	v, err := o.read(key)
	if errors.Is(err, ErrNotFound) {
		o.remember(k, nil, false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	o.remember(k, v, true)
	return v, true, nil
}

// remember records the latest committed read of an unstaged key, which is
// what a following write is charged against.
func (o *Overlay) remember(k string, v []byte, exists bool) {
	o.base[k] = committed{value: append([]byte(nil), v...), exists: exists}
}
