// Package meter measures how many bytes of persistent state an operation
// allocates or frees.
//
// A Meter is started against a Gauge, the operation mutates the store the
// gauge observes, and Stop folds the observed difference into BytesAdded or
// BytesReleased. The counters accumulate across scopes until Reset.
package meter

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a meter that is measuring.
	ErrAlreadyStarted = errors.New("meter: already started")
	// ErrNotStarted is returned by Stop on a meter that is not measuring.
	ErrNotStarted = errors.New("meter: not started")
)

// Gauge reports the total bytes currently consumed by a persistent store.
type Gauge interface {
	StorageUsage() uint64
}

// GaugeFunc adapts a plain function to a Gauge.
type GaugeFunc func() uint64

// StorageUsage implements Gauge.
func (f GaugeFunc) StorageUsage() uint64 { return f() }

// Meter accumulates byte deltas across measurement scopes.
//
// The zero value is ready to use. A Meter is never persisted; records that
// embed one must exclude it from serialization.
type Meter struct {
	BytesAdded    uint64 `json:"-" bson:"-"`
	BytesReleased uint64 `json:"-" bson:"-"`

	gauge    Gauge
	baseline uint64
}

// Start records the gauge's current usage as the baseline.
func (m *Meter) Start(g Gauge) error {
	if m.gauge != nil {
		return ErrAlreadyStarted
	}
	m.gauge = g
	m.baseline = g.StorageUsage()
	return nil
}

// Stop compares the gauge's usage against the baseline and records the
// difference.
func (m *Meter) Stop() error {
	if m.gauge == nil {
		return ErrNotStarted
	}
	current := m.gauge.StorageUsage()
	switch {
	case current > m.baseline:
		m.BytesAdded += current - m.baseline
	case current < m.baseline:
		m.BytesReleased += m.baseline - current
	}
	m.gauge = nil
	m.baseline = 0
	return nil
}

// Started reports whether a scope is open.
func (m *Meter) Started() bool { return m.gauge != nil }

// Reset zeroes the counters. An open scope stays open.
func (m *Meter) Reset() {
	m.BytesAdded = 0
	m.BytesReleased = 0
}

// Net returns the net number of bytes added and released since the last
// Reset. At most one of the two results is non-zero.
func (m *Meter) Net() (added, released uint64) {
	if m.BytesAdded >= m.BytesReleased {
		return m.BytesAdded - m.BytesReleased, 0
	}
	return 0, m.BytesReleased - m.BytesAdded
}
