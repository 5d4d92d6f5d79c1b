// Package account defines the per-principal storage ledger entry and the
// reconciliation rule that keeps it collateralized.
package account

import (
	"errors"
	"fmt"

	"github.com/xraph/escrow/meter"
	"github.com/xraph/escrow/types"
)

var (
	// ErrStorageNotCovered means the escrowed balance cannot pay for the
	// committed bytes at the current byte cost.
	ErrStorageNotCovered = errors.New("escrow: storage balance does not cover used bytes")

	// ErrInternalAccounting means a release would drive used bytes below
	// zero. It indicates a bookkeeping bug, never bad input.
	ErrInternalAccounting = errors.New("escrow: internal storage accounting error")
)

// Account is the ledger entry for one principal.
type Account struct {
	Principal      string        `json:"principal"`
	StorageBalance types.Balance `json:"storage_balance"`
	UsedBytes      uint64        `json:"used_bytes"`

	// Meter tracks bytes touched by the current operation. It is never
	// persisted and is always zero on load.
	Meter meter.Meter `json:"-" bson:"-"`

	types.Entity
}

// New creates an empty entry for principal with the given balance.
func New(principal string, balance types.Balance) *Account {
	return &Account{
		Principal:      principal,
		StorageBalance: balance,
		Entity:         types.NewEntity(),
	}
}

// Clone returns a copy of the entry with a fresh meter.
func (a *Account) Clone() *Account {
	c := *a
	c.Meter = meter.Meter{}
	return &c
}

// StorageCost returns UsedBytes priced at byteCost.
func (a *Account) StorageCost(byteCost types.Balance) (types.Balance, error) {
	return byteCost.MulBytes(a.UsedBytes)
}

// Covers reports whether balance pays for usedBytes at byteCost.
func Covers(balance types.Balance, usedBytes uint64, byteCost types.Balance) bool {
	cost, err := byteCost.MulBytes(usedBytes)
	if err != nil {
		// Cost exceeds 128 bits, so no balance can cover it.
		return false
	}
	return !cost.GreaterThan(balance)
}

// Available returns the part of the balance not locked by committed usage.
func (a *Account) Available(byteCost types.Balance) (types.Balance, error) {
	cost, err := a.StorageCost(byteCost)
	if err != nil {
		return types.Balance{}, fmt.Errorf("%w: storage cost of %d bytes overflows", ErrInternalAccounting, a.UsedBytes)
	}
	available, err := a.StorageBalance.Sub(cost)
	if err != nil {
		return types.Balance{}, fmt.Errorf("%w: balance %s below storage cost %s for %q",
			ErrInternalAccounting, a.StorageBalance, cost, a.Principal)
	}
	return available, nil
}

// Reconcile folds the meter's counters into UsedBytes and resets the meter.
//
// Growth must stay covered by the balance (ErrStorageNotCovered); a release
// larger than UsedBytes is ErrInternalAccounting. On error the entry is left
// exactly as it was.
func (a *Account) Reconcile(byteCost types.Balance) error {
	added, released := a.Meter.Net()
	used := a.UsedBytes

	switch {
	case added > 0:
		if used > ^uint64(0)-added {
			return fmt.Errorf("%w: used bytes overflow for %q", ErrStorageNotCovered, a.Principal)
		}
		used += added
		if !Covers(a.StorageBalance, used, byteCost) {
			return fmt.Errorf("%w: %q needs %d bytes at %s per byte, balance %s",
				ErrStorageNotCovered, a.Principal, used, byteCost, a.StorageBalance)
		}
	case released > 0:
		if used < released {
			return fmt.Errorf("%w: %q releases %d bytes but has %d committed",
				ErrInternalAccounting, a.Principal, released, used)
		}
		used -= released
	}

	a.UsedBytes = used
	a.Meter.Reset()
	return nil
}

// StorageBalance is the externally visible balance pair of an entry.
type StorageBalance struct {
	Total     types.Balance `json:"total"`
	Available types.Balance `json:"available"`
}

// Bounds describes the escrow limits every principal is held to. Max is nil
// because escrow has no upper limit.
type Bounds struct {
	Min types.Balance  `json:"min"`
	Max *types.Balance `json:"max"`
}
