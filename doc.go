// Package escrow provides per-principal storage-rent accounting for Go
// applications.
//
// Every principal escrows a balance that must always pay for the bytes of
// persistent state it owns. Operations that write state run inside a
// measurement scope: the scope meters how many bytes the operation allocated
// or freed, folds the difference into the principal's committed usage, and
// refuses to commit when the balance no longer covers it.
//
// Escrow is a library, not a service. It provides:
//
//   - Byte metering of any state store that reports its footprint
//   - A ledger entry per principal with a strict collateral invariant
//   - Deposit, withdraw, register and unregister with refunds
//   - Pluggable ledger stores (memory, SQLite, PostgreSQL, MongoDB, Redis)
//   - Metered state stores (memory, LevelDB)
//   - Plugin hooks for metrics and audit trails
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/escrow"
//	    "github.com/xraph/escrow/store/memory"
//	)
//
//	e := escrow.New(memory.New())
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
//	bounds, _ := e.BalanceBounds(ctx)
//	_, err := e.Deposit(ctx, escrow.DepositInput{
//	    Caller:   "alice",
//	    Attached: bounds.Min,
//	})
//
// # Measuring an operation
//
// Writes made through the scope's transaction are charged to the principal:
//
//	err := e.Measure(ctx, "alice", func(tx state.Tx) error {
//	    return tx.Put([]byte("games/1"), record)
//	})
//	if errors.Is(err, escrow.ErrStorageNotCovered) {
//	    // deposit more and retry
//	}
//
// When the principal's balance cannot cover the new usage, nothing is
// committed: neither the state writes nor the ledger entry.
//
// # Amounts
//
// Balances are unsigned 128-bit integers in the smallest unit. The byte
// price comes from a PriceFunc and is read on every use, so the minimum
// balance returned by BalanceBounds follows price changes.
//
// # TypeID
//
// Transfers, scopes and audit events use TypeID identifiers:
//
//	xfer_01h2xcejqtf2nbrexx3vqjhp41   // Transfer ID
//	scope_01h2xcejqtf2nbrexx3vqjhp41  // Scope ID
package escrow
