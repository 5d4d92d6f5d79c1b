// Package plugin provides an extensible plugin system for Escrow.
// Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/transfer"
	"github.com/xraph/escrow/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. e is the *escrow.Escrow.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, e interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger entry hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered is called after a new entry is persisted.
type OnAccountRegistered interface {
	Plugin
	OnAccountRegistered(ctx context.Context, acct *account.Account) error
}

// OnDeposit is called after a deposit is persisted.
type OnDeposit interface {
	Plugin
	OnDeposit(ctx context.Context, acct *account.Account, amount types.Balance) error
}

// OnWithdraw is called after a withdrawal is persisted and paid.
type OnWithdraw interface {
	Plugin
	OnWithdraw(ctx context.Context, acct *account.Account, amount types.Balance) error
}

// OnUnregister is called after an entry is removed. orphaned is the number of
// committed bytes abandoned by a forced unregister.
type OnUnregister interface {
	Plugin
	OnUnregister(ctx context.Context, principal string, orphaned uint64) error
}

// ──────────────────────────────────────────────────
// Metering hooks
// ──────────────────────────────────────────────────

// OnUsageReconciled is called after a measured scope is folded into an entry.
type OnUsageReconciled interface {
	Plugin
	OnUsageReconciled(ctx context.Context, acct *account.Account, added, released uint64) error
}

// OnStorageNotCovered is called when growth is rejected for lack of collateral.
type OnStorageNotCovered interface {
	Plugin
	OnStorageNotCovered(ctx context.Context, principal string, required, balance types.Balance) error
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransfer is called after value leaves escrow.
type OnTransfer interface {
	Plugin
	OnTransfer(ctx context.Context, t *transfer.Transfer) error
}

// ──────────────────────────────────────────────────
// Provider plugins
// ──────────────────────────────────────────────────

// PayerPlugin moves refunds and withdrawals to principals. The first one
// registered is used when the engine has no explicit payer.
type PayerPlugin interface {
	Plugin
	transfer.Payer
}
