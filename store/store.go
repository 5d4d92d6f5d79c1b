// Package store defines the persistence contract for ledger entries.
package store

import (
	"context"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/transfer"
)

// Store is the unified storage interface for Escrow ledger entries.
type Store interface {
	account.Store
	transfer.Store

	// Migrate creates the tables, collections or indexes the backend needs.
	Migrate(ctx context.Context) error
	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
	// Close releases the backend.
	Close() error
}
