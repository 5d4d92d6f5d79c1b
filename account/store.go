package account

import "context"

// Store persists ledger entries keyed by principal.
//
// Implementations return escrow.ErrNotFound for absent principals and must
// never persist the entry's Meter.
type Store interface {
	// GetAccount returns the entry for principal.
	GetAccount(ctx context.Context, principal string) (*Account, error)

	// PutAccount inserts or replaces the entry for a.Principal.
	PutAccount(ctx context.Context, a *Account) error

	// DeleteAccount removes the entry for principal.
	DeleteAccount(ctx context.Context, principal string) error
}
