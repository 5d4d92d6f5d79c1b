// Package memory provides an in-process store.Store, used as the default
// backend and in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/transfer"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps ledger entries in a map. Entries are copied on the way in and
// out so callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]*account.Account
	transfers []*transfer.Transfer
	closed    bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*account.Account),
	}
}

func (s *Store) GetAccount(_ context.Context, principal string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, escrow.ErrStoreClosed
	}
	a, ok := s.accounts[principal]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) PutAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	s.accounts[a.Principal] = a.Clone()
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	if _, ok := s.accounts[principal]; !ok {
		return escrow.ErrNotFound
	}
	delete(s.accounts, principal)
	return nil
}

func (s *Store) RecordTransfer(_ context.Context, t *transfer.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	cp := *t
	s.transfers = append(s.transfers, &cp)
	return nil
}

func (s *Store) ListTransfers(_ context.Context, principal string, limit int) ([]*transfer.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, escrow.ErrStoreClosed
	}
	result := make([]*transfer.Transfer, 0)
	for i := len(s.transfers) - 1; i >= 0; i-- {
		t := s.transfers[i]
		if t.To != principal {
			continue
		}
		cp := *t
		result = append(result, &cp)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Principals returns every registered principal in sorted order.
func (s *Store) Principals() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.accounts))
	for p := range s.accounts {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return escrow.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
