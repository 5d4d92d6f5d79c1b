// Package redis provides a store.Store backed by Redis.
//
// Each ledger entry is a JSON document under its own key. Transfers are kept
// in a per-principal list with the newest entry at the head.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	escrowstore "github.com/xraph/escrow/store"
	"github.com/xraph/escrow/transfer"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "escrow"

// compile-time interface check
var _ escrowstore.Store = (*Store)(nil)

// Store implements store.Store on a go-redis client.
type Store struct {
	client *redis.Client
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New wraps an existing client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dial connects to the Redis server at addr.
func Dial(addr, password string, db int, opts ...Option) *Store {
	return New(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
}

// Client returns the underlying client for direct access.
func (s *Store) Client() *redis.Client { return s.client }

// Migrate is a no-op: Redis needs no schema.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks server connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, principal string) (*account.Account, error) {
	raw, err := s.client.Get(ctx, s.accountKey(principal)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, escrow.ErrNotFound
		}
		return nil, fmt.Errorf("escrow/redis: get account: %w", err)
	}
	a := new(account.Account)
	if err := json.Unmarshal(raw, a); err != nil {
		return nil, fmt.Errorf("escrow/redis: decode account %q: %w", principal, err)
	}
	return a, nil
}

func (s *Store) PutAccount(ctx context.Context, a *account.Account) error {
	cp := a.Clone()
	cp.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("escrow/redis: encode account: %w", err)
	}
	if err := s.client.Set(ctx, s.accountKey(a.Principal), raw, 0).Err(); err != nil {
		return fmt.Errorf("escrow/redis: put account: %w", err)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, principal string) error {
	n, err := s.client.Del(ctx, s.accountKey(principal)).Result()
	if err != nil {
		return fmt.Errorf("escrow/redis: delete account: %w", err)
	}
	if n == 0 {
		return escrow.ErrNotFound
	}
	return nil
}

// ==================== Transfer Store ====================

func (s *Store) RecordTransfer(ctx context.Context, t *transfer.Transfer) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("escrow/redis: encode transfer: %w", err)
	}
	if err := s.client.LPush(ctx, s.transferKey(t.To), raw).Err(); err != nil {
		return fmt.Errorf("escrow/redis: record transfer: %w", err)
	}
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, principal string, limit int) ([]*transfer.Transfer, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	items, err := s.client.LRange(ctx, s.transferKey(principal), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("escrow/redis: list transfers: %w", err)
	}

	result := make([]*transfer.Transfer, len(items))
	for i, item := range items {
		t := new(transfer.Transfer)
		if err := json.Unmarshal([]byte(item), t); err != nil {
			return nil, fmt.Errorf("escrow/redis: decode transfer: %w", err)
		}
		result[i] = t
	}
	return result, nil
}

// ==================== Helpers ====================

func (s *Store) accountKey(principal string) string {
	return s.prefix + ":account:" + principal
}

func (s *Store) transferKey(principal string) string {
	return s.prefix + ":transfers:" + principal
}
