// Package storetest holds the behavior every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/transfer"
	"github.com/xraph/escrow/types"
)

// Factory returns a fresh, empty, migrated store.
type Factory func(t *testing.T) store.Store

// Run exercises a backend against the shared contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("get missing account", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetAccount(context.Background(), "nobody")
		assert.True(t, errors.Is(err, escrow.ErrNotFound), "got %v", err)
	})

	t.Run("put then get", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		a := account.New("alice", types.MustParseBalance("340282366920938463463374607431768211455"))
		a.UsedBytes = 1234
		require.NoError(t, s.PutAccount(ctx, a))

		got, err := s.GetAccount(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Principal)
		assert.True(t, got.StorageBalance.Equal(a.StorageBalance))
		assert.Equal(t, uint64(1234), got.UsedBytes)
		assert.Zero(t, got.Meter.BytesAdded)
		assert.Zero(t, got.Meter.BytesReleased)
	})

	t.Run("put overwrites", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		a := account.New("bob", types.NewBalance(100))
		require.NoError(t, s.PutAccount(ctx, a))

		a.StorageBalance = types.NewBalance(250)
		a.UsedBytes = 7
		require.NoError(t, s.PutAccount(ctx, a))

		got, err := s.GetAccount(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "250", got.StorageBalance.String())
		assert.Equal(t, uint64(7), got.UsedBytes)
	})

	t.Run("caller mutations do not leak", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		a := account.New("carol", types.NewBalance(10))
		require.NoError(t, s.PutAccount(ctx, a))
		a.UsedBytes = 99

		got, err := s.GetAccount(ctx, "carol")
		require.NoError(t, err)
		assert.Zero(t, got.UsedBytes)
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.PutAccount(ctx, account.New("dave", types.NewBalance(1))))
		require.NoError(t, s.DeleteAccount(ctx, "dave"))

		_, err := s.GetAccount(ctx, "dave")
		assert.True(t, errors.Is(err, escrow.ErrNotFound))

		err = s.DeleteAccount(ctx, "dave")
		assert.True(t, errors.Is(err, escrow.ErrNotFound))
	})

	t.Run("transfers newest first", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		first := transfer.New("erin", types.NewBalance(1), transfer.KindRefund)
		second := transfer.New("erin", types.NewBalance(2), transfer.KindWithdrawal)
		second.CreatedAt = first.CreatedAt.Add(1)
		other := transfer.New("frank", types.NewBalance(3), transfer.KindUnregister)

		require.NoError(t, s.RecordTransfer(ctx, first))
		require.NoError(t, s.RecordTransfer(ctx, second))
		require.NoError(t, s.RecordTransfer(ctx, other))

		all, err := s.ListTransfers(ctx, "erin", 0)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, second.ID.String(), all[0].ID.String())
		assert.Equal(t, transfer.KindWithdrawal, all[0].Kind)
		assert.Equal(t, "2", all[0].Amount.String())
		assert.Equal(t, first.ID.String(), all[1].ID.String())

		limited, err := s.ListTransfers(ctx, "erin", 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, second.ID.String(), limited[0].ID.String())

		none, err := s.ListTransfers(ctx, "nobody", 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
