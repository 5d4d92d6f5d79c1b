package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/store"
	escrowredis "github.com/xraph/escrow/store/redis"
	"github.com/xraph/escrow/store/storetest"
	"github.com/xraph/escrow/types"
)

func newStore(t *testing.T) (*escrowredis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := escrowredis.Dial(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newStore(t)
		return s
	})
}

func TestKeyLayout(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := escrowredis.Dial(mr.Addr(), "", 0, escrowredis.WithPrefix("test"))
	defer s.Close()

	require.NoError(t, s.PutAccount(ctx, account.New("amy", types.NewBalance(5))))
	assert.True(t, mr.Exists("test:account:amy"))
	assert.False(t, mr.Exists("escrow:account:amy"))
}

func TestPingFailsWhenServerStops(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, s.Ping(context.Background()))
	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
