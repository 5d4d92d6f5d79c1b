package transfer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/transfer"
	"github.com/xraph/escrow/types"
)

func TestNew(t *testing.T) {
	tr := transfer.New("alice", types.NewBalance(500), transfer.KindRefund)

	assert.Equal(t, id.PrefixTransfer, tr.ID.Prefix())
	assert.Equal(t, "alice", tr.To)
	assert.Equal(t, "500", tr.Amount.String())
	assert.False(t, tr.CreatedAt.IsZero())
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	r := transfer.NewRecorder()

	require.NoError(t, r.Pay(ctx, transfer.New("alice", types.NewBalance(500), transfer.KindRefund)))
	require.NoError(t, r.Pay(ctx, transfer.New("bob", types.NewBalance(7), transfer.KindWithdrawal)))
	require.NoError(t, r.Pay(ctx, transfer.New("alice", types.NewBalance(25), transfer.KindUnregister)))

	got := r.Transfers()
	require.Len(t, got, 3)
	assert.Equal(t, transfer.KindWithdrawal, got[1].Kind)
	total, err := r.TotalTo("alice")
	require.NoError(t, err)
	assert.Equal(t, "525", total.String())
	total, err = r.TotalTo("nobody")
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	r.Reset()
	assert.Empty(t, r.Transfers())
}

func TestRecorderTotalOverflow(t *testing.T) {
	ctx := context.Background()
	r := transfer.NewRecorder()

	require.NoError(t, r.Pay(ctx, transfer.New("alice", types.MaxBalance(), transfer.KindWithdrawal)))
	require.NoError(t, r.Pay(ctx, transfer.New("alice", types.NewBalance(1), transfer.KindRefund)))

	_, err := r.TotalTo("alice")
	assert.Error(t, err)
}

func TestPayerFunc(t *testing.T) {
	boom := errors.New("boom")
	var p transfer.Payer = transfer.PayerFunc(func(context.Context, *transfer.Transfer) error { return boom })

	err := p.Pay(context.Background(), transfer.New("x", types.NewBalance(1), transfer.KindRefund))
	assert.ErrorIs(t, err, boom)
}
