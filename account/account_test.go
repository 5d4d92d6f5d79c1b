package account_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/types"
)

var cost100 = types.NewBalance(100)

func withDelta(a *account.Account, added, released uint64) *account.Account {
	a.Meter.BytesAdded = added
	a.Meter.BytesReleased = released
	return a
}

func TestReconcileGrowthCovered(t *testing.T) {
	a := withDelta(account.New("alice.near", types.NewBalance(1_000_000)), 5000, 0)

	require.NoError(t, a.Reconcile(cost100))
	assert.Equal(t, uint64(5000), a.UsedBytes)
	assert.Zero(t, a.Meter.BytesAdded)
	assert.Zero(t, a.Meter.BytesReleased)

	available, err := a.Available(cost100)
	require.NoError(t, err)
	assert.Equal(t, "500000", available.String())
}

func TestReconcileGrowthNotCoveredLeavesEntryUntouched(t *testing.T) {
	a := account.New("alice.near", types.NewBalance(1_000_000))
	a.UsedBytes = 5000
	withDelta(a, 6000, 0)

	err := a.Reconcile(cost100)
	require.ErrorIs(t, err, account.ErrStorageNotCovered)
	assert.Equal(t, uint64(5000), a.UsedBytes)
	assert.Equal(t, "1000000", a.StorageBalance.String())
	assert.Equal(t, uint64(6000), a.Meter.BytesAdded)
}

func TestReconcileExactCoverage(t *testing.T) {
	a := withDelta(account.New("bob", types.NewBalance(1_000_000)), 10_000, 0)

	require.NoError(t, a.Reconcile(cost100))
	available, err := a.Available(cost100)
	require.NoError(t, err)
	assert.True(t, available.IsZero())
}

func TestReconcileRelease(t *testing.T) {
	tests := []struct {
		name     string
		used     uint64
		added    uint64
		released uint64
		want     uint64
		err      error
	}{
		{"partial release", 5000, 0, 1200, 3800, nil},
		{"release everything", 5000, 0, 5000, 0, nil},
		{"release offset by growth", 5000, 300, 800, 4500, nil},
		{"release beyond committed", 1000, 0, 1001, 1000, account.ErrInternalAccounting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := account.New("carol", types.NewBalance(1_000_000))
			a.UsedBytes = tt.used
			withDelta(a, tt.added, tt.released)

			err := a.Reconcile(cost100)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, a.UsedBytes)
		})
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	a := withDelta(account.New("dave", types.NewBalance(1_000_000)), 700, 200)

	require.NoError(t, a.Reconcile(cost100))
	used, balance := a.UsedBytes, a.StorageBalance

	require.NoError(t, a.Reconcile(cost100))
	assert.Equal(t, used, a.UsedBytes)
	assert.True(t, balance.Equal(a.StorageBalance))
}

func TestReconcileZeroDelta(t *testing.T) {
	a := account.New("erin", types.NewBalance(10))
	a.UsedBytes = 3

	require.NoError(t, a.Reconcile(types.NewBalance(1)))
	assert.Equal(t, uint64(3), a.UsedBytes)
}

func TestAvailableDetectsBrokenInvariant(t *testing.T) {
	a := account.New("frank", types.NewBalance(100))
	a.UsedBytes = 2

	_, err := a.Available(cost100)
	require.ErrorIs(t, err, account.ErrInternalAccounting)
}

func TestCoversOverflowIsNotCovered(t *testing.T) {
	assert.False(t, account.Covers(types.MaxBalance(), ^uint64(0), types.MaxBalance()))
	assert.True(t, account.Covers(types.NewBalance(0), 0, types.MaxBalance()))
}

func TestCloneDropsMeter(t *testing.T) {
	a := withDelta(account.New("gina", types.NewBalance(5)), 3, 0)
	c := a.Clone()

	assert.Equal(t, a.Principal, c.Principal)
	assert.Zero(t, c.Meter.BytesAdded)
	assert.Equal(t, uint64(3), a.Meter.BytesAdded)
}
