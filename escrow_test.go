package escrow_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/state"
	statemem "github.com/xraph/escrow/state/memory"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/transfer"
	"github.com/xraph/escrow/types"
)

const (
	testByteCost = 100
	testMinBytes = 2000
	testMin      = testByteCost * testMinBytes // 200,000
)

type harness struct {
	e     *escrow.Escrow
	store *memory.Store
	state *statemem.Store
	payer *transfer.Recorder
	ctx   context.Context
}

func newHarness(t *testing.T, opts ...escrow.Option) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		state: statemem.New(),
		payer: transfer.NewRecorder(),
		ctx:   context.Background(),
	}
	base := []escrow.Option{
		escrow.WithByteCost(types.NewBalance(testByteCost)),
		escrow.WithMinStorageBytes(testMinBytes),
		escrow.WithState(h.state),
		escrow.WithPayer(h.payer),
	}
	h.e = escrow.New(h.store, append(base, opts...)...)
	require.NoError(t, h.e.Start(h.ctx))
	t.Cleanup(func() { _ = h.e.Stop() })
	return h
}

func (h *harness) register(t *testing.T, principal string, amount uint64) {
	t.Helper()
	_, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:   principal,
		Attached: types.NewBalance(amount),
	})
	require.NoError(t, err)
}

func (h *harness) paidTo(t *testing.T, principal string) types.Balance {
	t.Helper()
	total, err := h.payer.TotalTo(principal)
	require.NoError(t, err)
	return total
}

// value returns a value whose record under key costs exactly n bytes.
func value(key string, n int) []byte {
	return bytes.Repeat([]byte("x"), n-len(key)-int(state.DefaultRecordOverhead))
}

func putBytes(key string, n int) func(tx state.Tx) error {
	return func(tx state.Tx) error { return tx.Put([]byte(key), value(key, n)) }
}

func deleteKey(key string) func(tx state.Tx) error {
	return func(tx state.Tx) error { return tx.Delete([]byte(key)) }
}

// ──────────────────────────────────────────────────
// Bounds and balances
// ──────────────────────────────────────────────────

func TestBalanceBounds(t *testing.T) {
	h := newHarness(t)

	bounds, err := h.e.BalanceBounds(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, "200000", bounds.Min.String())
	assert.Nil(t, bounds.Max)
}

func TestBalanceBoundsFollowPrice(t *testing.T) {
	price := types.NewBalance(1)
	h := newHarness(t, escrow.WithPriceFunc(func(context.Context) (types.Balance, error) {
		return price, nil
	}))

	bounds, err := h.e.BalanceBounds(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, "2000", bounds.Min.String())

	price = types.NewBalance(3)
	bounds, err = h.e.BalanceBounds(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, "6000", bounds.Min.String())
}

func TestBalanceBoundsPriceError(t *testing.T) {
	boom := errors.New("oracle down")
	h := newHarness(t, escrow.WithPriceFunc(func(context.Context) (types.Balance, error) {
		return types.Balance{}, boom
	}))

	_, err := h.e.BalanceBounds(h.ctx)
	assert.ErrorIs(t, err, boom)
}

func TestDefaultBounds(t *testing.T) {
	e := escrow.New(memory.New())
	bounds, err := e.BalanceBounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20000000000000000000000", bounds.Min.String())
}

func TestBalanceOfMissing(t *testing.T) {
	h := newHarness(t)

	bal, err := h.e.BalanceOf(h.ctx, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, bal)
}

func TestBalanceOfInvalidPrincipal(t *testing.T) {
	h := newHarness(t)

	_, err := h.e.BalanceOf(h.ctx, "Not Valid")
	assert.ErrorIs(t, err, escrow.ErrInvalidPrincipal)
}

// ──────────────────────────────────────────────────
// Deposit
// ──────────────────────────────────────────────────

func TestDepositBelowMinimum(t *testing.T) {
	h := newHarness(t)

	_, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:   "alice",
		Attached: types.NewBalance(testMin - 1),
	})
	assert.ErrorIs(t, err, escrow.ErrInsufficientDeposit)
	assert.True(t, escrow.IsRejection(err))

	_, err = h.e.GetAccount(h.ctx, "alice")
	assert.True(t, escrow.IsNotFound(err))
}

func TestDepositCreatesEntry(t *testing.T) {
	h := newHarness(t)

	bal, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:   "alice",
		Attached: types.NewBalance(testMin + 500),
	})
	require.NoError(t, err)
	assert.Equal(t, "200500", bal.Total.String())
	assert.Equal(t, "200500", bal.Available.String())
	assert.Empty(t, h.payer.Transfers())

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, acct.UsedBytes)
}

func TestDepositRegistrationOnlyRefundsExcess(t *testing.T) {
	h := newHarness(t)

	bal, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:           "alice",
		Attached:         types.NewBalance(testMin + 500),
		RegistrationOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "200000", bal.Total.String())
	assert.Equal(t, "500", h.paidTo(t, "alice").String())

	transfers := h.payer.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, transfer.KindRefund, transfers[0].Kind)

	logged, err := h.store.ListTransfers(h.ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, transfers[0].ID.String(), logged[0].ID.String())
}

func TestDepositRegistrationOnlyExactMinimum(t *testing.T) {
	h := newHarness(t)

	_, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:           "alice",
		Attached:         types.NewBalance(testMin),
		RegistrationOnly: true,
	})
	require.NoError(t, err)
	assert.Empty(t, h.payer.Transfers())
}

func TestDepositTopUp(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	bal, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:   "alice",
		Attached: types.NewBalance(testMin),
	})
	require.NoError(t, err)
	assert.Equal(t, "400000", bal.Total.String())
}

func TestDepositTopUpBelowMinimum(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	_, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:   "alice",
		Attached: types.NewBalance(1),
	})
	assert.ErrorIs(t, err, escrow.ErrInsufficientDeposit)
}

func TestDepositRegistrationOnlyOnExistingRefundsAll(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	bal, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:           "alice",
		Attached:         types.NewBalance(testMin + 7),
		RegistrationOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "200000", bal.Total.String())
	assert.Equal(t, "200007", h.paidTo(t, "alice").String())
}

func TestDepositForOtherPrincipal(t *testing.T) {
	h := newHarness(t)

	_, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:           "alice",
		AccountID:        "bob",
		Attached:         types.NewBalance(testMin + 10),
		RegistrationOnly: true,
	})
	require.NoError(t, err)

	_, err = h.e.GetAccount(h.ctx, "alice")
	assert.True(t, escrow.IsNotFound(err))

	bob, err := h.e.GetAccount(h.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "200000", bob.StorageBalance.String())
	assert.Equal(t, "10", h.paidTo(t, "alice").String())
	assert.True(t, h.paidTo(t, "bob").IsZero())
}

func TestDepositInvalidPrincipal(t *testing.T) {
	h := newHarness(t)

	for _, in := range []escrow.DepositInput{
		{Caller: "A", Attached: types.NewBalance(testMin)},
		{Caller: "alice", AccountID: "bad..name", Attached: types.NewBalance(testMin)},
		{Caller: "", Attached: types.NewBalance(testMin)},
	} {
		_, err := h.e.Deposit(h.ctx, in)
		assert.ErrorIs(t, err, escrow.ErrInvalidPrincipal)
	}
}

func TestDepositOverflow(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	_, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:   "alice",
		Attached: types.MaxBalance(),
	})
	assert.ErrorIs(t, err, escrow.ErrBalanceOverflow)

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "200000", acct.StorageBalance.String())
}

func TestRegistrationRefundFailureRemovesEntry(t *testing.T) {
	boom := errors.New("payment rail down")
	h := newHarness(t, escrow.WithPayer(transfer.PayerFunc(func(context.Context, *transfer.Transfer) error {
		return boom
	})))

	_, err := h.e.Deposit(h.ctx, escrow.DepositInput{
		Caller:           "alice",
		Attached:         types.NewBalance(testMin + 1),
		RegistrationOnly: true,
	})
	assert.ErrorIs(t, err, escrow.ErrTransferFailed)
	assert.ErrorIs(t, err, boom)

	_, err = h.e.GetAccount(h.ctx, "alice")
	assert.True(t, escrow.IsNotFound(err))

	logged, err := h.store.ListTransfers(h.ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, logged)
}

func TestCreateOrTopUp(t *testing.T) {
	h := newHarness(t)

	acct, err := h.e.CreateOrTopUp(h.ctx, "alice", "bob", types.NewBalance(testMin+5), true)
	require.NoError(t, err)
	assert.Equal(t, "200000", acct.StorageBalance.String())
	assert.Equal(t, "5", h.paidTo(t, "alice").String())

	// registrationOnly is ignored on an existing entry
	acct, err = h.e.CreateOrTopUp(h.ctx, "alice", "bob", types.NewBalance(3), true)
	require.NoError(t, err)
	assert.Equal(t, "200003", acct.StorageBalance.String())
	assert.Equal(t, "5", h.paidTo(t, "alice").String())

	_, err = h.e.CreateOrTopUp(h.ctx, "alice", "carol", types.NewBalance(testMin-1), false)
	assert.ErrorIs(t, err, escrow.ErrInsufficientDeposit)
}

// ──────────────────────────────────────────────────
// Withdraw
// ──────────────────────────────────────────────────

func TestWithdraw(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin+1000)

	bal, err := h.e.Withdraw(h.ctx, "alice", types.NewBalance(400))
	require.NoError(t, err)
	assert.Equal(t, "200600", bal.Total.String())
	assert.Equal(t, "400", h.paidTo(t, "alice").String())

	transfers := h.payer.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, transfer.KindWithdrawal, transfers[0].Kind)
}

func TestWithdrawNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.e.Withdraw(h.ctx, "alice", types.NewBalance(1))
	assert.ErrorIs(t, err, escrow.ErrNotFound)
}

func TestWithdrawMoreThanBalance(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	_, err := h.e.Withdraw(h.ctx, "alice", types.NewBalance(testMin+1))
	assert.ErrorIs(t, err, escrow.ErrInsufficientBalance)
	assert.Empty(t, h.payer.Transfers())
}

func TestWithdrawMustLeaveUsageCovered(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)
	require.NoError(t, h.e.Measure(h.ctx, "alice", putBytes("k", 1000)))

	// 1000 bytes lock 100,000; 100,000 is free.
	_, err := h.e.Withdraw(h.ctx, "alice", types.NewBalance(100_001))
	assert.ErrorIs(t, err, escrow.ErrStorageNotCovered)

	bal, err := h.e.Withdraw(h.ctx, "alice", types.NewBalance(100_000))
	require.NoError(t, err)
	assert.Equal(t, "100000", bal.Total.String())
	assert.True(t, bal.Available.IsZero())
}

func TestWithdrawTransferFailureRestoresBalance(t *testing.T) {
	fail := false
	h := newHarness(t, escrow.WithPayer(transfer.PayerFunc(func(context.Context, *transfer.Transfer) error {
		if fail {
			return errors.New("rejected")
		}
		return nil
	})))
	h.register(t, "alice", testMin+50)

	fail = true
	_, err := h.e.Withdraw(h.ctx, "alice", types.NewBalance(50))
	assert.ErrorIs(t, err, escrow.ErrTransferFailed)

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "200050", acct.StorageBalance.String())
}

// ──────────────────────────────────────────────────
// Unregister
// ──────────────────────────────────────────────────

func TestUnregister(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin+5)

	ok, err := h.e.Unregister(h.ctx, "alice", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "200005", h.paidTo(t, "alice").String())

	_, err = h.e.GetAccount(h.ctx, "alice")
	assert.True(t, escrow.IsNotFound(err))
}

func TestUnregisterNotFound(t *testing.T) {
	h := newHarness(t)

	ok, err := h.e.Unregister(h.ctx, "alice", true)
	assert.ErrorIs(t, err, escrow.ErrNotFound)
	assert.False(t, ok)
}

func TestUnregisterWithStorage(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)
	require.NoError(t, h.e.Measure(h.ctx, "alice", putBytes("k", 500)))

	ok, err := h.e.Unregister(h.ctx, "alice", false)
	assert.ErrorIs(t, err, escrow.ErrStorageNotEmpty)
	assert.False(t, ok)

	ok, err = h.e.Unregister(h.ctx, "alice", true)
	require.NoError(t, err)
	assert.True(t, ok)

	// Only the unlocked part comes back; the state stays allocated.
	assert.Equal(t, "150000", h.paidTo(t, "alice").String())
	assert.Equal(t, uint64(500), h.state.StorageUsage())
}

func TestUnregisterTransferFailureRestoresEntry(t *testing.T) {
	h := newHarness(t, escrow.WithPayer(transfer.PayerFunc(func(context.Context, *transfer.Transfer) error {
		return errors.New("rejected")
	})))
	h.register(t, "alice", testMin)

	_, err := h.e.Unregister(h.ctx, "alice", false)
	assert.ErrorIs(t, err, escrow.ErrTransferFailed)

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "200000", acct.StorageBalance.String())
}

// ──────────────────────────────────────────────────
// Measurement
// ──────────────────────────────────────────────────

func TestMeasureGrowth(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	require.NoError(t, h.e.Measure(h.ctx, "alice", putBytes("games/1", 100)))

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), acct.UsedBytes)

	bal, err := h.e.BalanceOf(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "200000", bal.Total.String())
	assert.Equal(t, "190000", bal.Available.String())
	assert.Equal(t, uint64(100), h.state.StorageUsage())
}

func TestMeasureNotCovered(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	err := h.e.Measure(h.ctx, "alice", putBytes("big", testMinBytes+1))
	assert.ErrorIs(t, err, escrow.ErrStorageNotCovered)
	assert.True(t, escrow.IsRejection(err))
	assert.False(t, escrow.IsFatal(err))

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, acct.UsedBytes)
	assert.Zero(t, h.state.StorageUsage())
	assert.Zero(t, h.state.Len())
}

func TestMeasureExactlyCovered(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	require.NoError(t, h.e.Measure(h.ctx, "alice", putBytes("big", testMinBytes)))

	bal, err := h.e.BalanceOf(h.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Available.IsZero())
}

func TestMeasureRelease(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	require.NoError(t, h.e.Measure(h.ctx, "alice", putBytes("a", 300)))
	require.NoError(t, h.e.Measure(h.ctx, "alice", putBytes("b", 200)))
	require.NoError(t, h.e.Measure(h.ctx, "alice", deleteKey("a")))

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), acct.UsedBytes)
	assert.Equal(t, uint64(200), h.state.StorageUsage())
}

func TestMeasureZeroDelta(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)
	require.NoError(t, h.e.Measure(h.ctx, "alice", putBytes("a", 300)))

	before, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)

	// Same-size overwrite and a put/delete pair leave usage unchanged.
	require.NoError(t, h.e.Measure(h.ctx, "alice", putBytes("a", 300)))
	require.NoError(t, h.e.Measure(h.ctx, "alice", func(tx state.Tx) error {
		if err := tx.Put([]byte("tmp"), value("tmp", 80)); err != nil {
			return err
		}
		return tx.Delete([]byte("tmp"))
	}))

	after, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, before.UsedBytes, after.UsedBytes)
	assert.True(t, before.StorageBalance.Equal(after.StorageBalance))
}

func TestMeasureOperationError(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)
	boom := errors.New("game rejected")

	err := h.e.Measure(h.ctx, "alice", func(tx state.Tx) error {
		_ = tx.Put([]byte("k"), value("k", 100))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, h.state.StorageUsage())

	// The principal is free again.
	require.NoError(t, h.e.Measure(h.ctx, "alice", putBytes("k", 100)))
}

func TestMeasurePanicReleasesScope(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	assert.Panics(t, func() {
		_ = h.e.Measure(h.ctx, "alice", func(tx state.Tx) error {
			_ = tx.Put([]byte("k"), value("k", 100))
			panic("boom")
		})
	})
	assert.Zero(t, h.state.StorageUsage())

	s, err := h.e.BeginScope(h.ctx, "alice")
	require.NoError(t, err)
	s.Abort()
}

func TestMeasureUnknownPrincipal(t *testing.T) {
	h := newHarness(t)

	err := h.e.Measure(h.ctx, "alice", putBytes("k", 100))
	assert.ErrorIs(t, err, escrow.ErrNotFound)
}

func TestMeasureWithDeposit(t *testing.T) {
	h := newHarness(t)

	err := h.e.Measure(h.ctx, "alice", putBytes("game", 1500), escrow.WithDeposit(types.NewBalance(testMin)))
	require.NoError(t, err)

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), acct.UsedBytes)
	assert.Equal(t, "200000", acct.StorageBalance.String())

	// A deposit that cannot cover the write is not kept either.
	err = h.e.Measure(h.ctx, "bob", putBytes("game", 2500), escrow.WithDeposit(types.NewBalance(testMin)))
	assert.ErrorIs(t, err, escrow.ErrStorageNotCovered)
	_, err = h.e.GetAccount(h.ctx, "bob")
	assert.True(t, escrow.IsNotFound(err))
}

func TestMeasureWithDepositBelowMinimum(t *testing.T) {
	h := newHarness(t)

	err := h.e.Measure(h.ctx, "alice", putBytes("game", 100), escrow.WithDeposit(types.NewBalance(1)))
	assert.ErrorIs(t, err, escrow.ErrInsufficientDeposit)
}

// ──────────────────────────────────────────────────
// Scopes
// ──────────────────────────────────────────────────

func TestScopeExclusive(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)
	h.register(t, "bob", testMin)

	s, err := h.e.BeginScope(h.ctx, "alice")
	require.NoError(t, err)

	_, err = h.e.BeginScope(h.ctx, "alice")
	assert.ErrorIs(t, err, escrow.ErrScopeActive)

	_, err = h.e.Withdraw(h.ctx, "alice", types.NewBalance(1))
	assert.ErrorIs(t, err, escrow.ErrScopeActive)

	_, err = h.e.Deposit(h.ctx, escrow.DepositInput{Caller: "alice", Attached: types.NewBalance(testMin)})
	assert.ErrorIs(t, err, escrow.ErrScopeActive)

	// Other principals are unaffected.
	other, err := h.e.BeginScope(h.ctx, "bob")
	require.NoError(t, err)
	other.Abort()

	require.NoError(t, s.End(h.ctx))

	_, err = h.e.Withdraw(h.ctx, "alice", types.NewBalance(1))
	assert.NoError(t, err)
}

func TestScopeEndTwice(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	s, err := h.e.BeginScope(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", s.Principal())
	assert.Equal(t, "scope", string(s.ID().Prefix()))

	require.NoError(t, s.Tx().Put([]byte("k"), value("k", 100)))
	require.NoError(t, s.End(h.ctx))
	assert.ErrorIs(t, s.End(h.ctx), escrow.ErrScopeClosed)
	s.Abort()

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), acct.UsedBytes)
}

func TestScopeAbort(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	s, err := h.e.BeginScope(h.ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, s.Tx().Put([]byte("k"), value("k", 100)))
	s.Abort()

	assert.ErrorIs(t, s.End(h.ctx), escrow.ErrScopeClosed)
	assert.Zero(t, h.state.StorageUsage())

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, acct.UsedBytes)
}

func TestConcurrentScopesMeasureIndependently(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)
	h.register(t, "bob", testMin)

	a, err := h.e.BeginScope(h.ctx, "alice")
	require.NoError(t, err)
	b, err := h.e.BeginScope(h.ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, a.Tx().Put([]byte("a"), value("a", 300)))
	require.NoError(t, b.Tx().Put([]byte("b"), value("b", 700)))
	require.NoError(t, b.End(h.ctx))
	require.NoError(t, a.End(h.ctx))

	alice, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	bob, err := h.e.GetAccount(h.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), alice.UsedBytes)
	assert.Equal(t, uint64(700), bob.UsedBytes)
	assert.Equal(t, uint64(1000), h.state.StorageUsage())
}

func TestConcurrentScopesConflictOnSharedKey(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)
	h.register(t, "bob", testMin)

	a, err := h.e.BeginScope(h.ctx, "alice")
	require.NoError(t, err)
	b, err := h.e.BeginScope(h.ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, a.Tx().Put([]byte("shared"), value("shared", 300)))
	require.NoError(t, b.Tx().Put([]byte("shared"), value("shared", 300)))
	require.NoError(t, a.End(h.ctx))

	err = b.End(h.ctx)
	require.ErrorIs(t, err, state.ErrConflict)

	bob, err := h.e.GetAccount(h.ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, bob.UsedBytes)
	assert.Equal(t, uint64(300), h.state.StorageUsage())
	assert.Equal(t, 1, h.state.Len())

	// The owner can still release the record and the totals return to zero.
	require.NoError(t, h.e.Measure(h.ctx, "alice", deleteKey("shared")))
	alice, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, alice.UsedBytes)
	assert.Zero(t, h.state.StorageUsage())
	assert.Zero(t, h.state.Len())

	// bob is free to open a new scope after the rejected one.
	require.NoError(t, h.e.Measure(h.ctx, "bob", putBytes("b", 100)))
}

// ──────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────

func TestReconcileAndStore(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)

	acct.Meter.BytesAdded = 50
	require.NoError(t, h.e.ReconcileAndStore(h.ctx, acct))
	assert.Equal(t, uint64(50), acct.UsedBytes)
	assert.Zero(t, acct.Meter.BytesAdded)

	// Idempotent once the meter is reset.
	require.NoError(t, h.e.ReconcileAndStore(h.ctx, acct))
	assert.Equal(t, uint64(50), acct.UsedBytes)

	acct.Meter.BytesAdded = testMinBytes
	err = h.e.ReconcileAndStore(h.ctx, acct)
	assert.ErrorIs(t, err, escrow.ErrStorageNotCovered)
	assert.Equal(t, uint64(50), acct.UsedBytes)
	assert.Equal(t, uint64(testMinBytes), acct.Meter.BytesAdded)

	stored, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), stored.UsedBytes)
}

func TestReconcileOverRelease(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", testMin)

	acct, err := h.e.GetAccount(h.ctx, "alice")
	require.NoError(t, err)
	acct.Meter.BytesReleased = 1

	err = h.e.ReconcileAndStore(h.ctx, acct)
	assert.ErrorIs(t, err, escrow.ErrInternalAccounting)
	assert.True(t, escrow.IsFatal(err))
}

func TestStopClosesStores(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.e.Stop())

	_, err := h.e.GetAccount(h.ctx, "alice")
	assert.ErrorIs(t, err, escrow.ErrStoreClosed)
}

func TestAccountAlias(t *testing.T) {
	var a *escrow.Account = account.New("alice", escrow.NewBalance(1))
	assert.Equal(t, "alice", a.Principal)
}
