package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/state"
	statemem "github.com/xraph/escrow/state/memory"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/transfer"
	"github.com/xraph/escrow/types"
)

const (
	// DefaultMinStorageBytes is the footprint every principal must escrow
	// for before it can register.
	DefaultMinStorageBytes uint64 = 2000
)

// DefaultByteCost is the default price of one byte: 10^19 units.
var DefaultByteCost = types.MustParseBalance("10000000000000000000")

// PriceFunc returns the current price of one byte of storage. It is called
// on every use and its result is never cached.
type PriceFunc func(ctx context.Context) (types.Balance, error)

// Escrow is the storage accounting engine.
type Escrow struct {
	store   store.Store
	state   state.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	payer   transfer.Payer

	price           PriceFunc
	minStorageBytes uint64
	validPrincipal  PrincipalValidator

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates a new Escrow instance.
func New(s store.Store, opts ...Option) *Escrow {
	e := &Escrow{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		price:           fixedPrice(DefaultByteCost),
		minStorageBytes: DefaultMinStorageBytes,
		validPrincipal:  ValidPrincipal,
		active:          make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.state == nil {
		e.state = statemem.New()
	}
	if e.payer == nil {
		if p := e.plugins.Payer(); p != nil {
			e.payer = p
		} else {
			e.payer = transfer.NewRecorder()
		}
	}

	return e
}

// Option configures an Escrow instance.
type Option func(*Escrow)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Escrow) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Escrow) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithMinStorageBytes sets the footprint a principal must cover to register.
func WithMinStorageBytes(n uint64) Option {
	return func(e *Escrow) {
		e.minStorageBytes = n
	}
}

// WithByteCost fixes the price of one byte.
func WithByteCost(cost types.Balance) Option {
	return func(e *Escrow) {
		e.price = fixedPrice(cost)
	}
}

// WithPriceFunc sets a dynamic byte price.
func WithPriceFunc(fn PriceFunc) Option {
	return func(e *Escrow) {
		e.price = fn
	}
}

// WithPayer sets the primitive that moves refunds and withdrawals.
func WithPayer(p transfer.Payer) Option {
	return func(e *Escrow) {
		e.payer = p
	}
}

// WithState sets the metered state store scopes run against.
func WithState(s state.Store) Option {
	return func(e *Escrow) {
		e.state = s
	}
}

// WithPrincipalValidator replaces ValidPrincipal.
func WithPrincipalValidator(fn PrincipalValidator) Option {
	return func(e *Escrow) {
		e.validPrincipal = fn
	}
}

func fixedPrice(cost types.Balance) PriceFunc {
	return func(context.Context) (types.Balance, error) { return cost, nil }
}

// Start migrates the store and initializes plugins.
func (e *Escrow) Start(ctx context.Context) error {
	if err := e.Migrate(ctx); err != nil {
		return err
	}
	e.Init(ctx)
	return nil
}

// Migrate creates whatever the store needs to hold ledger entries.
func (e *Escrow) Migrate(ctx context.Context) error {
	return e.store.Migrate(ctx)
}

// Init initializes plugins without touching the store schema.
func (e *Escrow) Init(ctx context.Context) {
	e.plugins.EmitInit(ctx, e)

	e.logger.Info("escrow started",
		"min_storage_bytes", e.minStorageBytes,
		"plugins", e.plugins.Count(),
	)
}

// Stop shuts down plugins and closes the store and the state store.
func (e *Escrow) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	var errs MultiError
	errs.Add(e.store.Close())
	errs.Add(e.state.Close())
	return errs.ErrorOrNil()
}

// Store returns the ledger store.
func (e *Escrow) Store() store.Store { return e.store }

// State returns the metered state store.
func (e *Escrow) State() state.Store { return e.state }

// Plugins returns the plugin registry.
func (e *Escrow) Plugins() *plugin.Registry { return e.plugins }

// Payer returns the payment primitive in use.
func (e *Escrow) Payer() transfer.Payer { return e.payer }

// ──────────────────────────────────────────────────
// Bounds
// ──────────────────────────────────────────────────

// ByteCost returns the current price of one byte.
func (e *Escrow) ByteCost(ctx context.Context) (types.Balance, error) {
	return e.price(ctx)
}

// limits returns the byte cost and the minimum storage balance it implies.
func (e *Escrow) limits(ctx context.Context) (cost, minBalance types.Balance, err error) {
	cost, err = e.price(ctx)
	if err != nil {
		return types.Balance{}, types.Balance{}, fmt.Errorf("escrow: byte cost: %w", err)
	}
	minBalance, err = cost.MulBytes(e.minStorageBytes)
	if err != nil {
		return types.Balance{}, types.Balance{}, fmt.Errorf("%w: minimum storage balance", ErrBalanceOverflow)
	}
	return cost, minBalance, nil
}

// BalanceBounds returns the minimum escrow a principal must hold. There is
// no maximum.
func (e *Escrow) BalanceBounds(ctx context.Context) (*account.Bounds, error) {
	_, minBalance, err := e.limits(ctx)
	if err != nil {
		return nil, err
	}
	return &account.Bounds{Min: minBalance}, nil
}

// ──────────────────────────────────────────────────
// Ledger entries
// ──────────────────────────────────────────────────

// GetAccount returns the ledger entry for principal.
func (e *Escrow) GetAccount(ctx context.Context, principal string) (*account.Account, error) {
	if !e.validPrincipal(principal) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPrincipal, principal)
	}
	return e.store.GetAccount(ctx, principal)
}

// BalanceOf returns the total and available balance of principal. A missing
// entry yields nil without an error.
func (e *Escrow) BalanceOf(ctx context.Context, principal string) (*account.StorageBalance, error) {
	acct, err := e.GetAccount(ctx, principal)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil //nolint:nilnil // absence is not a failure here
		}
		return nil, err
	}
	cost, err := e.price(ctx)
	if err != nil {
		return nil, fmt.Errorf("escrow: byte cost: %w", err)
	}
	return balanceOf(acct, cost)
}

func balanceOf(acct *account.Account, cost types.Balance) (*account.StorageBalance, error) {
	available, err := acct.Available(cost)
	if err != nil {
		return nil, err
	}
	return &account.StorageBalance{
		Total:     acct.StorageBalance,
		Available: available,
	}, nil
}

// DepositInput describes an attached deposit.
type DepositInput struct {
	// Caller attached the deposit and receives any refund.
	Caller string
	// Attached is the amount paid in.
	Attached types.Balance
	// AccountID is the principal credited. Empty means Caller.
	AccountID string
	// RegistrationOnly caps a new entry at the minimum balance and refunds
	// the rest. On an existing entry the whole deposit is refunded rather
	// than capping the balance at the minimum and refunding the excess.
	RegistrationOnly bool
}

// Deposit credits an attached deposit to a principal, creating its entry
// when needed.
func (e *Escrow) Deposit(ctx context.Context, in DepositInput) (*account.StorageBalance, error) {
	target := in.AccountID
	if target == "" {
		target = in.Caller
	}
	if err := e.validate(in.Caller, target); err != nil {
		return nil, err
	}
	if err := e.acquire(target); err != nil {
		return nil, err
	}
	defer e.release(target)

	cost, minBalance, err := e.limits(ctx)
	if err != nil {
		return nil, err
	}
	if in.Attached.LessThan(minBalance) {
		return nil, fmt.Errorf("%w: attached %s, minimum %s", ErrInsufficientDeposit, in.Attached, minBalance)
	}

	p, err := e.prepareTopUp(ctx, in.Caller, target, in.Attached, in.RegistrationOnly, true)
	if err != nil {
		return nil, err
	}
	if err := e.settleTopUp(ctx, p); err != nil {
		return nil, err
	}
	return balanceOf(p.acct, cost)
}

// CreateOrTopUp adds deposit to principal's entry, creating it when absent.
//
// A new entry requires at least the minimum balance; with registrationOnly
// its balance is capped at the minimum and the excess refunded to caller.
// An existing entry is always credited the full deposit.
func (e *Escrow) CreateOrTopUp(ctx context.Context, caller, principal string, deposit types.Balance, registrationOnly bool) (*account.Account, error) {
	if err := e.validate(caller, principal); err != nil {
		return nil, err
	}
	if err := e.acquire(principal); err != nil {
		return nil, err
	}
	defer e.release(principal)

	p, err := e.prepareTopUp(ctx, caller, principal, deposit, registrationOnly, false)
	if err != nil {
		return nil, err
	}
	if err := e.settleTopUp(ctx, p); err != nil {
		return nil, err
	}
	return p.acct.Clone(), nil
}

// Withdraw pays amount from caller's escrow back to caller. The remaining
// balance must still cover the committed bytes.
func (e *Escrow) Withdraw(ctx context.Context, caller string, amount types.Balance) (*account.StorageBalance, error) {
	if err := e.validate(caller); err != nil {
		return nil, err
	}
	if err := e.acquire(caller); err != nil {
		return nil, err
	}
	defer e.release(caller)

	prior, err := e.store.GetAccount(ctx, caller)
	if err != nil {
		return nil, err
	}
	cost, err := e.price(ctx)
	if err != nil {
		return nil, fmt.Errorf("escrow: byte cost: %w", err)
	}

	remaining, err := prior.StorageBalance.Sub(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: requested %s, balance %s", ErrInsufficientBalance, amount, prior.StorageBalance)
	}
	if !account.Covers(remaining, prior.UsedBytes, cost) {
		required, _ := prior.StorageCost(cost) //nolint:errcheck // overflow already reported by Covers
		e.logger.Warn("withdrawal would leave storage uncovered",
			"principal", caller,
			"amount", amount,
			"used_bytes", prior.UsedBytes,
		)
		e.plugins.EmitStorageNotCovered(ctx, caller, required, remaining)
		return nil, fmt.Errorf("%w: withdrawing %s leaves %s for %d bytes",
			ErrStorageNotCovered, amount, remaining, prior.UsedBytes)
	}

	acct := prior.Clone()
	acct.StorageBalance = remaining
	acct.Touch()
	if err := e.store.PutAccount(ctx, acct); err != nil {
		return nil, err
	}

	if !amount.IsZero() {
		t := transfer.New(caller, amount, transfer.KindWithdrawal)
		if err := e.pay(ctx, t, e.restore(prior, caller)); err != nil {
			return nil, err
		}
	}

	e.logger.Info("storage withdrawn",
		"principal", caller,
		"amount", amount,
		"balance", remaining,
	)
	e.plugins.EmitWithdraw(ctx, acct.Clone(), amount)

	return balanceOf(acct, cost)
}

// Unregister removes caller's entry and refunds its available balance.
//
// An entry with committed bytes is only removed when force is set; those
// bytes stay in the state store and the escrow backing them is kept.
func (e *Escrow) Unregister(ctx context.Context, caller string, force bool) (bool, error) {
	if err := e.validate(caller); err != nil {
		return false, err
	}
	if err := e.acquire(caller); err != nil {
		return false, err
	}
	defer e.release(caller)

	prior, err := e.store.GetAccount(ctx, caller)
	if err != nil {
		return false, err
	}
	if prior.UsedBytes > 0 && !force {
		return false, fmt.Errorf("%w: %q holds %d bytes", ErrStorageNotEmpty, caller, prior.UsedBytes)
	}

	cost, err := e.price(ctx)
	if err != nil {
		return false, fmt.Errorf("escrow: byte cost: %w", err)
	}
	refund, err := prior.Available(cost)
	if err != nil {
		return false, err
	}

	if err := e.store.DeleteAccount(ctx, caller); err != nil {
		return false, err
	}

	if !refund.IsZero() {
		t := transfer.New(caller, refund, transfer.KindUnregister)
		undo := func(ctx context.Context) error { return e.store.PutAccount(ctx, prior) }
		if err := e.pay(ctx, t, undo); err != nil {
			return false, err
		}
	}

	if prior.UsedBytes > 0 {
		e.logger.Warn("forced unregister orphaned storage",
			"principal", caller,
			"used_bytes", prior.UsedBytes,
		)
	}
	e.logger.Info("principal unregistered",
		"principal", caller,
		"refund", refund,
	)
	e.plugins.EmitUnregister(ctx, caller, prior.UsedBytes)

	return true, nil
}

// ReconcileAndStore folds acct's meter into its committed usage and
// persists it. On error nothing is persisted and acct is unchanged.
func (e *Escrow) ReconcileAndStore(ctx context.Context, acct *account.Account) error {
	if err := e.validate(acct.Principal); err != nil {
		return err
	}
	if err := e.acquire(acct.Principal); err != nil {
		return err
	}
	defer e.release(acct.Principal)

	return e.reconcileAndStore(ctx, acct)
}

func (e *Escrow) reconcileAndStore(ctx context.Context, acct *account.Account) error {
	cost, err := e.price(ctx)
	if err != nil {
		return fmt.Errorf("escrow: byte cost: %w", err)
	}

	added, released := acct.Meter.Net()
	next := acct.Clone()
	next.Meter = acct.Meter

	if err := next.Reconcile(cost); err != nil {
		if errors.Is(err, ErrStorageNotCovered) {
			required, _ := cost.MulBytes(acct.UsedBytes + added) //nolint:errcheck // best-effort figure for hooks
			e.logger.Warn("storage not covered",
				"principal", acct.Principal,
				"used_bytes", acct.UsedBytes,
				"bytes_added", added,
				"balance", acct.StorageBalance,
			)
			e.plugins.EmitStorageNotCovered(ctx, acct.Principal, required, acct.StorageBalance)
		} else {
			e.logger.Error("storage accounting breach",
				"principal", acct.Principal,
				"used_bytes", acct.UsedBytes,
				"bytes_released", released,
			)
		}
		return err
	}
	if added > 0 || released > 0 {
		next.Touch()
	}

	if err := e.store.PutAccount(ctx, next); err != nil {
		return err
	}
	*acct = *next

	e.logger.Debug("usage reconciled",
		"principal", acct.Principal,
		"bytes_added", added,
		"bytes_released", released,
		"used_bytes", acct.UsedBytes,
	)
	e.plugins.EmitUsageReconciled(ctx, acct.Clone(), added, released)

	return nil
}

// ──────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────

// topUp is a deposit that has been computed but not persisted.
type topUp struct {
	acct      *account.Account
	prior     *account.Account // nil for a new entry
	deposited types.Balance
	refund    *transfer.Transfer
}

func (e *Escrow) prepareTopUp(ctx context.Context, caller, principal string, amount types.Balance, registrationOnly, refundExisting bool) (*topUp, error) {
	prior, err := e.store.GetAccount(ctx, principal)
	switch {
	case IsNotFound(err):
		prior = nil
	case err != nil:
		return nil, err
	}

	if prior == nil {
		_, minBalance, err := e.limits(ctx)
		if err != nil {
			return nil, err
		}
		if amount.LessThan(minBalance) {
			return nil, fmt.Errorf("%w: attached %s, minimum %s", ErrInsufficientDeposit, amount, minBalance)
		}
		p := &topUp{acct: account.New(principal, amount), deposited: amount}
		if registrationOnly {
			excess, _ := amount.Sub(minBalance) //nolint:errcheck // amount >= minBalance
			p.acct.StorageBalance = minBalance
			p.deposited = minBalance
			if !excess.IsZero() {
				p.refund = transfer.New(caller, excess, transfer.KindRefund)
			}
		}
		return p, nil
	}

	p := &topUp{acct: prior.Clone(), prior: prior}
	if registrationOnly && refundExisting {
		if !amount.IsZero() {
			p.refund = transfer.New(caller, amount, transfer.KindRefund)
		}
		return p, nil
	}

	balance, err := prior.StorageBalance.Add(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBalanceOverflow, principal)
	}
	p.acct.StorageBalance = balance
	p.acct.Touch()
	p.deposited = amount
	return p, nil
}

// settleTopUp persists a prepared deposit, pays its refund and notifies plugins.
func (e *Escrow) settleTopUp(ctx context.Context, p *topUp) error {
	if err := e.store.PutAccount(ctx, p.acct); err != nil {
		return err
	}
	if p.refund != nil {
		if err := e.pay(ctx, p.refund, e.restore(p.prior, p.acct.Principal)); err != nil {
			return err
		}
	}
	e.announceTopUp(ctx, p)
	return nil
}

func (e *Escrow) announceTopUp(ctx context.Context, p *topUp) {
	if p.prior == nil {
		e.logger.Info("principal registered",
			"principal", p.acct.Principal,
			"balance", p.acct.StorageBalance,
		)
		e.plugins.EmitAccountRegistered(ctx, p.acct.Clone())
	}
	if !p.deposited.IsZero() {
		e.plugins.EmitDeposit(ctx, p.acct.Clone(), p.deposited)
	}
}

// pay sends t. When the payment fails, undo restores the ledger and the
// returned error wraps ErrTransferFailed.
func (e *Escrow) pay(ctx context.Context, t *transfer.Transfer, undo func(context.Context) error) error {
	if err := e.payer.Pay(ctx, t); err != nil {
		if uerr := undo(ctx); uerr != nil {
			e.logger.Error("failed to restore entry after transfer failure",
				"principal", t.To,
				"transfer", t.ID.String(),
				"error", uerr,
			)
			return fmt.Errorf("%w: %w (restore: %v)", ErrTransferFailed, err, uerr)
		}
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	if err := e.store.RecordTransfer(ctx, t); err != nil {
		e.logger.Warn("failed to record transfer",
			"transfer", t.ID.String(),
			"error", err,
		)
	}
	e.plugins.EmitTransfer(ctx, t)
	return nil
}

// restore returns an undo that puts prior back, or deletes principal's entry
// when it did not exist before.
func (e *Escrow) restore(prior *account.Account, principal string) func(context.Context) error {
	return func(ctx context.Context) error {
		if prior == nil {
			return e.store.DeleteAccount(ctx, principal)
		}
		return e.store.PutAccount(ctx, prior)
	}
}

func (e *Escrow) validate(principals ...string) error {
	for _, p := range principals {
		if !e.validPrincipal(p) {
			return fmt.Errorf("%w: %q", ErrInvalidPrincipal, p)
		}
	}
	return nil
}

// acquire marks principal busy. Only one scope or management operation may
// touch an entry at a time.
func (e *Escrow) acquire(principal string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.active[principal]; busy {
		return fmt.Errorf("%w: %q", ErrScopeActive, principal)
	}
	e.active[principal] = struct{}{}
	return nil
}

func (e *Escrow) release(principal string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, principal)
}
