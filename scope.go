package escrow

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/state"
	"github.com/xraph/escrow/types"
)

// Scope measures the state a single operation writes on behalf of one
// principal. It holds the principal's entry and a state transaction; End
// reconciles the bytes the transaction added or freed and commits both,
// Abort drops both.
type Scope struct {
	id  id.ScopeID
	e   *Escrow
	top *topUp
	tx  state.Tx

	mu     sync.Mutex
	closed bool
}

// ScopeOption configures BeginScope.
type ScopeOption func(*scopeConfig)

type scopeConfig struct {
	deposit    types.Balance
	hasDeposit bool
}

// WithDeposit credits amount to the principal before measuring, creating its
// entry when it has none. The deposit only lands if the scope ends
// successfully.
func WithDeposit(amount types.Balance) ScopeOption {
	return func(c *scopeConfig) {
		c.deposit = amount
		c.hasDeposit = true
	}
}

// BeginScope opens a measurement scope for principal. The principal must
// have an entry unless WithDeposit is given. No other scope or management
// operation may touch the principal until the scope ends.
func (e *Escrow) BeginScope(ctx context.Context, principal string, opts ...ScopeOption) (*Scope, error) {
	if e.state == nil {
		return nil, ErrNoState
	}
	if err := e.validate(principal); err != nil {
		return nil, err
	}

	var cfg scopeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := e.acquire(principal); err != nil {
		return nil, err
	}
	s, err := e.openScope(ctx, principal, cfg)
	if err != nil {
		e.release(principal)
		return nil, err
	}

	e.logger.Debug("scope opened",
		"scope", s.id.String(),
		"principal", principal,
		"baseline", s.tx.StorageUsage(),
	)
	return s, nil
}

func (e *Escrow) openScope(ctx context.Context, principal string, cfg scopeConfig) (*Scope, error) {
	var top *topUp
	if cfg.hasDeposit {
		p, err := e.prepareTopUp(ctx, principal, principal, cfg.deposit, false, false)
		if err != nil {
			return nil, err
		}
		top = p
	} else {
		acct, err := e.store.GetAccount(ctx, principal)
		if err != nil {
			return nil, err
		}
		top = &topUp{acct: acct, prior: acct.Clone()}
	}

	tx, err := e.state.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("escrow: begin state transaction: %w", err)
	}
	if err := top.acct.Meter.Start(tx); err != nil {
		tx.Discard()
		return nil, err
	}

	return &Scope{
		id:  id.NewScopeID(),
		e:   e,
		top: top,
		tx:  tx,
	}, nil
}

// ID returns the scope identifier used in logs.
func (s *Scope) ID() id.ScopeID { return s.id }

// Principal returns the principal being measured.
func (s *Scope) Principal() string { return s.top.acct.Principal }

// Tx returns the state transaction the operation must write through.
func (s *Scope) Tx() state.Tx { return s.tx }

// Account returns a copy of the entry as it will be reconciled.
func (s *Scope) Account() *account.Account { return s.top.acct.Clone() }

// End stops the meter, reconciles the entry, persists it and commits the
// state transaction. On any error both are rolled back and the scope is
// closed.
func (s *Scope) End(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrScopeClosed
	}
	s.closed = true
	e := s.e
	principal := s.Principal()
	defer e.release(principal)

	if err := s.top.acct.Meter.Stop(); err != nil {
		s.tx.Discard()
		return err
	}
	if err := e.reconcileAndStore(ctx, s.top.acct); err != nil {
		s.tx.Discard()
		return err
	}

	if err := s.tx.Commit(); err != nil {
		if uerr := e.restore(s.top.prior, principal)(ctx); uerr != nil {
			e.logger.Error("failed to restore entry after commit failure",
				"scope", s.id.String(),
				"principal", principal,
				"error", uerr,
			)
		}
		return fmt.Errorf("escrow: commit state: %w", err)
	}

	if s.top.prior == nil || !s.top.deposited.IsZero() {
		e.announceTopUp(ctx, s.top)
	}
	e.logger.Debug("scope closed",
		"scope", s.id.String(),
		"principal", principal,
		"used_bytes", s.top.acct.UsedBytes,
	)
	return nil
}

// Abort discards the state transaction and leaves the entry untouched. It
// is a no-op after End or a previous Abort.
func (s *Scope) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.tx.Discard()
	s.e.release(s.Principal())

	s.e.logger.Debug("scope aborted",
		"scope", s.id.String(),
		"principal", s.Principal(),
	)
}

// Measure runs fn inside a scope for principal. The scope ends when fn
// returns nil and is aborted on error or panic.
func (e *Escrow) Measure(ctx context.Context, principal string, fn func(tx state.Tx) error, opts ...ScopeOption) error {
	s, err := e.BeginScope(ctx, principal, opts...)
	if err != nil {
		return err
	}
	defer s.Abort()

	if err := fn(s.Tx()); err != nil {
		return err
	}
	return s.End(ctx)
}
