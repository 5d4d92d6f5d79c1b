package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/transfer"
	"github.com/xraph/escrow/types"
)

// DefaultTimeout bounds every hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onAccountRegistered []OnAccountRegistered
	onDeposit           []OnDeposit
	onWithdraw          []OnWithdraw
	onUnregister        []OnUnregister
	onUsageReconciled   []OnUsageReconciled
	onStorageNotCovered []OnStorageNotCovered
	onTransfer          []OnTransfer
	payers              []PayerPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountRegistered); ok {
		r.onAccountRegistered = append(r.onAccountRegistered, v)
	}
	if v, ok := p.(OnDeposit); ok {
		r.onDeposit = append(r.onDeposit, v)
	}
	if v, ok := p.(OnWithdraw); ok {
		r.onWithdraw = append(r.onWithdraw, v)
	}
	if v, ok := p.(OnUnregister); ok {
		r.onUnregister = append(r.onUnregister, v)
	}
	if v, ok := p.(OnUsageReconciled); ok {
		r.onUsageReconciled = append(r.onUsageReconciled, v)
	}
	if v, ok := p.(OnStorageNotCovered); ok {
		r.onStorageNotCovered = append(r.onStorageNotCovered, v)
	}
	if v, ok := p.(OnTransfer); ok {
		r.onTransfer = append(r.onTransfer, v)
	}
	if v, ok := p.(PayerPlugin); ok {
		r.payers = append(r.payers, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnAccountRegistered)(nil)).Elem(), "OnAccountRegistered")
	checkInterface(reflect.TypeOf((*OnDeposit)(nil)).Elem(), "OnDeposit")
	checkInterface(reflect.TypeOf((*OnWithdraw)(nil)).Elem(), "OnWithdraw")
	checkInterface(reflect.TypeOf((*OnUnregister)(nil)).Elem(), "OnUnregister")
	checkInterface(reflect.TypeOf((*OnUsageReconciled)(nil)).Elem(), "OnUsageReconciled")
	checkInterface(reflect.TypeOf((*OnStorageNotCovered)(nil)).Elem(), "OnStorageNotCovered")
	checkInterface(reflect.TypeOf((*OnTransfer)(nil)).Elem(), "OnTransfer")
	checkInterface(reflect.TypeOf((*PayerPlugin)(nil)).Elem(), "Payer")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Payer returns the first registered payer plugin, or nil.
func (r *Registry) Payer() transfer.Payer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.payers) == 0 {
		return nil
	}
	return r.payers[0]
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, e interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, e)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitAccountRegistered emits an account registered event.
func (r *Registry) EmitAccountRegistered(ctx context.Context, acct *account.Account) {
	r.mu.RLock()
	plugins := r.onAccountRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnAccountRegistered", func() error {
			return p.OnAccountRegistered(ctx, acct)
		})
	}
}

// EmitDeposit emits a deposit event.
func (r *Registry) EmitDeposit(ctx context.Context, acct *account.Account, amount types.Balance) {
	r.mu.RLock()
	plugins := r.onDeposit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnDeposit", func() error {
			return p.OnDeposit(ctx, acct, amount)
		})
	}
}

// EmitWithdraw emits a withdrawal event.
func (r *Registry) EmitWithdraw(ctx context.Context, acct *account.Account, amount types.Balance) {
	r.mu.RLock()
	plugins := r.onWithdraw
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnWithdraw", func() error {
			return p.OnWithdraw(ctx, acct, amount)
		})
	}
}

// EmitUnregister emits an unregister event.
func (r *Registry) EmitUnregister(ctx context.Context, principal string, orphaned uint64) {
	r.mu.RLock()
	plugins := r.onUnregister
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnUnregister", func() error {
			return p.OnUnregister(ctx, principal, orphaned)
		})
	}
}

// EmitUsageReconciled emits a usage reconciled event.
func (r *Registry) EmitUsageReconciled(ctx context.Context, acct *account.Account, added, released uint64) {
	r.mu.RLock()
	plugins := r.onUsageReconciled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnUsageReconciled", func() error {
			return p.OnUsageReconciled(ctx, acct, added, released)
		})
	}
}

// EmitStorageNotCovered emits a collateral rejection event.
func (r *Registry) EmitStorageNotCovered(ctx context.Context, principal string, required, balance types.Balance) {
	r.mu.RLock()
	plugins := r.onStorageNotCovered
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnStorageNotCovered", func() error {
			return p.OnStorageNotCovered(ctx, principal, required, balance)
		})
	}
}

// EmitTransfer emits a transfer event.
func (r *Registry) EmitTransfer(ctx context.Context, t *transfer.Transfer) {
	r.mu.RLock()
	plugins := r.onTransfer
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnTransfer", func() error {
			return p.OnTransfer(ctx, t)
		})
	}
}

func (r *Registry) dispatch(ctx context.Context, name, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, name, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", name,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the accounting path.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
