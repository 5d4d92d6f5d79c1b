// Package observability provides a metrics extension for Escrow that records
// ledger event counts and amounts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/transfer"
	"github.com/xraph/escrow/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnAccountRegistered = (*MetricsExtension)(nil)
	_ plugin.OnDeposit           = (*MetricsExtension)(nil)
	_ plugin.OnWithdraw          = (*MetricsExtension)(nil)
	_ plugin.OnUnregister        = (*MetricsExtension)(nil)
	_ plugin.OnUsageReconciled   = (*MetricsExtension)(nil)
	_ plugin.OnStorageNotCovered = (*MetricsExtension)(nil)
	_ plugin.OnTransfer          = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide ledger metrics.
// Register it as an Escrow plugin to automatically track storage metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Registration metrics
	AccountsRegistered   Counter
	AccountsUnregistered Counter
	OrphanedBytes        Counter

	// Balance metrics
	Deposits         Counter
	DepositAmount    Histogram
	Withdrawals      Counter
	WithdrawalAmount Histogram

	// Usage metrics
	Reconciliations   Counter
	BytesAdded        Counter
	BytesReleased     Counter
	StorageNotCovered Counter

	// Transfer metrics
	Transfers      Counter
	TransferAmount Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory or app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Registration metrics
		AccountsRegistered:   factory.Counter("escrow.account.registered"),
		AccountsUnregistered: factory.Counter("escrow.account.unregistered"),
		OrphanedBytes:        factory.Counter("escrow.account.orphaned_bytes"),

		// Balance metrics
		Deposits:         factory.Counter("escrow.deposit.count"),
		DepositAmount:    factory.Histogram("escrow.deposit.amount"),
		Withdrawals:      factory.Counter("escrow.withdraw.count"),
		WithdrawalAmount: factory.Histogram("escrow.withdraw.amount"),

		// Usage metrics
		Reconciliations:   factory.Counter("escrow.usage.reconciled"),
		BytesAdded:        factory.Counter("escrow.usage.bytes_added"),
		BytesReleased:     factory.Counter("escrow.usage.bytes_released"),
		StorageNotCovered: factory.Counter("escrow.usage.not_covered"),

		// Transfer metrics
		Transfers:      factory.Counter("escrow.transfer.count"),
		TransferAmount: factory.Histogram("escrow.transfer.amount"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Ledger entry hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered implements plugin.OnAccountRegistered.
func (m *MetricsExtension) OnAccountRegistered(_ context.Context, _ *account.Account) error {
	m.AccountsRegistered.Inc()
	return nil
}

// OnDeposit implements plugin.OnDeposit.
func (m *MetricsExtension) OnDeposit(_ context.Context, _ *account.Account, amount types.Balance) error {
	m.Deposits.Inc()
	m.DepositAmount.Observe(amount.Float64())
	return nil
}

// OnWithdraw implements plugin.OnWithdraw.
func (m *MetricsExtension) OnWithdraw(_ context.Context, _ *account.Account, amount types.Balance) error {
	m.Withdrawals.Inc()
	m.WithdrawalAmount.Observe(amount.Float64())
	return nil
}

// OnUnregister implements plugin.OnUnregister.
func (m *MetricsExtension) OnUnregister(_ context.Context, _ string, orphaned uint64) error {
	m.AccountsUnregistered.Inc()
	if orphaned > 0 {
		m.OrphanedBytes.Add(float64(orphaned))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Metering hooks
// ──────────────────────────────────────────────────

// OnUsageReconciled implements plugin.OnUsageReconciled.
func (m *MetricsExtension) OnUsageReconciled(_ context.Context, _ *account.Account, added, released uint64) error {
	m.Reconciliations.Inc()
	if added > 0 {
		m.BytesAdded.Add(float64(added))
	}
	if released > 0 {
		m.BytesReleased.Add(float64(released))
	}
	return nil
}

// OnStorageNotCovered implements plugin.OnStorageNotCovered.
func (m *MetricsExtension) OnStorageNotCovered(_ context.Context, _ string, _, _ types.Balance) error {
	m.StorageNotCovered.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransfer implements plugin.OnTransfer.
func (m *MetricsExtension) OnTransfer(_ context.Context, t *transfer.Transfer) error {
	m.Transfers.Inc()
	m.TransferAmount.Observe(t.Amount.Float64())
	return nil
}
