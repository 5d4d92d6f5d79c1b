// Package audithook bridges Escrow ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/transfer"
	"github.com/xraph/escrow/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnAccountRegistered = (*Extension)(nil)
	_ plugin.OnDeposit           = (*Extension)(nil)
	_ plugin.OnWithdraw          = (*Extension)(nil)
	_ plugin.OnUnregister        = (*Extension)(nil)
	_ plugin.OnUsageReconciled   = (*Extension)(nil)
	_ plugin.OnStorageNotCovered = (*Extension)(nil)
	_ plugin.OnTransfer          = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	ID         id.AuditEventID `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	Category   string          `json:"category"`
	ResourceID string          `json:"resource_id,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Outcome    string          `json:"outcome"`
	Severity   string          `json:"severity"`
	Reason     string          `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Escrow ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Ledger entry hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered implements plugin.OnAccountRegistered.
func (e *Extension) OnAccountRegistered(ctx context.Context, acct *account.Account) error {
	return e.record(ctx, ActionAccountRegistered, SeverityInfo, OutcomeSuccess,
		ResourceAccount, acct.Principal, CategoryAccount, nil,
		"storage_balance", acct.StorageBalance.String(),
	)
}

// OnDeposit implements plugin.OnDeposit.
func (e *Extension) OnDeposit(ctx context.Context, acct *account.Account, amount types.Balance) error {
	return e.record(ctx, ActionDeposit, SeverityInfo, OutcomeSuccess,
		ResourceAccount, acct.Principal, CategoryBalance, nil,
		"amount", amount.String(),
		"storage_balance", acct.StorageBalance.String(),
	)
}

// OnWithdraw implements plugin.OnWithdraw.
func (e *Extension) OnWithdraw(ctx context.Context, acct *account.Account, amount types.Balance) error {
	return e.record(ctx, ActionWithdraw, SeverityInfo, OutcomeSuccess,
		ResourceAccount, acct.Principal, CategoryBalance, nil,
		"amount", amount.String(),
		"storage_balance", acct.StorageBalance.String(),
	)
}

// OnUnregister implements plugin.OnUnregister. A forced unregister that
// abandons committed bytes is recorded a second time as a warning.
func (e *Extension) OnUnregister(ctx context.Context, principal string, orphaned uint64) error {
	if err := e.record(ctx, ActionAccountUnregistered, SeverityInfo, OutcomeSuccess,
		ResourceAccount, principal, CategoryAccount, nil,
		"orphaned_bytes", orphaned,
	); err != nil {
		return err
	}
	if orphaned == 0 {
		return nil
	}
	return e.record(ctx, ActionStorageOrphaned, SeverityWarning, OutcomePartial,
		ResourceUsage, principal, CategoryUsage, nil,
		"orphaned_bytes", orphaned,
	)
}

// ──────────────────────────────────────────────────
// Metering hooks
// ──────────────────────────────────────────────────

// OnUsageReconciled implements plugin.OnUsageReconciled.
func (e *Extension) OnUsageReconciled(ctx context.Context, acct *account.Account, added, released uint64) error {
	return e.record(ctx, ActionUsageReconciled, SeverityInfo, OutcomeSuccess,
		ResourceUsage, acct.Principal, CategoryUsage, nil,
		"bytes_added", added,
		"bytes_released", released,
		"used_bytes", acct.UsedBytes,
	)
}

// OnStorageNotCovered implements plugin.OnStorageNotCovered.
func (e *Extension) OnStorageNotCovered(ctx context.Context, principal string, required, balance types.Balance) error {
	return e.record(ctx, ActionStorageNotCovered, SeverityWarning, OutcomeFailure,
		ResourceUsage, principal, CategoryUsage, nil,
		"required", required.String(),
		"storage_balance", balance.String(),
	)
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransfer implements plugin.OnTransfer.
func (e *Extension) OnTransfer(ctx context.Context, t *transfer.Transfer) error {
	return e.record(ctx, ActionTransfer, SeverityInfo, OutcomeSuccess,
		ResourceTransfer, t.ID.String(), CategoryPayment, nil,
		"to", t.To,
		"amount", t.Amount.String(),
		"kind", string(t.Kind),
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewAuditEventID(),
		Timestamp:  time.Now().UTC(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
