package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountRegistered   = "account.registered"
	ActionAccountUnregistered = "account.unregistered"
	ActionStorageOrphaned     = "storage.orphaned"

	// Balance actions
	ActionDeposit  = "balance.deposit"
	ActionWithdraw = "balance.withdraw"

	// Usage actions
	ActionUsageReconciled   = "usage.reconciled"
	ActionStorageNotCovered = "usage.not_covered"

	// Transfer actions
	ActionTransfer = "transfer.sent"
)

// Resource constants for audit events.
const (
	ResourceAccount  = "account"
	ResourceUsage    = "usage"
	ResourceTransfer = "transfer"
)

// Category constants for audit events.
const (
	CategoryAccount = "account"
	CategoryBalance = "balance"
	CategoryUsage   = "usage"
	CategoryPayment = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
