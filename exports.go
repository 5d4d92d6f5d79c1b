package escrow

import (
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/types"
)

// Re-export common types for convenience so users don't have to import the
// types and account packages.

// Balance is re-exported from types package.
type Balance = types.Balance

// Entity is re-exported from types package.
type Entity = types.Entity

// Account is re-exported from account package.
type Account = account.Account

// StorageBalance is re-exported from account package.
type StorageBalance = account.StorageBalance

// Bounds is re-exported from account package.
type Bounds = account.Bounds

// Re-export Balance constructors
var (
	NewBalance   = types.NewBalance
	ParseBalance = types.ParseBalance
	ZeroBalance  = types.ZeroBalance
	Sum          = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
