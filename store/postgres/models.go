package postgres

import (
	"fmt"
	"math"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/transfer"
	"github.com/xraph/escrow/types"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:escrow_accounts"`

	Principal      string    `grove:"principal,pk"`
	StorageBalance string    `grove:"storage_balance"`
	UsedBytes      int64     `grove:"used_bytes"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) (*accountModel, error) {
	if a.UsedBytes > math.MaxInt64 {
		return nil, fmt.Errorf("escrow/postgres: used bytes %d exceed column range", a.UsedBytes)
	}
	return &accountModel{
		Principal:      a.Principal,
		StorageBalance: a.StorageBalance.String(),
		UsedBytes:      int64(a.UsedBytes),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}, nil
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	balance, err := types.ParseBalance(m.StorageBalance)
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: account %q: %w", m.Principal, err)
	}
	a := &account.Account{
		Principal:      m.Principal,
		StorageBalance: balance,
		UsedBytes:      uint64(m.UsedBytes),
	}
	a.CreatedAt = m.CreatedAt
	a.UpdatedAt = m.UpdatedAt
	return a, nil
}

// ==================== Transfer models ====================

type transferModel struct {
	grove.BaseModel `grove:"table:escrow_transfers"`

	ID        string    `grove:"id,pk"`
	Recipient string    `grove:"recipient"`
	Amount    string    `grove:"amount"`
	Kind      string    `grove:"kind"`
	CreatedAt time.Time `grove:"created_at"`
}

func toTransferModel(t *transfer.Transfer) *transferModel {
	return &transferModel{
		ID:        t.ID.String(),
		Recipient: t.To,
		Amount:    t.Amount.String(),
		Kind:      string(t.Kind),
		CreatedAt: t.CreatedAt,
	}
}

func fromTransferModel(m *transferModel) (*transfer.Transfer, error) {
	tid, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseBalance(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("escrow/postgres: transfer %s: %w", m.ID, err)
	}
	return &transfer.Transfer{
		ID:        tid,
		To:        m.Recipient,
		Amount:    amount,
		Kind:      transfer.Kind(m.Kind),
		CreatedAt: m.CreatedAt,
	}, nil
}
