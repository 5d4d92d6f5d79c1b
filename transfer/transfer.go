// Package transfer describes value moved from escrow back to a principal and
// the payment primitive that carries it out.
package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/types"
)

// Kind classifies why value leaves escrow.
type Kind string

const (
	// KindRefund returns the excess of a registration-only deposit.
	KindRefund Kind = "refund"
	// KindWithdrawal pays out a requested withdrawal.
	KindWithdrawal Kind = "withdrawal"
	// KindUnregister returns the free balance of an unregistered principal.
	KindUnregister Kind = "unregister"
)

// Transfer is one outgoing payment.
type Transfer struct {
	ID        id.TransferID `json:"id"`
	To        string        `json:"to"`
	Amount    types.Balance `json:"amount"`
	Kind      Kind          `json:"kind"`
	CreatedAt time.Time     `json:"created_at"`
}

// New creates a transfer with a fresh ID.
func New(to string, amount types.Balance, kind Kind) *Transfer {
	return &Transfer{
		ID:        id.NewTransferID(),
		To:        to,
		Amount:    amount,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// Payer moves value to a principal. Pay either succeeds or reports an error,
// in which case the calling operation is rolled back.
type Payer interface {
	Pay(ctx context.Context, t *Transfer) error
}

// PayerFunc adapts a plain function to a Payer.
type PayerFunc func(ctx context.Context, t *Transfer) error

// Pay implements Payer.
func (f PayerFunc) Pay(ctx context.Context, t *Transfer) error { return f(ctx, t) }

// Recorder is an in-process Payer that keeps every transfer it was asked to
// make. It never fails.
type Recorder struct {
	mu        sync.Mutex
	transfers []*Transfer
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Pay implements Payer.
func (r *Recorder) Pay(_ context.Context, t *Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, t)
	return nil
}

// Transfers returns the recorded transfers in order.
func (r *Recorder) Transfers() []*Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Transfer, len(r.transfers))
	copy(out, r.transfers)
	return out
}

// TotalTo sums everything paid to principal. It fails if the sum does not
// fit in a Balance.
func (r *Recorder) TotalTo(principal string) (types.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var amounts []types.Balance
	for _, t := range r.transfers {
		if t.To == principal {
			amounts = append(amounts, t.Amount)
		}
	}
	return types.Sum(amounts...)
}

// Reset forgets all recorded transfers.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = nil
}

// Store keeps a log of completed transfers.
type Store interface {
	// RecordTransfer appends t to the log.
	RecordTransfer(ctx context.Context, t *Transfer) error

	// ListTransfers returns up to limit transfers to principal, newest first.
	// A limit of zero means no limit.
	ListTransfers(ctx context.Context, principal string, limit int) ([]*Transfer, error)
}
