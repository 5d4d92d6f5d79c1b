package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"lukechampine.com/uint128"
)

var (
	// ErrOverflow is returned when an arithmetic result does not fit in 128 bits.
	ErrOverflow = errors.New("balance: overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("balance: underflow")
)

// Balance is an unsigned 128-bit amount in the smallest unit of value.
// All arithmetic is checked; nothing wraps silently.
//
// Balances encode to JSON and text as decimal strings, since 128-bit
// values do not survive a round trip through JSON numbers.
//
//nolint:recvcheck // Value receivers for arithmetic, pointer receivers for decoding.
type Balance struct {
	v uint128.Uint128
}

// NewBalance creates a Balance from a uint64 amount.
func NewBalance(amount uint64) Balance { return Balance{v: uint128.From64(amount)} }

// ZeroBalance returns the zero Balance.
func ZeroBalance() Balance { return Balance{} }

// MaxBalance returns the largest representable Balance.
func MaxBalance() Balance { return Balance{v: uint128.Max} }

// ParseBalance parses a base-10 string into a Balance.
func ParseBalance(s string) (Balance, error) {
	if s == "" {
		return Balance{}, fmt.Errorf("balance: parse %q: empty string", s)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return Balance{}, fmt.Errorf("balance: parse %q: invalid digit %q", s, c)
		}
	}
	v, err := uint128.FromString(s)
	if err != nil {
		return Balance{}, fmt.Errorf("balance: parse %q: %w", s, err)
	}
	return Balance{v: v}, nil
}

// MustParseBalance is like ParseBalance but panics on error.
func MustParseBalance(s string) Balance {
	b, err := ParseBalance(s)
	if err != nil {
		panic(err)
	}
	return b
}

// BalanceFromBig converts a non-negative big.Int that fits in 128 bits.
func BalanceFromBig(i *big.Int) (Balance, error) {
	if i.Sign() < 0 {
		return Balance{}, ErrUnderflow
	}
	if i.BitLen() > 128 {
		return Balance{}, ErrOverflow
	}
	return Balance{v: uint128.FromBig(new(big.Int).Set(i))}, nil
}

// Add returns b + other, or ErrOverflow.
func (b Balance) Add(other Balance) (Balance, error) {
	sum := b.v.AddWrap(other.v)
	if sum.Cmp(b.v) < 0 {
		return Balance{}, ErrOverflow
	}
	return Balance{v: sum}, nil
}

// Sub returns b - other, or ErrUnderflow when other > b.
func (b Balance) Sub(other Balance) (Balance, error) {
	if b.v.Cmp(other.v) < 0 {
		return Balance{}, ErrUnderflow
	}
	return Balance{v: b.v.Sub(other.v)}, nil
}

// MulBytes returns the price of n bytes when b is the per-byte cost.
func (b Balance) MulBytes(n uint64) (Balance, error) {
	if n == 0 || b.v.IsZero() {
		return Balance{}, nil
	}
	if b.v.Cmp(uint128.Max.Div64(n)) > 0 {
		return Balance{}, ErrOverflow
	}
	return Balance{v: b.v.Mul64(n)}, nil
}

// Cmp compares b and other and returns -1, 0 or +1.
func (b Balance) Cmp(other Balance) int { return b.v.Cmp(other.v) }

// IsZero returns true if the amount is zero.
func (b Balance) IsZero() bool { return b.v.IsZero() }

// Equal returns true if both amounts are equal.
func (b Balance) Equal(other Balance) bool { return b.v.Equals(other.v) }

// LessThan returns true if b < other.
func (b Balance) LessThan(other Balance) bool { return b.v.Cmp(other.v) < 0 }

// GreaterThan returns true if b > other.
func (b Balance) GreaterThan(other Balance) bool { return b.v.Cmp(other.v) > 0 }

// Big returns the amount as a big.Int.
func (b Balance) Big() *big.Int { return b.v.Big() }

// Float64 returns an approximation of the amount, for metrics only.
func (b Balance) Float64() float64 {
	f, _ := new(big.Float).SetInt(b.v.Big()).Float64()
	return f
}

// String returns the base-10 representation.
func (b Balance) String() string { return b.v.String() }

// MarshalText implements encoding.TextMarshaler.
func (b Balance) MarshalText() ([]byte, error) {
	return []byte(b.v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Balance) UnmarshalText(data []byte) error {
	parsed, err := ParseBalance(string(data))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// MarshalJSON encodes the balance as a quoted decimal string.
func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.v.String())
}

// UnmarshalJSON accepts a quoted decimal string or a bare JSON number.
func (b *Balance) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if numErr := json.Unmarshal(data, &n); numErr != nil {
			return fmt.Errorf("balance: decode %s: %w", data, err)
		}
		s = n.String()
	}
	return b.UnmarshalText([]byte(s))
}

// Sum adds all values, failing on overflow.
func Sum(values ...Balance) (Balance, error) {
	var total Balance
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Balance{}, err
		}
	}
	return total, nil
}
