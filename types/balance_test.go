package types

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
)

func TestBalanceArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() (Balance, error)
		expected string
		err      error
	}{
		{"Add", func() (Balance, error) { return NewBalance(100).Add(NewBalance(200)) }, "300", nil},
		{"Sub", func() (Balance, error) { return NewBalance(500).Sub(NewBalance(200)) }, "300", nil},
		{"Sub to zero", func() (Balance, error) { return NewBalance(7).Sub(NewBalance(7)) }, "0", nil},
		{"Sub underflow", func() (Balance, error) { return NewBalance(1).Sub(NewBalance(2)) }, "", ErrUnderflow},
		{"Add overflow", func() (Balance, error) { return MaxBalance().Add(NewBalance(1)) }, "", ErrOverflow},
		{"MulBytes", func() (Balance, error) { return NewBalance(100).MulBytes(5000) }, "500000", nil},
		{"MulBytes zero bytes", func() (Balance, error) { return MaxBalance().MulBytes(0) }, "0", nil},
		{"MulBytes overflow", func() (Balance, error) { return MaxBalance().MulBytes(2) }, "", ErrOverflow},
		{"MulBytes beyond uint64", func() (Balance, error) {
			return MustParseBalance("10000000000000000000").MulBytes(2000)
		}, "20000000000000000000000", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op()
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestBalanceComparison(t *testing.T) {
	a, b := NewBalance(10), NewBalance(20)

	if !a.LessThan(b) || a.GreaterThan(b) {
		t.Error("expected 10 < 20")
	}
	if a.Cmp(a) != 0 || !a.Equal(NewBalance(10)) {
		t.Error("expected 10 == 10")
	}
	if !ZeroBalance().IsZero() || a.IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestParseBalance(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"0", false},
		{"340282366920938463463374607431768211455", false},
		{"340282366920938463463374607431768211456", true},
		{"-1", true},
		{"", true},
		{"12ab", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			b, err := ParseBalance(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", b)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if b.String() != tt.input {
				t.Errorf("got %s, want %s", b, tt.input)
			}
		})
	}
}

func TestBalanceFromBig(t *testing.T) {
	if _, err := BalanceFromBig(big.NewInt(-1)); !errors.Is(err, ErrUnderflow) {
		t.Errorf("expected underflow, got %v", err)
	}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 128)
	if _, err := BalanceFromBig(tooBig); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
	b, err := BalanceFromBig(big.NewInt(42))
	if err != nil || b.String() != "42" {
		t.Errorf("got %s, %v", b, err)
	}
}

func TestBalanceJSON(t *testing.T) {
	data, err := json.Marshal(MustParseBalance("20000000000000000000000"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"20000000000000000000000"` {
		t.Errorf("got %s", data)
	}

	var fromNumber Balance
	if err := json.Unmarshal([]byte(`1500`), &fromNumber); err != nil {
		t.Fatalf("unmarshal number failed: %v", err)
	}
	if fromNumber.String() != "1500" {
		t.Errorf("got %s", fromNumber)
	}
}

func TestSum(t *testing.T) {
	total, err := Sum(NewBalance(1), NewBalance(2), NewBalance(3))
	if err != nil || total.String() != "6" {
		t.Errorf("got %s, %v", total, err)
	}
	if _, err := Sum(MaxBalance(), NewBalance(1)); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}
