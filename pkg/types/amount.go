// Package types defines the shared data model for the arena protocol:
// wei-denominated amounts, stake records, and replicated player state.
package types

import (
	"fmt"
	"math/big"
	"strings"
)

// WeiPerEther is the number of wei in one whole coin (18 decimals).
var WeiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Amount is a non-negative value denominated in wei. The zero value is zero
// wei and is ready to use. Amounts are immutable; arithmetic returns copies.
type Amount struct {
	wei *big.Int
}

// NewAmount creates an Amount from a wei value. The input is copied.
// A nil or negative input yields the zero amount.
func NewAmount(wei *big.Int) Amount {
	if wei == nil || wei.Sign() < 0 {
		return Amount{}
	}
	return Amount{wei: new(big.Int).Set(wei)}
}

// ParseEther parses a decimal coin amount ("0.1", "2", ".04") into wei.
// At most 18 fractional digits are allowed.
func ParseEther(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, fmt.Errorf("negative amount %q", s)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 18 {
		return Amount{}, fmt.Errorf("amount %q has more than 18 decimal places", s)
	}
	// Pad the fraction to exactly 18 digits so whole+frac is a wei integer.
	frac = frac + strings.Repeat("0", 18-len(frac))

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return Amount{wei: wei}, nil
}

// MustParseEther is ParseEther that panics on error. For constants and tests.
func MustParseEther(s string) Amount {
	a, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Wei returns a copy of the underlying wei value.
func (a Amount) Wei() *big.Int {
	if a.wei == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.wei)
}

// Ether formats the amount as a trimmed decimal coin string ("0.04", "1").
func (a Amount) Ether() string {
	wei := a.Wei()
	whole, rem := new(big.Int).QuoRem(wei, WeiPerEther, new(big.Int))
	if rem.Sign() == 0 {
		return whole.String()
	}
	frac := fmt.Sprintf("%018s", rem.String())
	frac = strings.TrimRight(frac, "0")
	return whole.String() + "." + frac
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{wei: new(big.Int).Add(a.Wei(), b.Wei())}
}

// Cmp compares a and b: -1 if a < b, 0 if equal, +1 if a > b.
func (a Amount) Cmp(b Amount) int {
	return a.Wei().Cmp(b.Wei())
}

// IsZero reports whether the amount is zero wei.
func (a Amount) IsZero() bool {
	return a.wei == nil || a.wei.Sign() == 0
}

// String implements fmt.Stringer.
func (a Amount) String() string {
	return a.Ether()
}

// MarshalJSON encodes the amount as a decimal wei string. Wei strings survive
// replication between peers without float rounding.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Wei().String() + `"`), nil
}

// UnmarshalJSON decodes a decimal wei string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	wei, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid wei amount %q", s)
	}
	if wei.Sign() < 0 {
		return fmt.Errorf("negative wei amount %q", s)
	}
	a.wei = wei
	return nil
}
