// Package numeric provides the exact rational amounts stored in ledger
// columns and metadata frames.
package numeric

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Numeric is an exact rational number num/denom. The denominator is kept
// as supplied (not reduced) so that a commodity's smallest fraction survives
// a round trip; comparison is by value.
type Numeric struct {
	Num   int64
	Denom int64
}

// Zero is 0/1.
var Zero = Numeric{Num: 0, Denom: 1}

// New returns num/denom.
func New(num, denom int64) Numeric {
	return Numeric{Num: num, Denom: denom}
}

// FromInt returns n/1.
func FromInt(n int64) Numeric {
	return Numeric{Num: n, Denom: 1}
}

// Valid reports whether the denominator is non-zero.
func (n Numeric) Valid() bool {
	return n.Denom != 0
}

// IsZero reports whether the value is zero.
func (n Numeric) IsZero() bool {
	return n.Num == 0 && n.Valid()
}

// Rat returns the value as a big.Rat. Invalid values map to zero.
func (n Numeric) Rat() *big.Rat {
	if !n.Valid() {
		return new(big.Rat)
	}
	return big.NewRat(n.Num, n.Denom)
}

// Neg returns -n with the same denominator.
func (n Numeric) Neg() Numeric {
	return Numeric{Num: -n.Num, Denom: n.Denom}
}

// Add returns n+m. When denominators match the result keeps them;
// otherwise the sum is reduced.
func (n Numeric) Add(m Numeric) (Numeric, error) {
	if n.Denom == m.Denom && n.Valid() {
		return Numeric{Num: n.Num + m.Num, Denom: n.Denom}, nil
	}
	sum := new(big.Rat).Add(n.Rat(), m.Rat())
	if !sum.Num().IsInt64() || !sum.Denom().IsInt64() {
		return Zero, fmt.Errorf("numeric: overflow adding %s and %s", n, m)
	}
	return Numeric{Num: sum.Num().Int64(), Denom: sum.Denom().Int64()}, nil
}

// Compare orders by value, returning -1, 0 or +1. Cross multiplication is
// done in arbitrary precision so large denominators do not overflow.
func Compare(a, b Numeric) int {
	return a.Rat().Cmp(b.Rat())
}

// Equal reports value equality (1/2 equals 2/4).
func (n Numeric) Equal(m Numeric) bool {
	return Compare(n, m) == 0
}

// Float64 returns the nearest float64.
func (n Numeric) Float64() float64 {
	f, _ := n.Rat().Float64()
	return f
}

// String renders "num/denom".
func (n Numeric) String() string {
	return strconv.FormatInt(n.Num, 10) + "/" + strconv.FormatInt(n.Denom, 10)
}

// Parse reads the "num/denom" form produced by String. A bare integer is
// accepted as n/1.
func Parse(s string) (Numeric, error) {
	num, denom, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("numeric: parse %q: %w", s, err)
	}
	if !found {
		return FromInt(n), nil
	}
	d, err := strconv.ParseInt(denom, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("numeric: parse %q: %w", s, err)
	}
	if d == 0 {
		return Zero, fmt.Errorf("numeric: parse %q: zero denominator", s)
	}
	return Numeric{Num: n, Denom: d}, nil
}
