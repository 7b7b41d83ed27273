package domain

import (
	"fmt"
	"math/big"
	"regexp"
)

// amountPattern matches a non-negative base-10 integer with no sign, no
// decimal point, and no leading whitespace. Amounts always arrive as exact
// smallest-unit integers; binary floating point is rejected at the boundary.
var amountPattern = regexp.MustCompile(`^[0-9]+$`)

// Amount is an exact fixed-point token or payment amount expressed in
// smallest base units (e.g. 18-decimal wei-style units). It is backed by
// big.Int so that tier allocations up to numeric(78,0) never lose precision.
// The zero value is usable and equals zero. All operations return a new
// Amount and never mutate the receiver.
type Amount struct {
	v *big.Int
}

// NewAmount creates an Amount from a non-negative int64.
func NewAmount(v int64) Amount {
	return Amount{v: big.NewInt(v)}
}

// ParseAmount parses a smallest-unit decimal string into an Amount.
// Only plain non-negative integers are accepted.
func ParseAmount(s string) (Amount, error) {
	if !amountPattern.MatchString(s) {
		return Amount{}, fmt.Errorf("invalid amount %q: must be a non-negative integer in base units", s)
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}

	return Amount{v: v}, nil
}

// MustAmount parses a smallest-unit decimal string and panics on failure.
// Intended for seed data and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// bigValue returns the underlying big.Int, treating the zero value as 0.
func (a Amount) bigValue() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.bigValue(), b.bigValue())}
}

// Sub returns a - b. The result may be negative; callers that require
// non-negative amounts must check Sign.
func (a Amount) Sub(b Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.bigValue(), b.bigValue())}
}

// Mul returns a * b.
func (a Amount) Mul(b Amount) Amount {
	return Amount{v: new(big.Int).Mul(a.bigValue(), b.bigValue())}
}

// Cmp compares a and b: -1 if a < b, 0 if equal, 1 if a > b.
func (a Amount) Cmp(b Amount) int {
	return a.bigValue().Cmp(b.bigValue())
}

// Sign returns -1, 0, or 1 depending on the sign of the amount.
func (a Amount) Sign() int {
	return a.bigValue().Sign()
}

// IsZero reports whether the amount equals zero.
func (a Amount) IsZero() bool {
	return a.bigValue().Sign() == 0
}

// PercentFloor returns a * pct / 100 rounded down to the smallest unit.
// Rounding down guarantees a percentage carve-out can never exceed the whole.
func (a Amount) PercentFloor(pct int) Amount {
	if pct <= 0 {
		return NewAmount(0)
	}

	v := new(big.Int).Mul(a.bigValue(), big.NewInt(int64(pct)))
	return Amount{v: v.Div(v, big.NewInt(100))}
}

// MulDivFloor returns a * mul / div rounded down. div must be positive.
func (a Amount) MulDivFloor(mul, div int64) Amount {
	v := new(big.Int).Mul(a.bigValue(), big.NewInt(mul))
	return Amount{v: v.Div(v, big.NewInt(div))}
}

// String renders the amount as a base-10 smallest-unit integer.
func (a Amount) String() string {
	return a.bigValue().String()
}

// MarshalJSON encodes the amount as a JSON string to avoid any numeric
// precision loss in transit.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes an amount from a JSON string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid amount JSON %s: expected a string", string(data))
	}

	parsed, err := ParseAmount(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}

	*a = parsed
	return nil
}
