package types

import (
	"fmt"
	"math"
)

// Amount is a fixed-point monetary value in micro-dollars
// (1_000_000 == $1.00). All budget arithmetic is integer arithmetic;
// floats appear only at presentation boundaries.
type Amount int64

// MicrosPerDollar is the scaling factor between Amount and dollars.
const MicrosPerDollar = 1_000_000

// AmountFromDollars converts a dollar value to an Amount, rounding to
// the nearest micro-dollar.
func AmountFromDollars(d float64) Amount {
	return Amount(math.Round(d * MicrosPerDollar))
}

// Dollars returns the amount as a float64 dollar value.
func (a Amount) Dollars() float64 {
	return float64(a) / MicrosPerDollar
}

// Mul returns the amount multiplied by an integer count.
func (a Amount) Mul(n int) Amount {
	return a * Amount(n)
}

// String formats the amount as a dollar string, e.g. "$0.040000".
func (a Amount) String() string {
	if a < 0 {
		return fmt.Sprintf("-$%.6f", float64(-a)/MicrosPerDollar)
	}
	return fmt.Sprintf("$%.6f", float64(a)/MicrosPerDollar)
}
