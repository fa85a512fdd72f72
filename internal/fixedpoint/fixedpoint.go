package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"

	"github.com/shopspring/decimal"
)

var (
	// ErrOverflow is returned when a result does not fit in 64 bits.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("arithmetic underflow")

	// ErrInexact is returned when a smallest-unit amount is not a whole
	// number of display units.
	ErrInexact = errors.New("amount is not a whole display unit")
)

// MaxDecimals is the largest exponent for which 10^decimals fits in a uint64.
const MaxDecimals = 19

// Pow10 returns 10^decimals.
func Pow10(decimals uint8) (uint64, error) {
	if decimals > MaxDecimals {
		return 0, fmt.Errorf("%w: 10^%d", ErrOverflow, decimals)
	}
	result := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		result *= 10
	}
	return result, nil
}

// ToSmallestUnit converts a display amount to smallest units.
func ToSmallestUnit(display uint64, decimals uint8) (uint64, error) {
	if display == 0 {
		return 0, nil
	}
	scale, err := Pow10(decimals)
	if err != nil {
		return 0, err
	}
	return Mul(display, scale)
}

// FromSmallestUnit converts smallest units back to a whole display amount.
func FromSmallestUnit(smallest uint64, decimals uint8) (uint64, error) {
	if smallest == 0 {
		return 0, nil
	}
	scale, err := Pow10(decimals)
	if err != nil {
		// 10^decimals exceeds any uint64, so only zero is a whole amount.
		return 0, fmt.Errorf("%w: %d at %d decimals", ErrInexact, smallest, decimals)
	}
	if smallest%scale != 0 {
		return 0, fmt.Errorf("%w: %d at %d decimals", ErrInexact, smallest, decimals)
	}
	return smallest / scale, nil
}

// ToDecimal returns smallest units as a decimal display value.
func ToDecimal(smallest uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(smallest), -int32(decimals))
}

// Format renders smallest units as a display string with exactly decimals
// fractional digits (e.g. 1500 at 3 decimals is "1.500").
func Format(smallest uint64, decimals uint8) string {
	return ToDecimal(smallest, decimals).StringFixed(int32(decimals))
}

// Add returns a + b.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// Sub returns a - b.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrUnderflow, a, b)
	}
	return diff, nil
}

// Mul returns a * b.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return lo, nil
}
