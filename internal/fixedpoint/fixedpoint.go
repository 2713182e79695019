// Package fixedpoint implements the wrapping X128 arithmetic used by fee-growth accumulators.
//
// Values live in the ring of unsigned 256-bit integers. Addition and subtraction wrap modulo
// 2^256; overflow of an accumulator is expected and deltas stay correct as long as fewer than
// 2^256 units of growth accrue between two observations.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrZeroLiquidityDivision = errors.New("division by zero liquidity")
	ErrDivisionByZero        = errors.New("division by zero")
	ErrMulDivOverflow        = errors.New("mul div overflow")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrLiquidityOverflow     = errors.New("liquidity overflow")
)

var (
	// Q96 is 2^96, the scale of sqrt prices.
	Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	// Q128 is 2^128, the scale of fee growth values.
	Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	MaxUint128 = new(uint256.Int).Sub(Q128, uint256.NewInt(1))
	MaxUint160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))
	// MaxInt128 bounds the magnitude of a signed liquidity delta.
	MaxInt128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 127), uint256.NewInt(1))
)

// WrappingAdd returns (a + b) mod 2^256.
func WrappingAdd(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Add(a, b)
}

// WrappingSub returns (a - b) mod 2^256.
func WrappingSub(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sub(a, b)
}

// SettleDelta returns the growth accrued between a snapshot and a later observation.
func SettleDelta(last, current *uint256.Int) *uint256.Int {
	return WrappingSub(current, last)
}

// MulDiv returns floor(a * b / d) computed with a 512-bit intermediate product.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	if a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrMulDivOverflow
	}
	return z, nil
}

// MulDivRoundingUp returns ceil(a * b / d).
func MulDivRoundingUp(a, b, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, d).IsZero() {
		return z, nil
	}
	if z.Eq(maxUint256) {
		return nil, ErrMulDivOverflow
	}
	return z.AddUint64(z, 1), nil
}

// DivRoundingUp returns ceil(a / d).
func DivRoundingUp(a, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, rem := new(uint256.Int).DivMod(a, d, new(uint256.Int))
	if !rem.IsZero() {
		z.AddUint64(z, 1)
	}
	return z, nil
}

// GrowthPerLiquidity converts a fee amount into X128 growth per unit of liquidity.
func GrowthPerLiquidity(fee, liquidity *uint256.Int) (*uint256.Int, error) {
	if liquidity.IsZero() {
		return nil, ErrZeroLiquidityDivision
	}
	return MulDiv(fee, Q128, liquidity)
}

// AccruedFees converts an X128 growth delta into a token amount for the given liquidity.
func AccruedFees(growthDelta, liquidity *uint256.Int) *uint256.Int {
	z, err := MulDiv(growthDelta, liquidity, Q128)
	if err != nil {
		// growthDelta < 2^256 and liquidity < 2^128, so the quotient always fits.
		panic(err)
	}
	return z
}

// TruncateUint128 keeps the low 128 bits of x.
func TruncateUint128(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).And(x, MaxUint128)
}

// AddUint128 returns (a + b) mod 2^128.
func AddUint128(a, b *uint256.Int) *uint256.Int {
	z := new(uint256.Int).Add(a, b)
	return z.And(z, MaxUint128)
}

var maxUint256 = new(uint256.Int).SetAllOne()
