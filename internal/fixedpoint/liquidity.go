package fixedpoint

import "github.com/holiman/uint256"

// Liquidity deltas are int128 values carried in two's complement inside a uint256.Int.

// NewDelta builds a signed liquidity delta from an unsigned amount.
func NewDelta(amount *uint256.Int, negative bool) (*uint256.Int, error) {
	if amount.Gt(MaxInt128) {
		return nil, ErrLiquidityOverflow
	}
	d := new(uint256.Int).Set(amount)
	if negative {
		d.Neg(d)
	}
	return d, nil
}

var minInt128Magnitude = new(uint256.Int).Lsh(uint256.NewInt(1), 127)

// FitsInt128 reports whether a two's complement value lies in [-2^127, 2^127-1]. Stored
// LiquidityNet values use this range; deltas built by NewDelta never reach -2^127.
func FitsInt128(v *uint256.Int) bool {
	if !IsNegative(v) {
		return !v.Gt(MaxInt128)
	}
	return !Magnitude(v).Gt(minInt128Magnitude)
}

// IsNegative reports whether a two's complement delta is below zero.
func IsNegative(delta *uint256.Int) bool {
	return delta.Sign() < 0
}

// Magnitude returns |delta|.
func Magnitude(delta *uint256.Int) *uint256.Int {
	return new(uint256.Int).Abs(delta)
}

// AddDelta applies a signed delta to an unsigned uint128 liquidity value.
func AddDelta(x, delta *uint256.Int) (*uint256.Int, error) {
	if IsNegative(delta) {
		abs := Magnitude(delta)
		if abs.Gt(x) {
			return nil, ErrInsufficientLiquidity
		}
		return new(uint256.Int).Sub(x, abs), nil
	}
	z := new(uint256.Int).Add(x, delta)
	if z.Gt(MaxUint128) || z.Lt(x) {
		return nil, ErrLiquidityOverflow
	}
	return z, nil
}
