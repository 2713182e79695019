// Package sqrtmath converts between ticks and Q64.96 sqrt prices and computes single swap steps.
package sqrtmath

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	ErrTickOutOfRange      = errors.New("tick out of range")
	ErrSqrtPriceOutOfRange = errors.New("sqrt price out of range")
	ErrSqrtPriceOverflow   = errors.New("sqrt price overflow")
	ErrZeroSqrtPrice       = errors.New("sqrt price is zero")
	ErrZeroLiquidity       = errors.New("liquidity is zero")
	ErrPriceUnderflow      = errors.New("price moved past zero")
)

var (
	// MinSqrtRatio is SqrtRatioAtTick(MinTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	// MaxSqrtRatio is SqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")
)

// sqrt(1.0001^-(2^i)) in Q128.128, indexed by bit position of |tick|.
var tickRatios = [20]*uint256.Int{
	uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
	uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
	uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
	uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
	uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
	uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
	uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
	uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
	uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
	uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
	uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
	uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
	uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
	uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
	uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
	uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
}

var (
	q128       = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	maxUint256 = new(uint256.Int).SetAllOne()
	low32Mask  = uint256.NewInt(0xffffffff)
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96, rounded up.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfRange
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(tickRatios[0])
	} else {
		ratio.Set(q128)
	}
	for i := 1; i < len(tickRatios); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, tickRatios[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	rounding := new(uint256.Int).And(ratio, low32Mask)
	ratio.Rsh(ratio, 32)
	if !rounding.IsZero() {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is less than or equal to sqrtPriceX96.
func TickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int32, error) {
	if sqrtPriceX96.Lt(MinSqrtRatio) || !sqrtPriceX96.Lt(MaxSqrtRatio) {
		return 0, ErrSqrtPriceOutOfRange
	}

	low, high := MinTick, MaxTick
	tick := MinTick
	for low <= high {
		mid := low + (high-low)/2
		ratio, err := SqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return tick, nil
}
