package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

func TestSettleDeltaMatchesModularDifference(t *testing.T) {
	maxU := new(uint256.Int).SetAllOne()
	cases := []struct {
		name    string
		last    *uint256.Int
		current *uint256.Int
	}{
		{"no growth", uint256.NewInt(42), uint256.NewInt(42)},
		{"plain growth", uint256.NewInt(100), uint256.NewInt(250)},
		{"wrapped past max", new(uint256.Int).Sub(maxU, uint256.NewInt(9)), uint256.NewInt(5)},
		{"snapshot near max, current zero", maxU, new(uint256.Int)},
		{"snapshot taken negative", new(uint256.Int).Neg(uint256.NewInt(1000)), uint256.NewInt(3000)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want := new(big.Int).Sub(tc.current.ToBig(), tc.last.ToBig())
			want.Mod(want, two256)
			got := SettleDelta(tc.last, tc.current)
			assert.Equal(t, 0, got.ToBig().Cmp(want), "got %s want %s", got, want)
		})
	}

	wrapped := SettleDelta(new(uint256.Int).Sub(maxU, uint256.NewInt(9)), uint256.NewInt(5))
	assert.Equal(t, uint64(15), wrapped.Uint64())
}

func TestSettleDeltaAfterAccumulatorWraps(t *testing.T) {
	start := new(uint256.Int).Sub(new(uint256.Int).SetAllOne(), uint256.NewInt(499))
	acc := new(uint256.Int).Set(start)
	for i := 0; i < 10; i++ {
		acc = WrappingAdd(acc, uint256.NewInt(100))
	}
	require.True(t, acc.Lt(start), "accumulator should have wrapped")
	assert.Equal(t, uint64(1000), SettleDelta(start, acc).Uint64())
}

func TestSettleDeltaMultiWrapIsAmbiguous(t *testing.T) {
	// Growth of 2^256 + 7 between two settlements is indistinguishable from growth of 7.
	last := uint256.NewInt(11)
	current := new(uint256.Int).Set(last)
	current = WrappingAdd(current, new(uint256.Int).SetAllOne())
	current = WrappingAdd(current, uint256.NewInt(8))
	assert.Equal(t, uint64(7), SettleDelta(last, current).Uint64())
}

func TestMulDivUsesWideIntermediate(t *testing.T) {
	// growth near 2^256 times liquidity near 2^128 overflows 256 bits before the shift.
	growth := new(uint256.Int).Sub(new(uint256.Int).SetAllOne(), uint256.NewInt(3))
	liquidity := new(uint256.Int).Set(MaxUint128)

	got := AccruedFees(growth, liquidity)

	want := new(big.Int).Mul(growth.ToBig(), liquidity.ToBig())
	want.Rsh(want, 128)
	assert.Equal(t, 0, got.ToBig().Cmp(want))
}

func TestMulDivRoundingUp(t *testing.T) {
	z, err := MulDivRoundingUp(uint256.NewInt(10), uint256.NewInt(3), uint256.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(8), z.Uint64())

	z, err = MulDivRoundingUp(uint256.NewInt(8), uint256.NewInt(3), uint256.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), z.Uint64())

	_, err = MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int))
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = MulDiv(new(uint256.Int).SetAllOne(), new(uint256.Int).SetAllOne(), uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrMulDivOverflow)
}

func TestDivRoundingUp(t *testing.T) {
	z, err := DivRoundingUp(uint256.NewInt(7), uint256.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), z.Uint64())

	z, err = DivRoundingUp(uint256.NewInt(8), uint256.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), z.Uint64())
}

func TestGrowthPerLiquidityGuardsZero(t *testing.T) {
	_, err := GrowthPerLiquidity(uint256.NewInt(100), new(uint256.Int))
	assert.ErrorIs(t, err, ErrZeroLiquidityDivision)

	g, err := GrowthPerLiquidity(uint256.NewInt(100), uint256.NewInt(4))
	require.NoError(t, err)
	assert.True(t, g.Eq(new(uint256.Int).Mul(uint256.NewInt(25), Q128)))
	assert.Equal(t, uint64(100), AccruedFees(g, uint256.NewInt(4)).Uint64())
}

func TestAddDelta(t *testing.T) {
	neg, err := NewDelta(uint256.NewInt(30), true)
	require.NoError(t, err)
	assert.True(t, IsNegative(neg))

	z, err := AddDelta(uint256.NewInt(100), neg)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), z.Uint64())

	_, err = AddDelta(uint256.NewInt(10), neg)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	pos, err := NewDelta(MaxInt128, false)
	require.NoError(t, err)
	_, err = AddDelta(MaxUint128, pos)
	assert.ErrorIs(t, err, ErrLiquidityOverflow)

	_, err = NewDelta(MaxUint128, false)
	assert.ErrorIs(t, err, ErrLiquidityOverflow)
}

func TestFitsInt128(t *testing.T) {
	minInt128 := new(uint256.Int).Neg(new(uint256.Int).Lsh(uint256.NewInt(1), 127))
	assert.True(t, FitsInt128(MaxInt128))
	assert.True(t, FitsInt128(minInt128))
	assert.True(t, FitsInt128(new(uint256.Int)))
	assert.False(t, FitsInt128(new(uint256.Int).AddUint64(MaxInt128, 1)))
	assert.False(t, FitsInt128(new(uint256.Int).SubUint64(minInt128, 1)))

	// NewDelta stays one short of the stored range
	_, err := NewDelta(Magnitude(minInt128), true)
	assert.ErrorIs(t, err, ErrLiquidityOverflow)
}

func TestAddUint128Wraps(t *testing.T) {
	z := AddUint128(MaxUint128, uint256.NewInt(2))
	assert.Equal(t, uint64(1), z.Uint64())
	assert.True(t, TruncateUint128(new(uint256.Int).Add(Q128, uint256.NewInt(5))).Eq(uint256.NewInt(5)))
}
