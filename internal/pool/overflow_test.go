package pool

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A position minted while the price is above its range snapshots an inside growth that has
// wrapped below zero. After the price returns through the range the position must be paid
// the same growth per unit of liquidity as an older, overlapping position.
func TestFeeGrowthInsideSnapshotWraps(t *testing.T) {
	p, err := New(Config{Fee: 500, TickSpacing: 10})
	require.NoError(t, err)

	start := new(big.Int).Sqrt(new(big.Int).Lsh(big.NewInt(4000), 192))
	startPrice, _ := uint256.FromBig(start)
	tickInit, err := p.Initialize(startPrice)
	require.NoError(t, err)
	require.Equal(t, int32(82944), tickInit)

	base := tickInit / 10 * 10
	tick1 := base - 1000
	tick2 := tick1 + 100
	tick4 := base + 1000
	tick3 := tick4 - 400

	limit2 := sqrtAt(t, tick2)
	limit3 := sqrtAt(t, tick3)
	limit4 := sqrtAt(t, tick4)
	liquidity := units(100)

	swapUp := func(limit *uint256.Int) {
		t.Helper()
		_, err := p.Swap(alice, false, maxAmount, limit)
		require.NoError(t, err)
	}
	swapDown := func(limit *uint256.Int) {
		t.Helper()
		_, err := p.Swap(alice, true, maxAmount, limit)
		require.NoError(t, err)
	}
	poke := func(lower, upper int32) {
		t.Helper()
		_, _, err := p.Burn(alice, lower, upper, new(uint256.Int))
		require.NoError(t, err)
	}

	_, _, err = p.Mint(alice, tick1, tick3, liquidity)
	require.NoError(t, err)
	_, _, err = p.Mint(alice, tick1, tick4, liquidity)
	require.NoError(t, err)

	mid := new(uint256.Int).Add(limit3, limit4)
	mid.Rsh(mid, 1)
	swapUp(mid)
	slot := p.Slot0()
	require.Greater(t, slot.Tick, tick3)
	require.Less(t, slot.Tick, tick4)

	below4 := new(uint256.Int).SubUint64(limit4, 1000)
	swapUp(below4)
	slot = p.Slot0()
	require.Greater(t, slot.Tick, tick3)
	require.LessOrEqual(t, slot.Tick, tick4)

	// tick2 is fresh, tick3 was crossed upward: inside growth of [tick2, tick3] is negative
	_, _, err = p.Mint(alice, tick2, tick3, liquidity)
	require.NoError(t, err)
	pos23, _ := p.Position(alice, tick2, tick3)
	assert.Equal(t, -1, pos23.FeeGrowthInside1LastX128.Sign(), "inside snapshot should have wrapped")

	poke(tick1, tick3)
	poke(tick1, tick4)
	swapDown(new(uint256.Int).SubUint64(limit2, 1000))
	swapUp(below4)

	pos13Before, _ := p.Position(alice, tick1, tick3)
	pos23Before, _ := p.Position(alice, tick2, tick3)

	poke(tick1, tick3)
	poke(tick1, tick4)
	poke(tick2, tick3)

	pos13, _ := p.Position(alice, tick1, tick3)
	pos23, _ = p.Position(alice, tick2, tick3)

	earned13 := new(uint256.Int).Sub(&pos13.TokensOwed1, &pos13Before.TokensOwed1)
	earned23 := new(uint256.Int).Sub(&pos23.TokensOwed1, &pos23Before.TokensOwed1)

	require.False(t, earned23.IsZero())
	// a corrupted delta would be on the order of 2^128, far above anything the swaps paid
	assert.True(t, pos23.TokensOwed1.Cmp(&pos13.TokensOwed1) <= 0, "owed 2_3 %s owed 1_3 %s", &pos23.TokensOwed1, &pos13.TokensOwed1)

	// both ranges held the same liquidity over [tick2, tick3], so they earned the same
	// growth per unit of liquidity up to rounding
	diff := new(big.Int).Sub(earned13.ToBig(), earned23.ToBig())
	diff.Abs(diff)
	ratio := new(big.Float).Quo(new(big.Float).SetInt(diff), new(big.Float).SetInt(earned13.ToBig()))
	r, _ := ratio.Float64()
	assert.Less(t, r, 1e-6, "earned 1_3 %s earned 2_3 %s", earned13, earned23)

	in0, in1, err := p.FeeGrowthInside(tick2, tick3)
	require.NoError(t, err)
	assert.True(t, in0.Eq(&pos23.FeeGrowthInside0LastX128))
	assert.True(t, in1.Eq(&pos23.FeeGrowthInside1LastX128))
}
