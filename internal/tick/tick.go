// Package tick keeps per-tick liquidity and fee-growth-outside state for one pool.
package tick

import (
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"liquidityLedger/internal/fixedpoint"
	"liquidityLedger/internal/sqrtmath"
)

var (
	ErrTickNotInitialized       = errors.New("tick not initialized")
	ErrInvalidTickSpacing       = errors.New("invalid tick spacing")
	ErrLiquidityPerTickExceeded = errors.New("liquidity per tick exceeded")
	ErrLiquidityNetOverflow     = errors.New("liquidity net overflow")
)

// Info is the state stored for an initialized tick.
// LiquidityNet is an int128 in two's complement.
type Info struct {
	LiquidityGross        uint256.Int
	LiquidityNet          uint256.Int
	FeeGrowthOutside0X128 uint256.Int
	FeeGrowthOutside1X128 uint256.Int
}

// Initialized reports whether any position references the tick.
func (i *Info) Initialized() bool {
	return !i.LiquidityGross.IsZero()
}

// Map is a sparse ordered map of initialized ticks.
type Map struct {
	spacing      int32
	maxLiquidity *uint256.Int
	ticks        map[int32]*Info
	sorted       []int32
}

// NewMap returns an empty map for the given tick spacing.
func NewMap(spacing int32) *Map {
	return &Map{
		spacing:      spacing,
		maxLiquidity: MaxLiquidityPerTick(spacing),
		ticks:        make(map[int32]*Info),
	}
}

// MaxLiquidityPerTick bounds gross liquidity so the sum over every usable tick fits in uint128.
func MaxLiquidityPerTick(spacing int32) *uint256.Int {
	minTick := (sqrtmath.MinTick / spacing) * spacing
	maxTick := (sqrtmath.MaxTick / spacing) * spacing
	numTicks := uint64((maxTick-minTick)/spacing) + 1
	return new(uint256.Int).Div(fixedpoint.MaxUint128, uint256.NewInt(numTicks))
}

func (m *Map) Spacing() int32 {
	return m.spacing
}

func (m *Map) MaxLiquidity() *uint256.Int {
	return new(uint256.Int).Set(m.maxLiquidity)
}

// Get returns a copy of the tick state.
func (m *Map) Get(tick int32) (Info, bool) {
	info, ok := m.ticks[tick]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Len is the number of initialized ticks.
func (m *Map) Len() int {
	return len(m.sorted)
}

// Ticks returns initialized tick indices in ascending order.
func (m *Map) Ticks() []int32 {
	out := make([]int32, len(m.sorted))
	copy(out, m.sorted)
	return out
}

// Validate checks that tick is inside the usable range and aligned to the spacing.
func (m *Map) Validate(tick int32) error {
	if tick < sqrtmath.MinTick || tick > sqrtmath.MaxTick {
		return fmt.Errorf("tick %d: %w", tick, sqrtmath.ErrTickOutOfRange)
	}
	if tick%m.spacing != 0 {
		return fmt.Errorf("tick %d spacing %d: %w", tick, m.spacing, ErrInvalidTickSpacing)
	}
	return nil
}

// CheckUpdate reports the error Update would return without touching any state.
func (m *Map) CheckUpdate(tick int32, liquidityDelta *uint256.Int, upper bool) error {
	_, _, err := m.next(tick, liquidityDelta, upper)
	return err
}

func (m *Map) next(tick int32, liquidityDelta *uint256.Int, upper bool) (gross, net *uint256.Int, err error) {
	var current Info
	if info, ok := m.ticks[tick]; ok {
		current = *info
	}

	gross, err = fixedpoint.AddDelta(&current.LiquidityGross, liquidityDelta)
	if err != nil {
		return nil, nil, fmt.Errorf("tick %d gross: %w", tick, err)
	}
	if gross.Gt(m.maxLiquidity) {
		return nil, nil, fmt.Errorf("tick %d: %w", tick, ErrLiquidityPerTickExceeded)
	}

	// the upper boundary removes liquidity when crossed moving up
	if upper {
		net = new(uint256.Int).Sub(&current.LiquidityNet, liquidityDelta)
	} else {
		net = new(uint256.Int).Add(&current.LiquidityNet, liquidityDelta)
	}
	if !fixedpoint.FitsInt128(net) {
		return nil, nil, fmt.Errorf("tick %d: %w", tick, ErrLiquidityNetOverflow)
	}
	return gross, net, nil
}

// Update applies a liquidity delta to a boundary tick and reports whether the tick flipped
// between initialized and uninitialized. Fee growth outside is seeded on first initialization:
// growth up to now is assumed to have happened below the tick.
func (m *Map) Update(tick, tickCurrent int32, liquidityDelta, feeGrowthGlobal0, feeGrowthGlobal1 *uint256.Int, upper bool) (bool, error) {
	gross, net, err := m.next(tick, liquidityDelta, upper)
	if err != nil {
		return false, err
	}

	info, ok := m.ticks[tick]
	if !ok {
		info = &Info{}
	}
	wasInitialized := info.Initialized()
	flipped := gross.IsZero() == wasInitialized

	if !wasInitialized && !gross.IsZero() {
		if tick <= tickCurrent {
			info.FeeGrowthOutside0X128.Set(feeGrowthGlobal0)
			info.FeeGrowthOutside1X128.Set(feeGrowthGlobal1)
		} else {
			info.FeeGrowthOutside0X128.Clear()
			info.FeeGrowthOutside1X128.Clear()
		}
	}
	info.LiquidityGross.Set(gross)
	info.LiquidityNet.Set(net)

	if !ok && !gross.IsZero() {
		m.ticks[tick] = info
		m.insert(tick)
	}
	return flipped, nil
}

// Clear deletes a tick, typically after its gross liquidity returned to zero.
func (m *Map) Clear(tick int32) {
	if _, ok := m.ticks[tick]; !ok {
		return
	}
	delete(m.ticks, tick)
	i := sort.Search(len(m.sorted), func(i int) bool { return m.sorted[i] >= tick })
	if i < len(m.sorted) && m.sorted[i] == tick {
		m.sorted = append(m.sorted[:i], m.sorted[i+1:]...)
	}
}

// Cross flips the outside accumulators of tick against the given globals and returns its
// liquidityNet. Crossing the same tick twice with the same globals is the identity.
func (m *Map) Cross(tick int32, feeGrowthGlobal0, feeGrowthGlobal1 *uint256.Int) (*uint256.Int, error) {
	info, ok := m.ticks[tick]
	if !ok || !info.Initialized() {
		return nil, fmt.Errorf("cross %d: %w", tick, ErrTickNotInitialized)
	}
	info.FeeGrowthOutside0X128.Sub(feeGrowthGlobal0, &info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128.Sub(feeGrowthGlobal1, &info.FeeGrowthOutside1X128)
	return new(uint256.Int).Set(&info.LiquidityNet), nil
}

// FeeGrowthInside returns the fee growth per unit of liquidity accumulated within
// [lower, upper). Uninitialized boundaries count as zero outside growth.
func (m *Map) FeeGrowthInside(lower, upper, tickCurrent int32, feeGrowthGlobal0, feeGrowthGlobal1 *uint256.Int) (*uint256.Int, *uint256.Int) {
	var lo, hi Info
	if info, ok := m.ticks[lower]; ok {
		lo = *info
	}
	if info, ok := m.ticks[upper]; ok {
		hi = *info
	}

	inside := func(global, outsideLower, outsideUpper *uint256.Int) *uint256.Int {
		below := new(uint256.Int).Set(outsideLower)
		if tickCurrent < lower {
			below.Sub(global, outsideLower)
		}
		above := new(uint256.Int).Set(outsideUpper)
		if tickCurrent >= upper {
			above.Sub(global, outsideUpper)
		}
		z := fixedpoint.WrappingSub(global, below)
		return z.Sub(z, above)
	}

	return inside(feeGrowthGlobal0, &lo.FeeGrowthOutside0X128, &hi.FeeGrowthOutside0X128),
		inside(feeGrowthGlobal1, &lo.FeeGrowthOutside1X128, &hi.FeeGrowthOutside1X128)
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	out := &Map{
		spacing:      m.spacing,
		maxLiquidity: new(uint256.Int).Set(m.maxLiquidity),
		ticks:        make(map[int32]*Info, len(m.ticks)),
		sorted:       make([]int32, len(m.sorted)),
	}
	for k, v := range m.ticks {
		c := *v
		out.ticks[k] = &c
	}
	copy(out.sorted, m.sorted)
	return out
}

// Set stores info for tick as is. Used when restoring persisted state.
func (m *Map) Set(tick int32, info Info) {
	if !info.Initialized() {
		m.Clear(tick)
		return
	}
	if existing, ok := m.ticks[tick]; ok {
		*existing = info
		return
	}
	c := info
	m.ticks[tick] = &c
	m.insert(tick)
}

func (m *Map) insert(tick int32) {
	i := sort.Search(len(m.sorted), func(i int) bool { return m.sorted[i] >= tick })
	m.sorted = append(m.sorted, 0)
	copy(m.sorted[i+1:], m.sorted[i:])
	m.sorted[i] = tick
}
