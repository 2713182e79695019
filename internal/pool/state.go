package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"liquidityLedger/internal/position"
	"liquidityLedger/internal/tick"
)

// State is a deep copy of everything a pool holds.
type State struct {
	Fee                  uint32
	TickSpacing          int32
	Initialized          bool
	SqrtPriceX96         uint256.Int
	Tick                 int32
	Liquidity            uint256.Int
	FeeGrowthGlobal0X128 uint256.Int
	FeeGrowthGlobal1X128 uint256.Int
	Ticks                map[int32]tick.Info
	Positions            map[position.Key]position.Info
}

// Snapshot returns a consistent copy of the pool.
func (p *Pool) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := State{
		Fee:                  p.fee,
		TickSpacing:          p.tickSpacing,
		Initialized:          p.initialized,
		SqrtPriceX96:         p.sqrtPriceX96,
		Tick:                 p.tick,
		Liquidity:            p.liquidity,
		FeeGrowthGlobal0X128: p.feeGrowthGlobal0X128,
		FeeGrowthGlobal1X128: p.feeGrowthGlobal1X128,
		Ticks:                make(map[int32]tick.Info, p.ticks.Len()),
		Positions:            make(map[position.Key]position.Info, p.positions.Len()),
	}
	for _, t := range p.ticks.Ticks() {
		info, _ := p.ticks.Get(t)
		s.Ticks[t] = info
	}
	for _, k := range p.positions.Keys() {
		info, _ := p.positions.Get(k)
		s.Positions[k] = info
	}
	return s
}

// Restore replaces the pool's state. The fee and spacing must match the pool's.
func (p *Pool) Restore(s State) error {
	if s.Fee != p.fee || s.TickSpacing != p.tickSpacing {
		return fmt.Errorf("restore fee %d spacing %d into pool fee %d spacing %d: %w",
			s.Fee, s.TickSpacing, p.fee, p.tickSpacing, ErrConfigMismatch)
	}

	ticks := tick.NewMap(p.tickSpacing)
	for t, info := range s.Ticks {
		if err := ticks.Validate(t); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		ticks.Set(t, info)
	}
	positions := position.NewLedger()
	for k, info := range s.Positions {
		positions.Set(k, info)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.initialized = s.Initialized
	p.sqrtPriceX96 = s.SqrtPriceX96
	p.tick = s.Tick
	p.liquidity = s.Liquidity
	p.feeGrowthGlobal0X128 = s.FeeGrowthGlobal0X128
	p.feeGrowthGlobal1X128 = s.FeeGrowthGlobal1X128
	p.ticks = ticks
	p.positions = positions
	return nil
}

// Clone returns an independent pool with the same state, sharing only the logger.
func (p *Pool) Clone() *Pool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return &Pool{
		logger:               p.logger,
		fee:                  p.fee,
		tickSpacing:          p.tickSpacing,
		initialized:          p.initialized,
		sqrtPriceX96:         p.sqrtPriceX96,
		tick:                 p.tick,
		liquidity:            p.liquidity,
		feeGrowthGlobal0X128: p.feeGrowthGlobal0X128,
		feeGrowthGlobal1X128: p.feeGrowthGlobal1X128,
		ticks:                p.ticks.Clone(),
		positions:            p.positions.Clone(),
	}
}
