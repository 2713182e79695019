package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityLedger/internal/fixedpoint"
	"liquidityLedger/internal/position"
	"liquidityLedger/internal/sqrtmath"
)

// Mint adds liquidity to a range and returns the token amounts the owner must pay, rounded up.
func (p *Pool) Mint(owner common.Address, tickLower, tickUpper int32, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if amount.IsZero() {
		return nil, nil, fmt.Errorf("mint: %w", ErrZeroAmount)
	}
	delta, err := fixedpoint.NewDelta(amount, false)
	if err != nil {
		return nil, nil, fmt.Errorf("mint: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	amount0, amount1, err := p.modifyPosition(key, delta)
	if err != nil {
		return nil, nil, fmt.Errorf("mint: %w", err)
	}
	p.logger.Debug("mint",
		zap.String("owner", owner.Hex()),
		zap.Int32("tick_lower", tickLower),
		zap.Int32("tick_upper", tickUpper),
		zap.String("amount", amount.Dec()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
	)
	return amount0, amount1, nil
}

// Burn removes liquidity from a range. The released token amounts, rounded down, are credited
// to the position's owed balances together with any settled fees. A zero amount only settles.
func (p *Pool) Burn(owner common.Address, tickLower, tickUpper int32, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	delta, err := fixedpoint.NewDelta(amount, true)
	if err != nil {
		return nil, nil, fmt.Errorf("burn: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	amount0, amount1, err := p.modifyPosition(key, delta)
	if err != nil {
		return nil, nil, fmt.Errorf("burn: %w", err)
	}
	if !amount0.IsZero() || !amount1.IsZero() {
		p.positions.Credit(key, amount0, amount1)
	}
	p.logger.Debug("burn",
		zap.String("owner", owner.Hex()),
		zap.Int32("tick_lower", tickLower),
		zap.Int32("tick_upper", tickUpper),
		zap.String("amount", amount.Dec()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
	)
	return amount0, amount1, nil
}

// Collect withdraws up to the requested amounts from a position's owed balances.
func (p *Pool) Collect(owner common.Address, tickLower, tickUpper int32, requested0, requested1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, fmt.Errorf("collect: %w", err)
	}
	key := position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	amount0, amount1 := p.positions.Collect(key, requested0, requested1)
	return amount0, amount1, nil
}

// modifyPosition validates everything up front so a failure leaves the pool untouched, then
// updates the boundary ticks, settles the position and adjusts active liquidity.
// Returned amounts are magnitudes: rounded up when adding liquidity, down when removing.
func (p *Pool) modifyPosition(key position.Key, delta *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	if err := p.checkTicks(key.TickLower, key.TickUpper); err != nil {
		return nil, nil, err
	}
	if err := p.positions.CheckUpdate(key, delta); err != nil {
		return nil, nil, err
	}

	inRange := key.TickLower <= p.tick && p.tick < key.TickUpper
	var liquidityNext *uint256.Int
	if !delta.IsZero() {
		if err := p.ticks.CheckUpdate(key.TickLower, delta, false); err != nil {
			return nil, nil, err
		}
		if err := p.ticks.CheckUpdate(key.TickUpper, delta, true); err != nil {
			return nil, nil, err
		}
		if inRange {
			next, err := fixedpoint.AddDelta(&p.liquidity, delta)
			if err != nil {
				return nil, nil, fmt.Errorf("active liquidity: %w", err)
			}
			liquidityNext = next
		}
	}

	amount0, amount1, err := p.rangeAmounts(key.TickLower, key.TickUpper, delta)
	if err != nil {
		return nil, nil, err
	}

	var flippedLower, flippedUpper bool
	if !delta.IsZero() {
		if flippedLower, err = p.ticks.Update(key.TickLower, p.tick, delta, &p.feeGrowthGlobal0X128, &p.feeGrowthGlobal1X128, false); err != nil {
			return nil, nil, err
		}
		if flippedUpper, err = p.ticks.Update(key.TickUpper, p.tick, delta, &p.feeGrowthGlobal0X128, &p.feeGrowthGlobal1X128, true); err != nil {
			return nil, nil, err
		}
	}

	inside0, inside1 := p.ticks.FeeGrowthInside(key.TickLower, key.TickUpper, p.tick, &p.feeGrowthGlobal0X128, &p.feeGrowthGlobal1X128)
	if _, err := p.positions.Update(key, delta, inside0, inside1); err != nil {
		return nil, nil, err
	}

	if fixedpoint.IsNegative(delta) {
		if flippedLower {
			p.ticks.Clear(key.TickLower)
		}
		if flippedUpper {
			p.ticks.Clear(key.TickUpper)
		}
	}
	if liquidityNext != nil {
		p.liquidity.Set(liquidityNext)
	}
	return amount0, amount1, nil
}

// rangeAmounts returns the token amounts backing |delta| liquidity over [lower, upper) at the
// current price.
func (p *Pool) rangeAmounts(lower, upper int32, delta *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	amount0, amount1 := new(uint256.Int), new(uint256.Int)
	if delta.IsZero() {
		return amount0, amount1, nil
	}
	roundUp := !fixedpoint.IsNegative(delta)
	liquidity := fixedpoint.Magnitude(delta)

	sqrtLower, err := sqrtmath.SqrtRatioAtTick(lower)
	if err != nil {
		return nil, nil, err
	}
	sqrtUpper, err := sqrtmath.SqrtRatioAtTick(upper)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case p.tick < lower:
		amount0, err = sqrtmath.Amount0Delta(sqrtLower, sqrtUpper, liquidity, roundUp)
	case p.tick < upper:
		amount0, err = sqrtmath.Amount0Delta(&p.sqrtPriceX96, sqrtUpper, liquidity, roundUp)
		if err == nil {
			amount1, err = sqrtmath.Amount1Delta(sqrtLower, &p.sqrtPriceX96, liquidity, roundUp)
		}
	default:
		amount1, err = sqrtmath.Amount1Delta(sqrtLower, sqrtUpper, liquidity, roundUp)
	}
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}
