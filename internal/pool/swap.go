package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityLedger/internal/fixedpoint"
	"liquidityLedger/internal/sqrtmath"
)

// SwapResult reports a committed swap. Amounts are signed from the pool's side: positive is
// paid into the pool, negative is paid out to the recipient.
type SwapResult struct {
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *uint256.Int
	Tick         int32
	Liquidity    *uint256.Int
	// CrossedTicks lists initialized ticks crossed, in crossing order.
	CrossedTicks []int32
	// FeeAmount is the total fee charged in the input token.
	FeeAmount *uint256.Int
}

type swapState struct {
	amountRemaining  *uint256.Int
	amountCalculated *uint256.Int
	sqrtPriceX96     *uint256.Int
	tick             int32
	liquidity        *uint256.Int
	// growth of the input token; the other token's global does not move during a swap
	feeGrowthGlobalX128 *uint256.Int
	feeAmount           *uint256.Int
}

// crossing records the globals a tick was crossed with so the crossing can be undone.
type crossing struct {
	tick int32
	fg0  *uint256.Int
	fg1  *uint256.Int
}

var maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))

// Swap trades along the curve. A positive amountSpecified is an exact input, a negative one an
// exact output. sqrtPriceLimitX96 bounds the final price; nil means no limit. Either the whole
// swap is committed or, on error, the pool is left as it was.
func (p *Pool) Swap(recipient common.Address, zeroForOne bool, amountSpecified *big.Int, sqrtPriceLimitX96 *uint256.Int) (SwapResult, error) {
	res, err := p.swap(zeroForOne, amountSpecified, sqrtPriceLimitX96, true)
	if err != nil {
		return SwapResult{}, fmt.Errorf("swap: %w", err)
	}
	p.logger.Debug("swap",
		zap.String("recipient", recipient.Hex()),
		zap.Bool("zero_for_one", zeroForOne),
		zap.String("amount0", res.Amount0.String()),
		zap.String("amount1", res.Amount1.String()),
		zap.String("sqrt_price_x96", res.SqrtPriceX96.Dec()),
		zap.Int32("tick", res.Tick),
		zap.Int("crossed", len(res.CrossedTicks)),
	)
	return res, nil
}

// Quote runs a swap with the same arguments as Swap and reports its outcome without
// changing the pool.
func (p *Pool) Quote(zeroForOne bool, amountSpecified *big.Int, sqrtPriceLimitX96 *uint256.Int) (SwapResult, error) {
	res, err := p.swap(zeroForOne, amountSpecified, sqrtPriceLimitX96, false)
	if err != nil {
		return SwapResult{}, fmt.Errorf("quote: %w", err)
	}
	return res, nil
}

func (p *Pool) swap(zeroForOne bool, amountSpecified *big.Int, sqrtPriceLimitX96 *uint256.Int, commit bool) (SwapResult, error) {
	if amountSpecified == nil || amountSpecified.Sign() == 0 {
		return SwapResult{}, ErrZeroAmount
	}
	if new(big.Int).Abs(amountSpecified).Cmp(maxInt256) > 0 {
		return SwapResult{}, fmt.Errorf("amount %s: %w", amountSpecified, ErrAmountOutOfRange)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return SwapResult{}, ErrNotInitialized
	}

	limit, err := p.priceLimit(zeroForOne, sqrtPriceLimitX96)
	if err != nil {
		return SwapResult{}, err
	}

	exactIn := amountSpecified.Sign() > 0
	specified, _ := uint256.FromBig(new(big.Int).Abs(amountSpecified))

	state := swapState{
		amountRemaining:  new(uint256.Int).Set(specified),
		amountCalculated: new(uint256.Int),
		sqrtPriceX96:     new(uint256.Int).Set(&p.sqrtPriceX96),
		tick:             p.tick,
		liquidity:        new(uint256.Int).Set(&p.liquidity),
		feeAmount:        new(uint256.Int),
	}
	if zeroForOne {
		state.feeGrowthGlobalX128 = new(uint256.Int).Set(&p.feeGrowthGlobal0X128)
	} else {
		state.feeGrowthGlobalX128 = new(uint256.Int).Set(&p.feeGrowthGlobal1X128)
	}

	var journal []crossing
	if err := p.swapLoop(&state, zeroForOne, exactIn, limit, &journal); err != nil {
		p.rollback(journal)
		return SwapResult{}, err
	}

	if commit {
		p.sqrtPriceX96.Set(state.sqrtPriceX96)
		p.tick = state.tick
		p.liquidity.Set(state.liquidity)
		if zeroForOne {
			p.feeGrowthGlobal0X128.Set(state.feeGrowthGlobalX128)
		} else {
			p.feeGrowthGlobal1X128.Set(state.feeGrowthGlobalX128)
		}
	} else {
		p.rollback(journal)
	}

	used := new(uint256.Int).Sub(specified, state.amountRemaining)
	amountIn, amountOut := used, state.amountCalculated
	if !exactIn {
		amountIn, amountOut = state.amountCalculated, used
	}
	in := amountIn.ToBig()
	out := new(big.Int).Neg(amountOut.ToBig())

	result := SwapResult{
		SqrtPriceX96: new(uint256.Int).Set(state.sqrtPriceX96),
		Tick:         state.tick,
		Liquidity:    new(uint256.Int).Set(state.liquidity),
		CrossedTicks: make([]int32, 0, len(journal)),
		FeeAmount:    state.feeAmount,
	}
	if zeroForOne {
		result.Amount0, result.Amount1 = in, out
	} else {
		result.Amount0, result.Amount1 = out, in
	}
	for _, c := range journal {
		result.CrossedTicks = append(result.CrossedTicks, c.tick)
	}
	return result, nil
}

func (p *Pool) priceLimit(zeroForOne bool, limit *uint256.Int) (*uint256.Int, error) {
	if limit == nil {
		if zeroForOne {
			return new(uint256.Int).AddUint64(sqrtmath.MinSqrtRatio, 1), nil
		}
		return new(uint256.Int).SubUint64(sqrtmath.MaxSqrtRatio, 1), nil
	}
	if zeroForOne {
		if !limit.Lt(&p.sqrtPriceX96) {
			return nil, ErrPriceLimitAlreadyExceeded
		}
		if !limit.Gt(sqrtmath.MinSqrtRatio) {
			return nil, ErrPriceLimitOutOfRange
		}
	} else {
		if !limit.Gt(&p.sqrtPriceX96) {
			return nil, ErrPriceLimitAlreadyExceeded
		}
		if !limit.Lt(sqrtmath.MaxSqrtRatio) {
			return nil, ErrPriceLimitOutOfRange
		}
	}
	return limit, nil
}

// swapLoop steps until the amount is used up or the price reaches limit. Only state and the
// crossed ticks are modified; crossings are appended to journal as they happen.
func (p *Pool) swapLoop(state *swapState, zeroForOne, exactIn bool, limit *uint256.Int, journal *[]crossing) error {
	for !state.amountRemaining.IsZero() && !state.sqrtPriceX96.Eq(limit) {
		start := new(uint256.Int).Set(state.sqrtPriceX96)

		next, initialized := p.ticks.NextInitializedTickWithinOneWord(state.tick, zeroForOne)
		if next < sqrtmath.MinTick {
			next = sqrtmath.MinTick
		} else if next > sqrtmath.MaxTick {
			next = sqrtmath.MaxTick
		}
		sqrtNext, err := sqrtmath.SqrtRatioAtTick(next)
		if err != nil {
			return err
		}

		target := sqrtNext
		if (zeroForOne && sqrtNext.Lt(limit)) || (!zeroForOne && sqrtNext.Gt(limit)) {
			target = limit
		}

		step, err := sqrtmath.ComputeSwapStep(state.sqrtPriceX96, target, state.liquidity, state.amountRemaining, exactIn, p.fee)
		if err != nil {
			return fmt.Errorf("step at tick %d: %w", state.tick, err)
		}
		state.sqrtPriceX96 = step.SqrtPriceNext

		if exactIn {
			state.amountRemaining.Sub(state.amountRemaining, step.AmountIn)
			state.amountRemaining.Sub(state.amountRemaining, step.FeeAmount)
			state.amountCalculated.Add(state.amountCalculated, step.AmountOut)
		} else {
			state.amountRemaining.Sub(state.amountRemaining, step.AmountOut)
			state.amountCalculated.Add(state.amountCalculated, step.AmountIn)
			state.amountCalculated.Add(state.amountCalculated, step.FeeAmount)
		}
		state.feeAmount.Add(state.feeAmount, step.FeeAmount)

		growth, err := fixedpoint.GrowthPerLiquidity(step.FeeAmount, state.liquidity)
		switch {
		case errors.Is(err, fixedpoint.ErrZeroLiquidityDivision):
			// nothing to credit while the price moves through an empty range
		case err != nil:
			return fmt.Errorf("fee growth: %w", err)
		default:
			state.feeGrowthGlobalX128 = fixedpoint.WrappingAdd(state.feeGrowthGlobalX128, growth)
		}

		if state.sqrtPriceX96.Eq(sqrtNext) {
			if initialized {
				fg0, fg1 := &p.feeGrowthGlobal0X128, state.feeGrowthGlobalX128
				if zeroForOne {
					fg0, fg1 = state.feeGrowthGlobalX128, &p.feeGrowthGlobal1X128
				}
				net, err := p.ticks.Cross(next, fg0, fg1)
				if err != nil {
					return err
				}
				*journal = append(*journal, crossing{
					tick: next,
					fg0:  new(uint256.Int).Set(fg0),
					fg1:  new(uint256.Int).Set(fg1),
				})
				if zeroForOne {
					net.Neg(net)
				}
				liquidity, err := fixedpoint.AddDelta(state.liquidity, net)
				if err != nil {
					return fmt.Errorf("cross %d: %w", next, err)
				}
				state.liquidity = liquidity

				p.logger.Debug("tick crossed",
					zap.Int32("tick", next),
					zap.Bool("zero_for_one", zeroForOne),
					zap.String("liquidity", liquidity.Dec()),
				)
			}
			if zeroForOne {
				state.tick = next - 1
			} else {
				state.tick = next
			}
		} else if !state.sqrtPriceX96.Eq(start) {
			t, err := sqrtmath.TickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return err
			}
			state.tick = t
		}
	}
	return nil
}

// rollback undoes crossings newest first.
func (p *Pool) rollback(journal []crossing) {
	for i := len(journal) - 1; i >= 0; i-- {
		c := journal[i]
		if _, err := p.ticks.Cross(c.tick, c.fg0, c.fg1); err != nil {
			p.logger.Error("rollback cross", zap.Int32("tick", c.tick), zap.Error(err))
		}
	}
	if len(journal) > 0 {
		p.logger.Debug("swap rolled back", zap.Int("crossings", len(journal)))
	}
}
