package sqrtmath

import (
	"github.com/holiman/uint256"

	"liquidityLedger/internal/fixedpoint"
)

// FeeDenominator is the unit of feePips: 1e6 pips is 100%.
const FeeDenominator = 1_000_000

// SwapStep is the outcome of swapping within a single constant-liquidity range.
type SwapStep struct {
	SqrtPriceNext *uint256.Int
	AmountIn      *uint256.Int
	AmountOut     *uint256.Int
	FeeAmount     *uint256.Int
}

// ComputeSwapStep moves the price from current towards target, consuming at most
// amountRemaining. The direction is implied by the ordering of current and target.
// With zero liquidity the price jumps straight to target and no amounts or fees accrue.
func ComputeSwapStep(current, target, liquidity, amountRemaining *uint256.Int, exactIn bool, feePips uint32) (SwapStep, error) {
	zeroForOne := !current.Lt(target)
	feeComplement := uint256.NewInt(FeeDenominator - uint64(feePips))
	denom := uint256.NewInt(FeeDenominator)

	var (
		step      SwapStep
		amountIn  = new(uint256.Int)
		amountOut = new(uint256.Int)
		next      *uint256.Int
		err       error
	)

	if exactIn {
		var lessFee *uint256.Int
		if lessFee, err = fixedpoint.MulDiv(amountRemaining, feeComplement, denom); err != nil {
			return step, err
		}
		if zeroForOne {
			amountIn, err = Amount0Delta(target, current, liquidity, true)
		} else {
			amountIn, err = Amount1Delta(current, target, liquidity, true)
		}
		if err != nil {
			return step, err
		}
		if !lessFee.Lt(amountIn) {
			next = new(uint256.Int).Set(target)
		} else {
			next, err = NextSqrtPriceFromInput(current, liquidity, lessFee, zeroForOne)
			if err != nil {
				return step, err
			}
		}
	} else {
		if zeroForOne {
			amountOut, err = Amount1Delta(target, current, liquidity, false)
		} else {
			amountOut, err = Amount0Delta(current, target, liquidity, false)
		}
		if err != nil {
			return step, err
		}
		if !amountRemaining.Lt(amountOut) {
			next = new(uint256.Int).Set(target)
		} else {
			next, err = NextSqrtPriceFromOutput(current, liquidity, amountRemaining, zeroForOne)
			if err != nil {
				return step, err
			}
		}
	}

	reachedTarget := next.Eq(target)

	if zeroForOne {
		if !(reachedTarget && exactIn) {
			if amountIn, err = Amount0Delta(next, current, liquidity, true); err != nil {
				return step, err
			}
		}
		if !(reachedTarget && !exactIn) {
			if amountOut, err = Amount1Delta(next, current, liquidity, false); err != nil {
				return step, err
			}
		}
	} else {
		if !(reachedTarget && exactIn) {
			if amountIn, err = Amount1Delta(current, next, liquidity, true); err != nil {
				return step, err
			}
		}
		if !(reachedTarget && !exactIn) {
			if amountOut, err = Amount0Delta(current, next, liquidity, false); err != nil {
				return step, err
			}
		}
	}

	if !exactIn && amountOut.Gt(amountRemaining) {
		amountOut = new(uint256.Int).Set(amountRemaining)
	}

	var feeAmount *uint256.Int
	if exactIn && !reachedTarget {
		// the remainder of the input is taken as fee
		feeAmount = new(uint256.Int).Sub(amountRemaining, amountIn)
	} else {
		feeAmount, err = fixedpoint.MulDivRoundingUp(amountIn, uint256.NewInt(uint64(feePips)), feeComplement)
		if err != nil {
			return step, err
		}
	}

	step.SqrtPriceNext = next
	step.AmountIn = amountIn
	step.AmountOut = amountOut
	step.FeeAmount = feeAmount
	return step, nil
}
