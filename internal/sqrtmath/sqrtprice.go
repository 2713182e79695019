package sqrtmath

import (
	"github.com/holiman/uint256"

	"liquidityLedger/internal/fixedpoint"
)

// Amount0Delta returns liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB) scaled by 2^96.
func Amount0Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.IsZero() {
		return nil, ErrZeroSqrtPrice
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	numerator2 := new(uint256.Int).Sub(sqrtB, sqrtA)

	if roundUp {
		z, err := fixedpoint.MulDivRoundingUp(numerator1, numerator2, sqrtB)
		if err != nil {
			return nil, err
		}
		return fixedpoint.DivRoundingUp(z, sqrtA)
	}
	z, err := fixedpoint.MulDiv(numerator1, numerator2, sqrtB)
	if err != nil {
		return nil, err
	}
	return z.Div(z, sqrtA), nil
}

// Amount1Delta returns liquidity * (sqrtB - sqrtA) / 2^96.
func Amount1Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(uint256.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return fixedpoint.MulDivRoundingUp(liquidity, diff, fixedpoint.Q96)
	}
	return fixedpoint.MulDiv(liquidity, diff, fixedpoint.Q96)
}

// NextSqrtPriceFromInput returns the price after adding amountIn of the input token.
func NextSqrtPriceFromInput(sqrtP, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtP.IsZero() {
		return nil, ErrZeroSqrtPrice
	}
	if liquidity.IsZero() {
		return nil, ErrZeroLiquidity
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount0RoundingUp(sqrtP, liquidity, amountIn, true)
	}
	return nextSqrtPriceFromAmount1RoundingDown(sqrtP, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput returns the price after removing amountOut of the output token.
func NextSqrtPriceFromOutput(sqrtP, liquidity, amountOut *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtP.IsZero() {
		return nil, ErrZeroSqrtPrice
	}
	if liquidity.IsZero() {
		return nil, ErrZeroLiquidity
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount1RoundingDown(sqrtP, liquidity, amountOut, false)
	}
	return nextSqrtPriceFromAmount0RoundingUp(sqrtP, liquidity, amountOut, false)
}

// Rounds up so the price never moves further than the token0 amount allows.
func nextSqrtPriceFromAmount0RoundingUp(sqrtP, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int).Set(sqrtP), nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtP)

	if add {
		if !overflow {
			denominator, carry := new(uint256.Int).AddOverflow(numerator1, product)
			if !carry {
				return fixedpoint.MulDivRoundingUp(numerator1, sqrtP, denominator)
			}
		}
		// numerator1 / (numerator1 / sqrtP + amount) avoids the overflowing product.
		denominator := new(uint256.Int).Div(numerator1, sqrtP)
		if _, carry := denominator.AddOverflow(denominator, amount); carry {
			return nil, ErrSqrtPriceOverflow
		}
		return fixedpoint.DivRoundingUp(numerator1, denominator)
	}

	if overflow || !numerator1.Gt(product) {
		return nil, ErrPriceUnderflow
	}
	denominator := new(uint256.Int).Sub(numerator1, product)
	z, err := fixedpoint.MulDivRoundingUp(numerator1, sqrtP, denominator)
	if err != nil {
		return nil, err
	}
	if z.Gt(fixedpoint.MaxUint160) {
		return nil, ErrSqrtPriceOverflow
	}
	return z, nil
}

// Rounds down so the price never moves further than the token1 amount allows.
func nextSqrtPriceFromAmount1RoundingDown(sqrtP, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if add {
		quotient, err := fixedpoint.MulDiv(amount, fixedpoint.Q96, liquidity)
		if err != nil {
			return nil, err
		}
		z, carry := new(uint256.Int).AddOverflow(sqrtP, quotient)
		if carry || z.Gt(fixedpoint.MaxUint160) {
			return nil, ErrSqrtPriceOverflow
		}
		return z, nil
	}

	quotient, err := fixedpoint.MulDivRoundingUp(amount, fixedpoint.Q96, liquidity)
	if err != nil {
		return nil, err
	}
	if !sqrtP.Gt(quotient) {
		return nil, ErrPriceUnderflow
	}
	return new(uint256.Int).Sub(sqrtP, quotient), nil
}
