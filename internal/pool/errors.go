package pool

import (
	"errors"

	"liquidityLedger/internal/fixedpoint"
	"liquidityLedger/internal/position"
	"liquidityLedger/internal/sqrtmath"
	"liquidityLedger/internal/tick"
)

var (
	ErrAlreadyInitialized        = errors.New("pool already initialized")
	ErrNotInitialized            = errors.New("pool not initialized")
	ErrInvalidTickOrder          = errors.New("tick lower must be below tick upper")
	ErrPriceLimitAlreadyExceeded = errors.New("price limit already exceeded")
	ErrPriceLimitOutOfRange      = errors.New("price limit out of range")
	ErrZeroAmount                = errors.New("amount is zero")
	ErrAmountOutOfRange          = errors.New("amount out of range")
	ErrInvalidFee                = errors.New("invalid fee")
	ErrConfigMismatch            = errors.New("pool config mismatch")
)

// Errors raised by the lower layers, re-exported so callers only need this package.
var (
	ErrTickOutOfRange        = sqrtmath.ErrTickOutOfRange
	ErrSqrtPriceOutOfRange   = sqrtmath.ErrSqrtPriceOutOfRange
	ErrInvalidTickSpacing    = tick.ErrInvalidTickSpacing
	ErrTickNotInitialized    = tick.ErrTickNotInitialized
	ErrInsufficientLiquidity = fixedpoint.ErrInsufficientLiquidity
	ErrLiquidityOverflow     = fixedpoint.ErrLiquidityOverflow
	ErrZeroLiquidityDivision = fixedpoint.ErrZeroLiquidityDivision
	ErrNoPositionLiquidity   = position.ErrNoPositionLiquidity
)
