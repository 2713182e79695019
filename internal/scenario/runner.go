package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityLedger/internal/pool"
	"liquidityLedger/internal/sqrtmath"
)

var (
	// ErrUnexpectedSuccess is returned when a step marked expect_error succeeds.
	ErrUnexpectedSuccess = errors.New("step expected to fail succeeded")
	// ErrStateChanged is returned when a step fails as expected but leaves the pool modified.
	ErrStateChanged = errors.New("failed step changed pool state")
)

var maxUint128 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)

// StepResult is written once per executed step. Pool fields are read after the step.
type StepResult struct {
	Step      int    `json:"step"`
	Iteration int    `json:"iteration"`
	Action    string `json:"action"`

	Amount0      string  `json:"amount0,omitempty"`
	Amount1      string  `json:"amount1,omitempty"`
	FeeAmount    string  `json:"fee_amount,omitempty"`
	CrossedTicks []int32 `json:"crossed_ticks,omitempty"`
	TokensOwed0  string  `json:"tokens_owed0,omitempty"`
	TokensOwed1  string  `json:"tokens_owed1,omitempty"`
	Error        string  `json:"error,omitempty"`

	SqrtPriceX96         string `json:"sqrt_price_x96"`
	Tick                 int32  `json:"tick"`
	Liquidity            string `json:"liquidity"`
	FeeGrowthGlobal0X128 string `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 string `json:"fee_growth_global1_x128"`
}

// ResultWriter receives step results. storage.JSONLWriter satisfies it.
type ResultWriter interface {
	Write(value interface{}) error
}

type Runner struct {
	logger *zap.Logger
}

func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger}
}

// Run applies every step to a new pool and returns the pool. It stops at the first step that
// fails unexpectedly or, when marked expect_error, succeeds or changes the pool. out may be nil.
func (r *Runner) Run(ctx context.Context, sc Scenario, out ResultWriter) (*pool.Pool, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	p, err := pool.New(pool.Config{
		Fee:         sc.Fee,
		TickSpacing: sc.TickSpacing,
		Logger:      r.logger.With(zap.String("scenario", sc.Name)),
	})
	if err != nil {
		return nil, err
	}

	for i, step := range sc.Steps {
		step.Action = strings.ToLower(strings.TrimSpace(step.Action))
		times := step.Repeat
		if times == 0 {
			times = 1
		}
		for n := 0; n < times; n++ {
			if err := ctx.Err(); err != nil {
				return p, err
			}
			var before pool.State
			if step.ExpectError {
				before = p.Snapshot()
			}
			res, stepErr := r.apply(p, step)
			res.Step, res.Iteration, res.Action = i, n, step.Action
			fillPool(&res, p)
			if stepErr != nil {
				res.Error = stepErr.Error()
			}
			if out != nil {
				if err := out.Write(res); err != nil {
					return p, err
				}
			}

			switch {
			case stepErr != nil && !step.ExpectError:
				return p, fmt.Errorf("step %d %s: %w", i, step.Action, stepErr)
			case stepErr == nil && step.ExpectError:
				return p, fmt.Errorf("step %d %s: %w", i, step.Action, ErrUnexpectedSuccess)
			case stepErr != nil && !reflect.DeepEqual(before, p.Snapshot()):
				return p, fmt.Errorf("step %d %s: %w", i, step.Action, ErrStateChanged)
			case stepErr != nil:
				r.logger.Debug("step failed as expected", zap.Int("step", i), zap.String("action", step.Action), zap.Error(stepErr))
			}
		}
	}

	slot := p.Slot0()
	r.logger.Info("scenario complete",
		zap.String("scenario", sc.Name),
		zap.Int("steps", len(sc.Steps)),
		zap.Int32("tick", slot.Tick),
		zap.String("liquidity", p.Liquidity().Dec()),
	)
	return p, nil
}

func (r *Runner) apply(p *pool.Pool, step Step) (StepResult, error) {
	var res StepResult
	switch step.Action {
	case ActionInitialize:
		price, err := initialPrice(step)
		if err != nil {
			return res, err
		}
		_, err = p.Initialize(price)
		return res, err

	case ActionMint, ActionBurn:
		owner, err := parseAddress(step.Owner)
		if err != nil {
			return res, err
		}
		amount, err := uint256.FromDecimal(step.Amount)
		if err != nil {
			return res, fmt.Errorf("amount %q: %w", step.Amount, err)
		}
		call := p.Mint
		if step.Action == ActionBurn {
			call = p.Burn
		}
		amount0, amount1, err := call(owner, step.TickLower, step.TickUpper, amount)
		if err != nil {
			return res, err
		}
		res.Amount0, res.Amount1 = amount0.Dec(), amount1.Dec()
		fillOwed(&res, p, owner, step)
		return res, nil

	case ActionCollect:
		owner, err := parseAddress(step.Owner)
		if err != nil {
			return res, err
		}
		requested0, err := requested(step.Amount0)
		if err != nil {
			return res, err
		}
		requested1, err := requested(step.Amount1)
		if err != nil {
			return res, err
		}
		amount0, amount1, err := p.Collect(owner, step.TickLower, step.TickUpper, requested0, requested1)
		if err != nil {
			return res, err
		}
		res.Amount0, res.Amount1 = amount0.Dec(), amount1.Dec()
		fillOwed(&res, p, owner, step)
		return res, nil

	case ActionSwap:
		amount, ok := new(big.Int).SetString(step.Amount, 10)
		if !ok {
			return res, fmt.Errorf("invalid swap amount %q", step.Amount)
		}
		limit, err := swapLimit(step)
		if err != nil {
			return res, err
		}
		recipient := common.Address{}
		if step.Recipient != "" {
			if recipient, err = parseAddress(step.Recipient); err != nil {
				return res, err
			}
		}
		swapped, err := p.Swap(recipient, step.ZeroForOne, amount, limit)
		if err != nil {
			return res, err
		}
		res.Amount0, res.Amount1 = swapped.Amount0.String(), swapped.Amount1.String()
		res.FeeAmount = swapped.FeeAmount.Dec()
		res.CrossedTicks = swapped.CrossedTicks
		return res, nil
	}
	return res, fmt.Errorf("unknown action %q", step.Action)
}

func initialPrice(step Step) (*uint256.Int, error) {
	if step.SqrtPriceX96 != "" {
		price, err := uint256.FromDecimal(step.SqrtPriceX96)
		if err != nil {
			return nil, fmt.Errorf("sqrt price %q: %w", step.SqrtPriceX96, err)
		}
		return price, nil
	}
	return sqrtmath.SqrtRatioAtTick(*step.Tick)
}

// swapLimit returns nil when the step sets no limit.
func swapLimit(step Step) (*uint256.Int, error) {
	switch {
	case step.SqrtPriceLimitX96 != "":
		limit, err := uint256.FromDecimal(step.SqrtPriceLimitX96)
		if err != nil {
			return nil, fmt.Errorf("sqrt price limit %q: %w", step.SqrtPriceLimitX96, err)
		}
		return limit, nil
	case step.LimitTick != nil:
		return sqrtmath.SqrtRatioAtTick(*step.LimitTick)
	}
	return nil, nil
}

func requested(dec string) (*uint256.Int, error) {
	if dec == "" {
		return new(uint256.Int).Set(maxUint128), nil
	}
	v, err := uint256.FromDecimal(dec)
	if err != nil {
		return nil, fmt.Errorf("collect amount %q: %w", dec, err)
	}
	return v, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func fillOwed(res *StepResult, p *pool.Pool, owner common.Address, step Step) {
	if info, ok := p.Position(owner, step.TickLower, step.TickUpper); ok {
		res.TokensOwed0 = info.TokensOwed0.Dec()
		res.TokensOwed1 = info.TokensOwed1.Dec()
	}
}

func fillPool(res *StepResult, p *pool.Pool) {
	slot := p.Slot0()
	fg0, fg1 := p.FeeGrowthGlobal()
	res.SqrtPriceX96 = slot.SqrtPriceX96.Dec()
	res.Tick = slot.Tick
	res.Liquidity = p.Liquidity().Dec()
	res.FeeGrowthGlobal0X128 = fg0.Dec()
	res.FeeGrowthGlobal1X128 = fg1.Dec()
}
