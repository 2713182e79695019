// Package scenario runs scripted step lists against a fresh pool. Scenarios are YAML, JSON
// or TOML files; values above 2^63 must be quoted strings.
package scenario

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	ActionInitialize = "initialize"
	ActionMint       = "mint"
	ActionBurn       = "burn"
	ActionCollect    = "collect"
	ActionSwap       = "swap"
)

// Scenario describes one pool and the steps applied to it in order.
type Scenario struct {
	Name        string `mapstructure:"name"`
	Pool        string `mapstructure:"pool"`
	Fee         uint32 `mapstructure:"fee"`
	TickSpacing int32  `mapstructure:"tick_spacing"`
	Steps       []Step `mapstructure:"steps"`
}

// Step is one pool call. Which fields apply depends on Action.
type Step struct {
	Action string `mapstructure:"action"`

	// initialize: SqrtPriceX96, or Tick when the price is empty
	SqrtPriceX96 string `mapstructure:"sqrt_price_x96"`
	Tick         *int32 `mapstructure:"tick"`

	// mint, burn, collect
	Owner     string `mapstructure:"owner"`
	TickLower int32  `mapstructure:"tick_lower"`
	TickUpper int32  `mapstructure:"tick_upper"`
	// Amount is liquidity for mint and burn, and the signed amount specified for swap.
	Amount string `mapstructure:"amount"`
	// collect requests; empty collects everything owed
	Amount0 string `mapstructure:"amount0"`
	Amount1 string `mapstructure:"amount1"`

	// swap
	ZeroForOne        bool   `mapstructure:"zero_for_one"`
	SqrtPriceLimitX96 string `mapstructure:"sqrt_price_limit_x96"`
	LimitTick         *int32 `mapstructure:"limit_tick"`
	Recipient         string `mapstructure:"recipient"`

	// Repeat runs the step this many times; zero means once.
	Repeat int `mapstructure:"repeat"`
	// ExpectError marks a step that must fail and leave the pool unchanged.
	ExpectError bool `mapstructure:"expect_error"`
}

// Load reads a scenario file. The format follows the file extension.
func Load(path string) (Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}

	var sc Scenario
	if err := v.Unmarshal(&sc); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Validate checks the step list without touching a pool.
func (sc Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("no steps")
	}
	for i, step := range sc.Steps {
		step.Action = strings.ToLower(strings.TrimSpace(step.Action))
		switch step.Action {
		case ActionInitialize:
			if step.SqrtPriceX96 == "" && step.Tick == nil {
				return fmt.Errorf("step %d: initialize needs sqrt_price_x96 or tick", i)
			}
		case ActionMint, ActionBurn, ActionCollect:
			if step.Owner == "" {
				return fmt.Errorf("step %d: %s needs an owner", i, step.Action)
			}
			if step.Action != ActionCollect && step.Amount == "" {
				return fmt.Errorf("step %d: %s needs an amount", i, step.Action)
			}
		case ActionSwap:
			if step.Amount == "" {
				return fmt.Errorf("step %d: swap needs an amount", i)
			}
			if step.SqrtPriceLimitX96 != "" && step.LimitTick != nil {
				return fmt.Errorf("step %d: set sqrt_price_limit_x96 or limit_tick, not both", i)
			}
		default:
			return fmt.Errorf("step %d: unknown action %q", i, step.Action)
		}
		if step.Repeat < 0 {
			return fmt.Errorf("step %d: negative repeat", i)
		}
	}
	return nil
}
