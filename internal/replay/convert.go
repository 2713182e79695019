package replay

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityLedger/internal/fixedpoint"
	"liquidityLedger/internal/model"
	"liquidityLedger/internal/pool"
	"liquidityLedger/internal/position"
	"liquidityLedger/internal/tick"
)

// PoolRecords converts a pool state into records stamped with block.
func PoolRecords(meta model.Pool, s pool.State, block uint64) model.PoolSnapshot {
	out := model.PoolSnapshot{
		Pool: model.PoolStateRecord{
			ChainID:              meta.ChainID,
			Address:              meta.Address,
			Token0:               meta.Token0,
			Token1:               meta.Token1,
			Fee:                  s.Fee,
			TickSpacing:          s.TickSpacing,
			Initialized:          s.Initialized,
			SqrtPriceX96:         s.SqrtPriceX96.Dec(),
			Tick:                 s.Tick,
			Liquidity:            s.Liquidity.Dec(),
			FeeGrowthGlobal0X128: s.FeeGrowthGlobal0X128.Dec(),
			FeeGrowthGlobal1X128: s.FeeGrowthGlobal1X128.Dec(),
			BlockNumber:          block,
		},
		Ticks:     make([]model.TickRecord, 0, len(s.Ticks)),
		Positions: make([]model.PositionRecord, 0, len(s.Positions)),
	}

	ticks := make([]int32, 0, len(s.Ticks))
	for t := range s.Ticks {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	for _, t := range ticks {
		info := s.Ticks[t]
		out.Ticks = append(out.Ticks, model.TickRecord{
			Pool:                  meta.Address,
			Tick:                  t,
			LiquidityGross:        info.LiquidityGross.Dec(),
			LiquidityNet:          signedDec(&info.LiquidityNet),
			FeeGrowthOutside0X128: info.FeeGrowthOutside0X128.Dec(),
			FeeGrowthOutside1X128: info.FeeGrowthOutside1X128.Dec(),
			BlockNumber:           block,
		})
	}

	keys := make([]position.Key, 0, len(s.Positions))
	for k := range s.Positions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].Owner[:], keys[j].Owner[:]); c != 0 {
			return c < 0
		}
		if keys[i].TickLower != keys[j].TickLower {
			return keys[i].TickLower < keys[j].TickLower
		}
		return keys[i].TickUpper < keys[j].TickUpper
	})
	for _, k := range keys {
		info := s.Positions[k]
		out.Positions = append(out.Positions, model.PositionRecord{
			Pool:                     meta.Address,
			Key:                      k.Hash().Hex(),
			Owner:                    k.Owner.Hex(),
			TickLower:                k.TickLower,
			TickUpper:                k.TickUpper,
			Liquidity:                info.Liquidity.Dec(),
			FeeGrowthInside0LastX128: info.FeeGrowthInside0LastX128.Dec(),
			FeeGrowthInside1LastX128: info.FeeGrowthInside1LastX128.Dec(),
			TokensOwed0:              info.TokensOwed0.Dec(),
			TokensOwed1:              info.TokensOwed1.Dec(),
			BlockNumber:              block,
		})
	}
	return out
}

// PoolState rebuilds a pool state from its records.
func PoolState(ps model.PoolSnapshot) (pool.State, error) {
	rec := ps.Pool
	s := pool.State{
		Fee:         rec.Fee,
		TickSpacing: rec.TickSpacing,
		Initialized: rec.Initialized,
		Tick:        rec.Tick,
		Ticks:       make(map[int32]tick.Info, len(ps.Ticks)),
		Positions:   make(map[position.Key]position.Info, len(ps.Positions)),
	}
	if err := parseInto(&s.SqrtPriceX96, rec.SqrtPriceX96, "sqrt price"); err != nil {
		return pool.State{}, err
	}
	if err := parseInto(&s.Liquidity, rec.Liquidity, "liquidity"); err != nil {
		return pool.State{}, err
	}
	if err := parseInto(&s.FeeGrowthGlobal0X128, rec.FeeGrowthGlobal0X128, "fee growth global0"); err != nil {
		return pool.State{}, err
	}
	if err := parseInto(&s.FeeGrowthGlobal1X128, rec.FeeGrowthGlobal1X128, "fee growth global1"); err != nil {
		return pool.State{}, err
	}

	for _, tr := range ps.Ticks {
		var info tick.Info
		if err := parseInto(&info.LiquidityGross, tr.LiquidityGross, "liquidity gross"); err != nil {
			return pool.State{}, err
		}
		net, err := parseSigned(tr.LiquidityNet)
		if err != nil {
			return pool.State{}, fmt.Errorf("tick %d liquidity net: %w", tr.Tick, err)
		}
		info.LiquidityNet = *net
		if err := parseInto(&info.FeeGrowthOutside0X128, tr.FeeGrowthOutside0X128, "fee growth outside0"); err != nil {
			return pool.State{}, err
		}
		if err := parseInto(&info.FeeGrowthOutside1X128, tr.FeeGrowthOutside1X128, "fee growth outside1"); err != nil {
			return pool.State{}, err
		}
		s.Ticks[tr.Tick] = info
	}

	for _, pr := range ps.Positions {
		if !common.IsHexAddress(pr.Owner) {
			return pool.State{}, fmt.Errorf("position owner %q is not an address", pr.Owner)
		}
		key := position.Key{Owner: common.HexToAddress(pr.Owner), TickLower: pr.TickLower, TickUpper: pr.TickUpper}
		var info position.Info
		fields := []struct {
			dst  *uint256.Int
			src  string
			name string
		}{
			{&info.Liquidity, pr.Liquidity, "liquidity"},
			{&info.FeeGrowthInside0LastX128, pr.FeeGrowthInside0LastX128, "fee growth inside0"},
			{&info.FeeGrowthInside1LastX128, pr.FeeGrowthInside1LastX128, "fee growth inside1"},
			{&info.TokensOwed0, pr.TokensOwed0, "tokens owed0"},
			{&info.TokensOwed1, pr.TokensOwed1, "tokens owed1"},
		}
		for _, f := range fields {
			if err := parseInto(f.dst, f.src, f.name); err != nil {
				return pool.State{}, fmt.Errorf("position %s: %w", key, err)
			}
		}
		s.Positions[key] = info
	}
	return s, nil
}

func parseInto(dst *uint256.Int, dec, name string) error {
	if err := dst.SetFromDecimal(dec); err != nil {
		return fmt.Errorf("parse %s %q: %w", name, dec, err)
	}
	return nil
}

// signedDec renders a two's complement liquidity delta as a signed decimal.
func signedDec(delta *uint256.Int) string {
	if fixedpoint.IsNegative(delta) {
		return "-" + fixedpoint.Magnitude(delta).Dec()
	}
	return delta.Dec()
}

// parseSigned reads a signed decimal into two's complement, accepting the same int128 range
// the tick map stores.
func parseSigned(dec string) (*uint256.Int, error) {
	negative := strings.HasPrefix(dec, "-")
	v, err := uint256.FromDecimal(strings.TrimPrefix(dec, "-"))
	if err != nil {
		return nil, err
	}
	if v.BitLen() > 128 {
		return nil, fmt.Errorf("%s: %w", dec, fixedpoint.ErrLiquidityOverflow)
	}
	if negative {
		v.Neg(v)
	}
	if !fixedpoint.FitsInt128(v) {
		return nil, fmt.Errorf("%s: %w", dec, fixedpoint.ErrLiquidityOverflow)
	}
	return v, nil
}
