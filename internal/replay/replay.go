// Package replay rebuilds pool ledgers from decoded on-chain events and checks the engine
// against the values each Swap event reports.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"liquidityLedger/internal/model"
	"liquidityLedger/internal/pool"
)

// ErrMismatch is returned in strict mode when the engine disagrees with an event.
var ErrMismatch = errors.New("ledger does not match event")

// Config controls replay behavior.
type Config struct {
	// Strict stops at the first engine error or mismatch instead of counting it.
	Strict bool
}

// Stats summarizes a run.
type Stats struct {
	Total      int
	Applied    int
	Skipped    int
	Failed     int
	Mismatches int
}

// Replayer applies typed events to a registry of pools.
type Replayer struct {
	cfg      Config
	registry *pool.Registry
	pools    map[common.Address]*model.Pool
	cursor   model.Cursor
	started  bool
	logger   *zap.Logger
	stats    Stats
}

func New(cfg Config, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		cfg:      cfg,
		registry: pool.NewRegistry(logger),
		pools:    make(map[common.Address]*model.Pool),
		logger:   logger,
	}
}

// Registry exposes the replayed pools.
func (r *Replayer) Registry() *pool.Registry {
	return r.registry
}

func (r *Replayer) Stats() Stats {
	return r.stats
}

// Cursor returns the position of the last applied event and whether any event has been seen.
func (r *Replayer) Cursor() (model.Cursor, bool) {
	return r.cursor, r.started
}

// Run reads typed events as JSON lines from in and applies each in order.
func (r *Replayer) Run(ctx context.Context, in io.Reader) (Stats, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return r.stats, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		r.stats.Total++

		var record model.TypedEventRecord
		if err := sonnet.Unmarshal(line, &record); err != nil {
			r.stats.Failed++
			r.logger.Warn("decode typed event", zap.Int("line", r.stats.Total), zap.Error(err))
			if r.cfg.Strict {
				return r.stats, fmt.Errorf("line %d: %w", r.stats.Total, err)
			}
			continue
		}

		if err := r.Apply(record); err != nil {
			r.stats.Failed++
			r.logger.Warn("apply event",
				zap.String("pool", record.Address),
				zap.String("event", record.EventName),
				zap.Uint64("block_number", record.BlockNumber),
				zap.Uint64("log_index", record.LogIndex),
				zap.Error(err),
			)
			if r.cfg.Strict {
				return r.stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return r.stats, fmt.Errorf("scan input: %w", err)
	}

	r.logger.Info("replay complete",
		zap.Int("total", r.stats.Total),
		zap.Int("applied", r.stats.Applied),
		zap.Int("skipped", r.stats.Skipped),
		zap.Int("failed", r.stats.Failed),
		zap.Int("mismatches", r.stats.Mismatches),
		zap.Int("pools", r.registry.Len()),
	)
	return r.stats, nil
}

// Apply routes one event to its pool. Events at or before the cursor are skipped, so a
// replay resumed from a snapshot may be fed the whole input again.
func (r *Replayer) Apply(record model.TypedEventRecord) error {
	cur := record.Cursor()
	if r.started && !cur.After(r.cursor) {
		r.stats.Skipped++
		return nil
	}
	if !common.IsHexAddress(record.Address) {
		return fmt.Errorf("invalid pool address %q", record.Address)
	}
	addr := common.HexToAddress(record.Address)

	p, err := r.registry.GetOrCreate(addr, pool.Config{Fee: record.PoolMeta.Fee, TickSpacing: record.PoolMeta.TickSpacing})
	if err != nil {
		return err
	}
	if _, ok := r.pools[addr]; !ok {
		r.pools[addr] = &model.Pool{
			ChainID:        record.ChainID,
			Address:        addr.Hex(),
			Token0:         record.PoolMeta.Token0,
			Token1:         record.PoolMeta.Token1,
			Fee:            record.PoolMeta.Fee,
			TickSpacing:    record.PoolMeta.TickSpacing,
			FirstSeenBlock: record.BlockNumber,
		}
	}

	if err := r.applyEvent(p, record); err != nil {
		return fmt.Errorf("%s at %d/%d: %w", record.EventName, record.BlockNumber, record.LogIndex, err)
	}
	r.cursor = cur
	r.started = true
	r.stats.Applied++
	return nil
}

func (r *Replayer) applyEvent(p *pool.Pool, record model.TypedEventRecord) error {
	switch record.EventName {
	case model.EventInitialize:
		var ev model.InitializeEventData
		if err := sonnet.Unmarshal(record.Decoded, &ev); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		price, err := uint256.FromDecimal(ev.SqrtPriceX96)
		if err != nil {
			return fmt.Errorf("sqrt price: %w", err)
		}
		t, err := p.Initialize(price)
		if err != nil {
			return err
		}
		if t != ev.Tick {
			return r.mismatch(record, "tick", fmt.Sprint(ev.Tick), fmt.Sprint(t))
		}
		return nil

	case model.EventMint:
		var ev model.MintEventData
		if err := sonnet.Unmarshal(record.Decoded, &ev); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if err := r.ensureInitialized(p, record); err != nil {
			return err
		}
		owner, amount, err := ownerAndAmount(ev.Owner, ev.Amount)
		if err != nil {
			return err
		}
		amount0, amount1, err := p.Mint(owner, ev.TickLower, ev.TickUpper, amount)
		if err != nil {
			return err
		}
		return r.checkAmounts(record, ev.Amount0, ev.Amount1, amount0, amount1)

	case model.EventBurn:
		var ev model.BurnEventData
		if err := sonnet.Unmarshal(record.Decoded, &ev); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if err := r.ensureInitialized(p, record); err != nil {
			return err
		}
		owner, amount, err := ownerAndAmount(ev.Owner, ev.Amount)
		if err != nil {
			return err
		}
		amount0, amount1, err := p.Burn(owner, ev.TickLower, ev.TickUpper, amount)
		if err != nil {
			return err
		}
		return r.checkAmounts(record, ev.Amount0, ev.Amount1, amount0, amount1)

	case model.EventCollect:
		var ev model.CollectEventData
		if err := sonnet.Unmarshal(record.Decoded, &ev); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		owner, requested0, err := ownerAndAmount(ev.Owner, ev.Amount0)
		if err != nil {
			return err
		}
		requested1, err := uint256.FromDecimal(ev.Amount1)
		if err != nil {
			return fmt.Errorf("amount1: %w", err)
		}
		amount0, amount1, err := p.Collect(owner, ev.TickLower, ev.TickUpper, requested0, requested1)
		if err != nil {
			return err
		}
		return r.checkAmounts(record, ev.Amount0, ev.Amount1, amount0, amount1)

	case model.EventSwap:
		var ev model.SwapEventData
		if err := sonnet.Unmarshal(record.Decoded, &ev); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if !p.Initialized() {
			return fmt.Errorf("swap before initialize: %w", pool.ErrNotInitialized)
		}
		return r.applySwap(p, record, ev)

	default:
		return fmt.Errorf("unsupported event %q", record.EventName)
	}
}

// applySwap reproduces a swap as an exact input of the amount the pool received, then
// compares the outcome with the event.
func (r *Replayer) applySwap(p *pool.Pool, record model.TypedEventRecord, ev model.SwapEventData) error {
	amount0, ok0 := new(big.Int).SetString(ev.Amount0, 10)
	amount1, ok1 := new(big.Int).SetString(ev.Amount1, 10)
	if !ok0 || !ok1 {
		return fmt.Errorf("invalid swap amounts %q %q", ev.Amount0, ev.Amount1)
	}
	target, err := uint256.FromDecimal(ev.SqrtPriceX96)
	if err != nil {
		return fmt.Errorf("sqrt price: %w", err)
	}
	eventLiquidity, err := uint256.FromDecimal(ev.Liquidity)
	if err != nil {
		return fmt.Errorf("liquidity: %w", err)
	}

	zeroForOne := amount0.Sign() > 0
	amountIn := amount1
	if zeroForOne {
		amountIn = amount0
	}
	if amountIn.Sign() <= 0 {
		r.logger.Debug("swap without input", zap.String("pool", record.Address), zap.Uint64("block_number", record.BlockNumber))
		return nil
	}

	// A swap that consumed its whole input ends where an unbounded quote ends. One that hit
	// its limit ends at the event price, so that price becomes the limit.
	var limit *uint256.Int
	if quote, err := p.Quote(zeroForOne, amountIn, nil); err != nil || !quote.SqrtPriceX96.Eq(target) {
		if !target.Eq(p.Slot0().SqrtPriceX96) {
			limit = target
		}
	}

	recipient := common.Address{}
	if common.IsHexAddress(ev.Recipient) {
		recipient = common.HexToAddress(ev.Recipient)
	}
	res, err := p.Swap(recipient, zeroForOne, amountIn, limit)
	if err != nil {
		return err
	}

	var mismatches []error
	if res.Amount0.Cmp(amount0) != 0 || res.Amount1.Cmp(amount1) != 0 {
		mismatches = append(mismatches, r.mismatch(record, "amounts", ev.Amount0+"/"+ev.Amount1, res.Amount0.String()+"/"+res.Amount1.String()))
	}
	if !res.SqrtPriceX96.Eq(target) {
		mismatches = append(mismatches, r.mismatch(record, "sqrt_price_x96", ev.SqrtPriceX96, res.SqrtPriceX96.Dec()))
	}
	if res.Tick != ev.Tick {
		mismatches = append(mismatches, r.mismatch(record, "tick", fmt.Sprint(ev.Tick), fmt.Sprint(res.Tick)))
	}
	if !res.Liquidity.Eq(eventLiquidity) {
		mismatches = append(mismatches, r.mismatch(record, "liquidity", ev.Liquidity, res.Liquidity.Dec()))
	}
	return errors.Join(mismatches...)
}

// ensureInitialized falls back to the slot0 price carried in the event's metadata when a
// pool's Initialize event was not part of the input.
func (r *Replayer) ensureInitialized(p *pool.Pool, record model.TypedEventRecord) error {
	if p.Initialized() {
		return nil
	}
	slot0 := record.PoolMeta.Slot0
	if slot0 == nil {
		return fmt.Errorf("no Initialize event or slot0 metadata: %w", pool.ErrNotInitialized)
	}
	price, err := uint256.FromDecimal(slot0.SqrtPriceX96)
	if err != nil {
		return fmt.Errorf("slot0 sqrt price: %w", err)
	}
	if _, err := p.Initialize(price); err != nil {
		return err
	}
	r.logger.Warn("pool initialized from slot0 metadata",
		zap.String("pool", record.Address),
		zap.Uint64("block_number", record.BlockNumber),
		zap.String("sqrt_price_x96", slot0.SqrtPriceX96),
	)
	return nil
}

func (r *Replayer) checkAmounts(record model.TypedEventRecord, want0, want1 string, got0, got1 *uint256.Int) error {
	if got0.Dec() == want0 && got1.Dec() == want1 {
		return nil
	}
	return r.mismatch(record, "amounts", want0+"/"+want1, got0.Dec()+"/"+got1.Dec())
}

// mismatch counts and logs a disagreement. It returns an error only in strict mode.
func (r *Replayer) mismatch(record model.TypedEventRecord, field, want, got string) error {
	r.stats.Mismatches++
	r.logger.Warn("ledger mismatch",
		zap.String("pool", record.Address),
		zap.String("event", record.EventName),
		zap.Uint64("block_number", record.BlockNumber),
		zap.Uint64("log_index", record.LogIndex),
		zap.String("field", field),
		zap.String("event_value", want),
		zap.String("ledger_value", got),
	)
	if r.cfg.Strict {
		return fmt.Errorf("%s: event %s ledger %s: %w", field, want, got, ErrMismatch)
	}
	return nil
}

func ownerAndAmount(owner, amount string) (common.Address, *uint256.Int, error) {
	if !common.IsHexAddress(owner) {
		return common.Address{}, nil, fmt.Errorf("invalid owner %q", owner)
	}
	v, err := uint256.FromDecimal(amount)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("amount %q: %w", amount, err)
	}
	return common.HexToAddress(owner), v, nil
}

// Snapshot captures every pool with the current cursor.
func (r *Replayer) Snapshot() model.LedgerSnapshot {
	snap := model.LedgerSnapshot{
		Cursor:  r.cursor,
		SavedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, addr := range r.registry.Addresses() {
		p, _ := r.registry.Get(addr)
		snap.Pools = append(snap.Pools, PoolRecords(*r.pools[addr], p.Snapshot(), r.cursor.BlockNumber))
	}
	return snap
}

// Restore loads a snapshot into an empty replayer.
func (r *Replayer) Restore(snap model.LedgerSnapshot) error {
	if r.registry.Len() > 0 {
		return fmt.Errorf("restore into a replayer that already holds %d pools", r.registry.Len())
	}
	for _, ps := range snap.Pools {
		if !common.IsHexAddress(ps.Pool.Address) {
			return fmt.Errorf("invalid pool address %q", ps.Pool.Address)
		}
		addr := common.HexToAddress(ps.Pool.Address)
		state, err := PoolState(ps)
		if err != nil {
			return fmt.Errorf("pool %s: %w", addr.Hex(), err)
		}
		p, err := r.registry.GetOrCreate(addr, pool.Config{Fee: state.Fee, TickSpacing: state.TickSpacing})
		if err != nil {
			return err
		}
		if err := p.Restore(state); err != nil {
			return fmt.Errorf("pool %s: %w", addr.Hex(), err)
		}
		r.pools[addr] = &model.Pool{
			ChainID:        ps.Pool.ChainID,
			Address:        addr.Hex(),
			Token0:         ps.Pool.Token0,
			Token1:         ps.Pool.Token1,
			Fee:            ps.Pool.Fee,
			TickSpacing:    ps.Pool.TickSpacing,
			FirstSeenBlock: ps.Pool.BlockNumber,
		}
	}
	r.cursor = snap.Cursor
	r.started = len(snap.Pools) > 0 || snap.Cursor != (model.Cursor{})
	return nil
}
