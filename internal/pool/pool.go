// Package pool is a concentrated liquidity pool: it owns the price, active liquidity, global
// fee growth, the tick map and the position ledger, and exposes initialize, mint, burn,
// collect and swap over them.
package pool

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityLedger/internal/position"
	"liquidityLedger/internal/sqrtmath"
	"liquidityLedger/internal/tick"
)

// MaxTickSpacing is the largest spacing accepted by New.
const MaxTickSpacing = 16384

// Config holds the immutable pool parameters.
type Config struct {
	// Fee in hundredths of a bip (1e-6).
	Fee         uint32
	TickSpacing int32
	Logger      *zap.Logger
}

// Slot0 is the current price and tick.
type Slot0 struct {
	SqrtPriceX96 *uint256.Int
	Tick         int32
}

// Pool is safe for concurrent use. Mutations are serialized; readers get copies.
type Pool struct {
	mu     sync.RWMutex
	logger *zap.Logger

	fee         uint32
	tickSpacing int32

	initialized          bool
	sqrtPriceX96         uint256.Int
	tick                 int32
	liquidity            uint256.Int
	feeGrowthGlobal0X128 uint256.Int
	feeGrowthGlobal1X128 uint256.Int

	ticks     *tick.Map
	positions *position.Ledger
}

// New returns an uninitialized pool.
func New(cfg Config) (*Pool, error) {
	if cfg.Fee >= sqrtmath.FeeDenominator {
		return nil, fmt.Errorf("fee %d: %w", cfg.Fee, ErrInvalidFee)
	}
	if cfg.TickSpacing <= 0 || cfg.TickSpacing > MaxTickSpacing {
		return nil, fmt.Errorf("tick spacing %d: %w", cfg.TickSpacing, ErrInvalidTickSpacing)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		logger:      logger,
		fee:         cfg.Fee,
		tickSpacing: cfg.TickSpacing,
		ticks:       tick.NewMap(cfg.TickSpacing),
		positions:   position.NewLedger(),
	}, nil
}

// Initialize sets the starting price and returns the matching tick.
func (p *Pool) Initialize(sqrtPriceX96 *uint256.Int) (int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return 0, ErrAlreadyInitialized
	}
	t, err := sqrtmath.TickAtSqrtRatio(sqrtPriceX96)
	if err != nil {
		return 0, fmt.Errorf("initialize: %w", err)
	}
	p.sqrtPriceX96.Set(sqrtPriceX96)
	p.tick = t
	p.initialized = true

	p.logger.Debug("pool initialized", zap.String("sqrt_price_x96", sqrtPriceX96.Dec()), zap.Int32("tick", t))
	return t, nil
}

func (p *Pool) Fee() uint32 {
	return p.fee
}

func (p *Pool) TickSpacing() int32 {
	return p.tickSpacing
}

func (p *Pool) Initialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialized
}

func (p *Pool) Slot0() Slot0 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Slot0{SqrtPriceX96: new(uint256.Int).Set(&p.sqrtPriceX96), Tick: p.tick}
}

// Liquidity is the liquidity active at the current price.
func (p *Pool) Liquidity() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(&p.liquidity)
}

// FeeGrowthGlobal returns the token0 and token1 fee growth accumulators.
func (p *Pool) FeeGrowthGlobal() (*uint256.Int, *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(&p.feeGrowthGlobal0X128), new(uint256.Int).Set(&p.feeGrowthGlobal1X128)
}

func (p *Pool) Tick(t int32) (tick.Info, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ticks.Get(t)
}

// Ticks lists initialized ticks in ascending order.
func (p *Pool) Ticks() []int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ticks.Ticks()
}

// NextInitializedTick returns the nearest initialized tick below or at (lte) or above t.
func (p *Pool) NextInitializedTick(t int32, lte bool) (int32, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ticks.NextInitializedTick(t, lte)
}

func (p *Pool) Position(owner common.Address, tickLower, tickUpper int32) (position.Info, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions.Get(position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper})
}

// Positions lists every position key, including emptied ones.
func (p *Pool) Positions() []position.Key {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions.Keys()
}

// FeeGrowthInside returns the current inside growth of a range without settling anything.
func (p *Pool) FeeGrowthInside(tickLower, tickUpper int32) (*uint256.Int, *uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.checkTicks(tickLower, tickUpper); err != nil {
		return nil, nil, err
	}
	in0, in1 := p.ticks.FeeGrowthInside(tickLower, tickUpper, p.tick, &p.feeGrowthGlobal0X128, &p.feeGrowthGlobal1X128)
	return in0, in1, nil
}

func (p *Pool) checkTicks(tickLower, tickUpper int32) error {
	if tickLower >= tickUpper {
		return fmt.Errorf("ticks %d %d: %w", tickLower, tickUpper, ErrInvalidTickOrder)
	}
	if err := p.ticks.Validate(tickLower); err != nil {
		return err
	}
	return p.ticks.Validate(tickUpper)
}
