// Package position tracks liquidity positions and the fees they are owed.
package position

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"liquidityLedger/internal/fixedpoint"
)

// ErrNoPositionLiquidity is returned when a zero-delta update targets an empty position.
var ErrNoPositionLiquidity = errors.New("position has no liquidity")

// Key identifies a position.
type Key struct {
	Owner     common.Address
	TickLower int32
	TickUpper int32
}

// Hash returns keccak256(owner ++ int24(tickLower) ++ int24(tickUpper)), the key the pool
// contract uses for its positions mapping.
func (k Key) Hash() common.Hash {
	buf := make([]byte, 0, common.AddressLength+6)
	buf = append(buf, k.Owner.Bytes()...)
	buf = appendInt24(buf, k.TickLower)
	buf = appendInt24(buf, k.TickUpper)
	return crypto.Keccak256Hash(buf)
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Owner.Hex(), k.TickLower, k.TickUpper)
}

func appendInt24(b []byte, v int32) []byte {
	u := uint32(v)
	return append(b, byte(u>>16), byte(u>>8), byte(u))
}

// Info is the state of one position.
type Info struct {
	Liquidity                uint256.Int
	FeeGrowthInside0LastX128 uint256.Int
	FeeGrowthInside1LastX128 uint256.Int
	TokensOwed0              uint256.Int
	TokensOwed1              uint256.Int
}

// Ledger holds every position of one pool.
type Ledger struct {
	positions map[Key]*Info
}

func NewLedger() *Ledger {
	return &Ledger{positions: make(map[Key]*Info)}
}

// Get returns a copy of the position state.
func (l *Ledger) Get(key Key) (Info, bool) {
	info, ok := l.positions[key]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

func (l *Ledger) Len() int {
	return len(l.positions)
}

// Keys returns every position key ordered by owner then ticks.
func (l *Ledger) Keys() []Key {
	keys := make([]Key, 0, len(l.positions))
	for k := range l.positions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := keys[i].Owner.Cmp(keys[j].Owner); c != 0 {
			return c < 0
		}
		if keys[i].TickLower != keys[j].TickLower {
			return keys[i].TickLower < keys[j].TickLower
		}
		return keys[i].TickUpper < keys[j].TickUpper
	})
	return keys
}

// CheckUpdate reports the error Update would return without touching any state.
func (l *Ledger) CheckUpdate(key Key, liquidityDelta *uint256.Int) error {
	var liquidity uint256.Int
	if info, ok := l.positions[key]; ok {
		liquidity = info.Liquidity
	}
	if liquidityDelta.IsZero() {
		if liquidity.IsZero() {
			return fmt.Errorf("poke %s: %w", key, ErrNoPositionLiquidity)
		}
		return nil
	}
	if _, err := fixedpoint.AddDelta(&liquidity, liquidityDelta); err != nil {
		return fmt.Errorf("position %s: %w", key, err)
	}
	return nil
}

// Update settles fees accrued since the last snapshot into the owed balances, moves the
// snapshots to the given inside growth and applies the liquidity delta. A zero delta only
// settles. Owed balances are uint128 and wrap.
func (l *Ledger) Update(key Key, liquidityDelta, feeGrowthInside0, feeGrowthInside1 *uint256.Int) (Info, error) {
	if err := l.CheckUpdate(key, liquidityDelta); err != nil {
		return Info{}, err
	}
	info, ok := l.positions[key]
	if !ok {
		info = &Info{}
		l.positions[key] = info
	}

	next, err := fixedpoint.AddDelta(&info.Liquidity, liquidityDelta)
	if err != nil {
		return Info{}, fmt.Errorf("position %s: %w", key, err)
	}

	owed0 := fixedpoint.AccruedFees(fixedpoint.SettleDelta(&info.FeeGrowthInside0LastX128, feeGrowthInside0), &info.Liquidity)
	owed1 := fixedpoint.AccruedFees(fixedpoint.SettleDelta(&info.FeeGrowthInside1LastX128, feeGrowthInside1), &info.Liquidity)

	info.Liquidity.Set(next)
	info.FeeGrowthInside0LastX128.Set(feeGrowthInside0)
	info.FeeGrowthInside1LastX128.Set(feeGrowthInside1)
	info.TokensOwed0.Set(fixedpoint.AddUint128(&info.TokensOwed0, fixedpoint.TruncateUint128(owed0)))
	info.TokensOwed1.Set(fixedpoint.AddUint128(&info.TokensOwed1, fixedpoint.TruncateUint128(owed1)))
	return *info, nil
}

// Credit adds principal released by a burn to the owed balances.
func (l *Ledger) Credit(key Key, amount0, amount1 *uint256.Int) {
	info, ok := l.positions[key]
	if !ok {
		return
	}
	info.TokensOwed0.Set(fixedpoint.AddUint128(&info.TokensOwed0, fixedpoint.TruncateUint128(amount0)))
	info.TokensOwed1.Set(fixedpoint.AddUint128(&info.TokensOwed1, fixedpoint.TruncateUint128(amount1)))
}

// Collect pays out up to the requested amounts from the owed balances.
func (l *Ledger) Collect(key Key, requested0, requested1 *uint256.Int) (*uint256.Int, *uint256.Int) {
	info, ok := l.positions[key]
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	amount0 := minUint(requested0, &info.TokensOwed0)
	amount1 := minUint(requested1, &info.TokensOwed1)
	info.TokensOwed0.Sub(&info.TokensOwed0, amount0)
	info.TokensOwed1.Sub(&info.TokensOwed1, amount1)
	return amount0, amount1
}

// Set stores a position as is. Used when restoring persisted state.
func (l *Ledger) Set(key Key, info Info) {
	c := info
	l.positions[key] = &c
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{positions: make(map[Key]*Info, len(l.positions))}
	for k, v := range l.positions {
		c := *v
		out.positions[k] = &c
	}
	return out
}

func minUint(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}
