package replay

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityLedger/internal/fixedpoint"
	"liquidityLedger/internal/model"
	"liquidityLedger/internal/pool"
	"liquidityLedger/internal/sqrtmath"
)

var (
	poolAddr = common.HexToAddress("0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	e18      = uint256.NewInt(1_000_000_000_000_000_000)
	maxOwed  = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)
)

// eventLog records what a reference pool did as typed event lines.
type eventLog struct {
	t     *testing.T
	meta  model.PoolMeta
	block uint64
	lines []string
	recs  []model.TypedEventRecord
}

func newEventLog(t *testing.T) *eventLog {
	return &eventLog{
		t:     t,
		meta:  model.PoolMeta{Token0: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Token1: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Fee: 500, TickSpacing: 10},
		block: 100,
	}
}

func (l *eventLog) add(name string, data interface{}) {
	l.t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(l.t, err)
	rec := model.TypedEventRecord{
		ChainID:     1,
		BlockNumber: l.block,
		TxHash:      "0xabc",
		LogIndex:    uint64(len(l.recs)),
		Address:     poolAddr.Hex(),
		EventName:   name,
		Decoded:     payload,
		PoolMeta:    l.meta,
	}
	line, err := json.Marshal(rec)
	require.NoError(l.t, err)
	l.recs = append(l.recs, rec)
	l.lines = append(l.lines, string(line))
}

func (l *eventLog) input() *strings.Reader {
	return strings.NewReader(strings.Join(l.lines, "\n") + "\n")
}

func (l *eventLog) swapEvent(res pool.SwapResult) model.SwapEventData {
	return model.SwapEventData{
		Sender:       bob.Hex(),
		Recipient:    bob.Hex(),
		Amount0:      res.Amount0.String(),
		Amount1:      res.Amount1.String(),
		SqrtPriceX96: res.SqrtPriceX96.Dec(),
		Liquidity:    res.Liquidity.Dec(),
		Tick:         res.Tick,
	}
}

// history drives a reference pool through a mint, swap, burn and collect sequence and
// returns the pool with the events it would have logged.
func history(t *testing.T) (*pool.Pool, *eventLog) {
	t.Helper()
	log := newEventLog(t)
	ref, err := pool.New(pool.Config{Fee: 500, TickSpacing: 10})
	require.NoError(t, err)

	price, err := sqrtmath.SqrtRatioAtTick(0)
	require.NoError(t, err)
	initTick, err := ref.Initialize(price)
	require.NoError(t, err)
	log.add(model.EventInitialize, model.InitializeEventData{SqrtPriceX96: price.Dec(), Tick: initTick})

	mint := func(owner common.Address, lower, upper int32, amount *uint256.Int) {
		a0, a1, err := ref.Mint(owner, lower, upper, amount)
		require.NoError(t, err)
		log.add(model.EventMint, model.MintEventData{
			Sender: owner.Hex(), Owner: owner.Hex(), TickLower: lower, TickUpper: upper,
			Amount: amount.Dec(), Amount0: a0.Dec(), Amount1: a1.Dec(),
		})
	}
	swap := func(zeroForOne bool, amountIn int64) pool.SwapResult {
		res, err := ref.Swap(bob, zeroForOne, big.NewInt(amountIn), nil)
		require.NoError(t, err)
		log.add(model.EventSwap, log.swapEvent(res))
		return res
	}

	mint(alice, -100, 100, e18)
	mint(bob, 50, 200, e18)
	up := swap(false, 3_000_000_000_000_000)
	require.Equal(t, []int32{50}, up.CrossedTicks)
	log.block++
	down := swap(true, 2_000_000_000_000_000)
	require.Equal(t, []int32{50}, down.CrossedTicks)

	half := new(uint256.Int).Rsh(e18, 1)
	b0, b1, err := ref.Burn(alice, -100, 100, half)
	require.NoError(t, err)
	log.add(model.EventBurn, model.BurnEventData{
		Owner: alice.Hex(), TickLower: -100, TickUpper: 100,
		Amount: half.Dec(), Amount0: b0.Dec(), Amount1: b1.Dec(),
	})

	c0, c1, err := ref.Collect(alice, -100, 100, maxOwed, maxOwed)
	require.NoError(t, err)
	log.add(model.EventCollect, model.CollectEventData{
		Owner: alice.Hex(), Recipient: alice.Hex(), TickLower: -100, TickUpper: 100,
		Amount0: c0.Dec(), Amount1: c1.Dec(),
	})
	return ref, log
}

func replayed(t *testing.T, r *Replayer) *pool.Pool {
	t.Helper()
	p, ok := r.Registry().Get(poolAddr)
	require.True(t, ok)
	return p
}

func TestReplayReproducesPool(t *testing.T) {
	ref, log := history(t)

	r := New(Config{Strict: true}, nil)
	stats, err := r.Run(context.Background(), log.input())
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 7, Applied: 7}, stats)
	assert.Equal(t, ref.Snapshot(), replayed(t, r).Snapshot())

	cur, ok := r.Cursor()
	require.True(t, ok)
	assert.Equal(t, model.Cursor{BlockNumber: 101, LogIndex: 6}, cur)
}

func TestReplaySkipsEventsAtOrBeforeCursor(t *testing.T) {
	ref, log := history(t)

	r := New(Config{}, nil)
	_, err := r.Run(context.Background(), log.input())
	require.NoError(t, err)

	stats, err := r.Run(context.Background(), log.input())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Applied)
	assert.Equal(t, 7, stats.Skipped)
	assert.Equal(t, ref.Snapshot(), replayed(t, r).Snapshot())
}

func TestReplaySnapshotRestore(t *testing.T) {
	ref, log := history(t)

	// replay the first half, snapshot through JSON, then resume on a fresh replayer
	first := New(Config{Strict: true}, nil)
	for _, rec := range log.recs[:4] {
		require.NoError(t, first.Apply(rec))
	}
	encoded, err := json.Marshal(first.Snapshot())
	require.NoError(t, err)

	var snap model.LedgerSnapshot
	require.NoError(t, json.Unmarshal(encoded, &snap))
	require.Len(t, snap.Pools, 1)
	assert.Equal(t, model.Cursor{BlockNumber: 100, LogIndex: 3}, snap.Cursor)
	assert.Equal(t, poolAddr.Hex(), snap.Pools[0].Pool.Address)
	assert.Len(t, snap.Pools[0].Ticks, 4)
	assert.Len(t, snap.Pools[0].Positions, 2)

	second := New(Config{Strict: true}, nil)
	require.NoError(t, second.Restore(snap))
	assert.Equal(t, replayed(t, first).Snapshot(), replayed(t, second).Snapshot())

	stats, err := second.Run(context.Background(), log.input())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Skipped)
	assert.Equal(t, 3, stats.Applied)
	assert.Equal(t, ref.Snapshot(), replayed(t, second).Snapshot())

	assert.Error(t, second.Restore(snap), "restore into a populated replayer")
}

func TestPoolRecordsSignedLiquidityNet(t *testing.T) {
	ref, _ := history(t)
	ps := PoolRecords(model.Pool{Address: poolAddr.Hex()}, ref.Snapshot(), 7)

	nets := map[int32]string{}
	for _, tr := range ps.Ticks {
		nets[tr.Tick] = tr.LiquidityNet
		assert.Equal(t, uint64(7), tr.BlockNumber)
	}
	assert.Equal(t, "500000000000000000", nets[-100])
	assert.Equal(t, "-500000000000000000", nets[100])
	assert.Equal(t, "-1000000000000000000", nets[200])

	back, err := PoolState(ps)
	require.NoError(t, err)
	assert.Equal(t, ref.Snapshot(), back)

	ps.Ticks[0].LiquidityNet = "abc"
	_, err = PoolState(ps)
	assert.Error(t, err)
}

func TestPoolStateLiquidityNetRange(t *testing.T) {
	ref, _ := history(t)
	ps := PoolRecords(model.Pool{Address: poolAddr.Hex()}, ref.Snapshot(), 7)
	require.NotEmpty(t, ps.Ticks)

	cases := map[string]bool{
		"-170141183460469231731687303715884105728": true,
		"170141183460469231731687303715884105727":  true,
		"-0": true,
		"170141183460469231731687303715884105728":                                         false,
		"-170141183460469231731687303715884105729":                                        false,
		"-115792089237316195423570985008687907853269984665640564039457584007913129639935": false,
	}
	for net, ok := range cases {
		t.Run(net, func(t *testing.T) {
			ps.Ticks[0].LiquidityNet = net
			back, err := PoolState(ps)
			if !ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			info := back.Ticks[ps.Ticks[0].Tick]
			assert.True(t, fixedpoint.FitsInt128(&info.LiquidityNet))
			want := strings.TrimPrefix(net, "-")
			if want != "0" {
				want = net
			}
			assert.Equal(t, want, signedDec(&info.LiquidityNet))
		})
	}
}

func TestReplayMismatch(t *testing.T) {
	ref, log := history(t)

	// the first swap reports a tick one above where its price lies
	var ev model.SwapEventData
	require.NoError(t, json.Unmarshal(log.recs[3].Decoded, &ev))
	ev.Tick++
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	log.recs[3].Decoded = payload
	line, err := json.Marshal(log.recs[3])
	require.NoError(t, err)
	log.lines[3] = string(line)

	t.Run("counted", func(t *testing.T) {
		r := New(Config{}, nil)
		stats, err := r.Run(context.Background(), log.input())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Mismatches)
		assert.Equal(t, 7, stats.Applied)
		assert.Zero(t, stats.Failed)
		assert.Equal(t, ref.Snapshot(), replayed(t, r).Snapshot())
	})

	t.Run("strict", func(t *testing.T) {
		r := New(Config{Strict: true}, nil)
		stats, err := r.Run(context.Background(), log.input())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMismatch))
		assert.Equal(t, 3, stats.Applied)
		assert.Equal(t, 1, stats.Failed)
	})
}

func TestReplayInitializeTickMismatch(t *testing.T) {
	log := newEventLog(t)
	price, err := sqrtmath.SqrtRatioAtTick(0)
	require.NoError(t, err)
	log.add(model.EventInitialize, model.InitializeEventData{SqrtPriceX96: price.Dec(), Tick: 5})

	r := New(Config{Strict: true}, nil)
	_, err = r.Run(context.Background(), log.input())
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestReplayInitializesFromSlot0(t *testing.T) {
	log := newEventLog(t)
	price, err := sqrtmath.SqrtRatioAtTick(20)
	require.NoError(t, err)
	log.meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: price.Dec(), Tick: 20}

	ref, err := pool.New(pool.Config{Fee: 500, TickSpacing: 10})
	require.NoError(t, err)
	_, err = ref.Initialize(price)
	require.NoError(t, err)
	a0, a1, err := ref.Mint(alice, -100, 100, e18)
	require.NoError(t, err)
	log.add(model.EventMint, model.MintEventData{
		Sender: alice.Hex(), Owner: alice.Hex(), TickLower: -100, TickUpper: 100,
		Amount: e18.Dec(), Amount0: a0.Dec(), Amount1: a1.Dec(),
	})

	r := New(Config{Strict: true}, nil)
	stats, err := r.Run(context.Background(), log.input())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, ref.Snapshot(), replayed(t, r).Snapshot())
}

func TestReplaySwapBeforeInitialize(t *testing.T) {
	log := newEventLog(t)
	price, err := sqrtmath.SqrtRatioAtTick(0)
	require.NoError(t, err)
	// slot0 metadata does not stand in for a missing Initialize ahead of a swap
	log.meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: price.Dec()}
	log.add(model.EventSwap, model.SwapEventData{
		Amount0: "1000", Amount1: "-990", SqrtPriceX96: price.Dec(), Liquidity: "0",
	})

	r := New(Config{}, nil)
	stats, err := r.Run(context.Background(), log.input())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Applied)

	err = New(Config{}, nil).Apply(log.recs[0])
	assert.ErrorIs(t, err, pool.ErrNotInitialized)
}

func TestReplayRejectsBadInput(t *testing.T) {
	input := strings.NewReader("not json\n\n" + `{"address":"nope","event_name":"Swap","pool_meta":{"fee":500,"tick_spacing":10}}` + "\n")

	r := New(Config{}, nil)
	stats, err := r.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Failed: 2}, stats)

	r = New(Config{Strict: true}, nil)
	_, err = r.Run(context.Background(), strings.NewReader("not json\n"))
	assert.Error(t, err)
}

func TestReplayStopsOnCancel(t *testing.T) {
	_, log := history(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(Config{}, nil)
	_, err := r.Run(ctx, log.input())
	assert.ErrorIs(t, err, context.Canceled)
}
