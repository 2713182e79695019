package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityLedger/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"), "test")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreKeepsUint256AsText(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	max256 := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	require.NoError(t, s.PutPoolStates(ctx, []model.PoolStateRecord{{
		ChainID: 1, Address: "0xpool", Fee: 500, TickSpacing: 10, Initialized: true,
		SqrtPriceX96: "79228162514264337593543950336", Liquidity: "0",
		FeeGrowthGlobal0X128: max256, FeeGrowthGlobal1X128: "0",
	}}))

	var got string
	require.NoError(t, s.db.QueryRow(`SELECT fee_growth_global0_x128 FROM pool_states WHERE pool_address = ?`, "0xpool").Scan(&got))
	assert.Equal(t, max256, got)
}

func TestPutTicksReplacesPoolTicks(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	tick := func(pool string, t int32) model.TickRecord {
		return model.TickRecord{Pool: pool, Tick: t, LiquidityGross: "1", LiquidityNet: "1",
			FeeGrowthOutside0X128: "0", FeeGrowthOutside1X128: "0"}
	}
	require.NoError(t, s.PutTicks(ctx, []model.TickRecord{tick("0xa", -60), tick("0xa", 60), tick("0xb", 0)}))
	// tick 60 of pool a was cleared by a burn
	require.NoError(t, s.PutTicks(ctx, []model.TickRecord{tick("0xa", -60)}))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM pool_ticks WHERE pool_address = ?`, "0xa").Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM pool_ticks WHERE pool_address = ?`, "0xb").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPositionsUpsertByKey(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	pos := model.PositionRecord{Pool: "0xa", Key: "0xkey", Owner: "0xowner", TickLower: -60, TickUpper: 60,
		Liquidity: "100", FeeGrowthInside0LastX128: "0", FeeGrowthInside1LastX128: "0", TokensOwed0: "0", TokensOwed1: "0"}
	require.NoError(t, s.PutPositions(ctx, []model.PositionRecord{pos}))
	pos.Liquidity = "0"
	pos.TokensOwed0 = "42"
	require.NoError(t, s.PutPositions(ctx, []model.PositionRecord{pos}))

	var liquidity, owed string
	require.NoError(t, s.db.QueryRow(`SELECT liquidity, tokens_owed0 FROM pool_positions WHERE position_key = ?`, "0xkey").Scan(&liquidity, &owed))
	assert.Equal(t, "0", liquidity)
	assert.Equal(t, "42", owed)
}

func TestSnapshotResume(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, ok, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := model.LedgerSnapshot{Cursor: model.Cursor{BlockNumber: 100, LogIndex: 9}, SavedAt: "2024-01-01T00:00:00Z"}
	require.NoError(t, s.SaveSnapshot(ctx, snap))
	snap.Cursor.LogIndex = 10
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	got, ok, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)
}
