package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityLedger/internal/model"
)

func TestDistinctPoolsKeepsFirstSeenOrder(t *testing.T) {
	ticks := []model.TickRecord{{Pool: "0xb"}, {Pool: "0xa"}, {Pool: "0xb"}, {Pool: "0xc"}}
	got := distinctPools(ticks, func(t model.TickRecord) string { return t.Pool })
	assert.Equal(t, []string{"0xb", "0xa", "0xc"}, got)
}

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "", "replay")
	require.Error(t, err)
}

// Runs against a live database when LEDGER_TEST_PG_DSN is set.
func TestStoreSnapshotRoundTrip(t *testing.T) {
	dsn := os.Getenv("LEDGER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn, "store_test")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	state := model.PoolStateRecord{
		ChainID:              1,
		Address:              "0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8",
		Fee:                  3000,
		TickSpacing:          60,
		Initialized:          true,
		SqrtPriceX96:         "1350174849792634181862360983626536",
		Tick:                 195285,
		Liquidity:            "340282366920938463463374607431768211455",
		FeeGrowthGlobal0X128: "0",
		FeeGrowthGlobal1X128: "115792089237316195423570985008687907853269984665640564039457584007913129639935",
	}
	require.NoError(t, store.PutPoolStates(ctx, []model.PoolStateRecord{state}))
	require.NoError(t, store.PutTicks(ctx, []model.TickRecord{{
		Pool: state.Address, Tick: 195240, LiquidityGross: "10", LiquidityNet: "-10",
		FeeGrowthOutside0X128: "1", FeeGrowthOutside1X128: "2",
	}}))

	snap := model.LedgerSnapshot{Cursor: model.Cursor{BlockNumber: 12376729, LogIndex: 2}}
	require.NoError(t, store.SaveSnapshot(ctx, snap))
	got, ok, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.Cursor, got.Cursor)
}
