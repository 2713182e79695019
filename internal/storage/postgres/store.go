package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityLedger/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	fee INTEGER NOT NULL,
	tick_spacing INTEGER NOT NULL,
	first_seen_block BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address)
);
CREATE TABLE IF NOT EXISTS pool_states (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	initialized BOOLEAN NOT NULL,
	sqrt_price_x96 NUMERIC(78, 0) NOT NULL,
	tick INTEGER NOT NULL,
	liquidity NUMERIC(78, 0) NOT NULL,
	fee_growth_global0_x128 NUMERIC(78, 0) NOT NULL,
	fee_growth_global1_x128 NUMERIC(78, 0) NOT NULL,
	block_number BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address)
);
CREATE TABLE IF NOT EXISTS pool_ticks (
	pool_address TEXT NOT NULL,
	tick INTEGER NOT NULL,
	liquidity_gross NUMERIC(78, 0) NOT NULL,
	liquidity_net NUMERIC(78, 0) NOT NULL,
	fee_growth_outside0_x128 NUMERIC(78, 0) NOT NULL,
	fee_growth_outside1_x128 NUMERIC(78, 0) NOT NULL,
	block_number BIGINT NOT NULL,
	PRIMARY KEY (pool_address, tick)
);
CREATE TABLE IF NOT EXISTS pool_positions (
	pool_address TEXT NOT NULL,
	position_key TEXT NOT NULL,
	owner TEXT NOT NULL,
	tick_lower INTEGER NOT NULL,
	tick_upper INTEGER NOT NULL,
	liquidity NUMERIC(78, 0) NOT NULL,
	fee_growth_inside0_last_x128 NUMERIC(78, 0) NOT NULL,
	fee_growth_inside1_last_x128 NUMERIC(78, 0) NOT NULL,
	tokens_owed0 NUMERIC(78, 0) NOT NULL,
	tokens_owed1 NUMERIC(78, 0) NOT NULL,
	block_number BIGINT NOT NULL,
	PRIMARY KEY (pool_address, position_key)
);
CREATE TABLE IF NOT EXISTS ledger_snapshots (
	name TEXT PRIMARY KEY,
	block_number BIGINT NOT NULL,
	log_index BIGINT NOT NULL,
	snapshot JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store persists ledger records in Postgres. Big integers are stored as NUMERIC(78, 0),
// which holds any uint256.
type Store struct {
	pool *pgxpool.Pool
	name string
}

// NewStore connects to dsn. name keys the replay snapshot row.
func NewStore(ctx context.Context, dsn, name string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if name == "" {
		name = "default"
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, name: name}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO pools (chain_id, pool_address, token0, token1, fee, tick_spacing, first_seen_block)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				fee = EXCLUDED.fee,
				tick_spacing = EXCLUDED.tick_spacing,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`, int64(p.ChainID), p.Address, p.Token0, p.Token1, int64(p.Fee), p.TickSpacing, int64(p.FirstSeenBlock))
	}
	return s.sendBatch(ctx, batch)
}

// PutPoolStates upserts pool states together with their metadata rows.
func (s *Store) PutPoolStates(ctx context.Context, states []model.PoolStateRecord) error {
	pools := make([]model.Pool, 0, len(states))
	batch := &pgx.Batch{}
	for _, st := range states {
		pools = append(pools, model.Pool{
			ChainID:        st.ChainID,
			Address:        st.Address,
			Token0:         st.Token0,
			Token1:         st.Token1,
			Fee:            st.Fee,
			TickSpacing:    st.TickSpacing,
			FirstSeenBlock: st.BlockNumber,
		})
		batch.Queue(`
			INSERT INTO pool_states (
				chain_id, pool_address, initialized, sqrt_price_x96, tick, liquidity,
				fee_growth_global0_x128, fee_growth_global1_x128, block_number
			) VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric, $7::numeric, $8::numeric, $9)
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				initialized = EXCLUDED.initialized,
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				tick = EXCLUDED.tick,
				liquidity = EXCLUDED.liquidity,
				fee_growth_global0_x128 = EXCLUDED.fee_growth_global0_x128,
				fee_growth_global1_x128 = EXCLUDED.fee_growth_global1_x128,
				block_number = EXCLUDED.block_number,
				updated_at = now()
		`, int64(st.ChainID), st.Address, st.Initialized, st.SqrtPriceX96, st.Tick, st.Liquidity,
			st.FeeGrowthGlobal0X128, st.FeeGrowthGlobal1X128, int64(st.BlockNumber))
	}
	if err := s.UpsertPools(ctx, pools); err != nil {
		return err
	}
	return s.sendBatch(ctx, batch)
}

// PutTicks replaces the stored ticks of every pool present in ticks.
func (s *Store) PutTicks(ctx context.Context, ticks []model.TickRecord) error {
	batch := &pgx.Batch{}
	for _, pool := range distinctPools(ticks, func(t model.TickRecord) string { return t.Pool }) {
		batch.Queue(`DELETE FROM pool_ticks WHERE pool_address = $1`, pool)
	}
	for _, t := range ticks {
		batch.Queue(`
			INSERT INTO pool_ticks (
				pool_address, tick, liquidity_gross, liquidity_net,
				fee_growth_outside0_x128, fee_growth_outside1_x128, block_number
			) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7)
		`, t.Pool, t.Tick, t.LiquidityGross, t.LiquidityNet, t.FeeGrowthOutside0X128, t.FeeGrowthOutside1X128, int64(t.BlockNumber))
	}
	return s.sendTx(ctx, batch)
}

// PutPositions upserts positions. Positions are never deleted; an empty one keeps its row.
func (s *Store) PutPositions(ctx context.Context, positions []model.PositionRecord) error {
	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(`
			INSERT INTO pool_positions (
				pool_address, position_key, owner, tick_lower, tick_upper, liquidity,
				fee_growth_inside0_last_x128, fee_growth_inside1_last_x128,
				tokens_owed0, tokens_owed1, block_number
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11)
			ON CONFLICT (pool_address, position_key)
			DO UPDATE SET
				liquidity = EXCLUDED.liquidity,
				fee_growth_inside0_last_x128 = EXCLUDED.fee_growth_inside0_last_x128,
				fee_growth_inside1_last_x128 = EXCLUDED.fee_growth_inside1_last_x128,
				tokens_owed0 = EXCLUDED.tokens_owed0,
				tokens_owed1 = EXCLUDED.tokens_owed1,
				block_number = EXCLUDED.block_number
		`, p.Pool, p.Key, p.Owner, p.TickLower, p.TickUpper, p.Liquidity,
			p.FeeGrowthInside0LastX128, p.FeeGrowthInside1LastX128, p.TokensOwed0, p.TokensOwed1, int64(p.BlockNumber))
	}
	return s.sendBatch(ctx, batch)
}

// LoadSnapshot returns the replay snapshot stored under the store's name.
func (s *Store) LoadSnapshot(ctx context.Context) (model.LedgerSnapshot, bool, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT snapshot FROM ledger_snapshots WHERE name = $1`, s.name)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LedgerSnapshot{}, false, nil
		}
		return model.LedgerSnapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	var snap model.LedgerSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

// SaveSnapshot upserts the replay snapshot under the store's name.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.LedgerSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ledger_snapshots (name, block_number, log_index, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET block_number = EXCLUDED.block_number,
			log_index = EXCLUDED.log_index,
			snapshot = EXCLUDED.snapshot,
			updated_at = now()
	`, s.name, int64(snap.Cursor.BlockNumber), int64(snap.Cursor.LogIndex), raw)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) sendTx(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return err
			}
		}
		return br.Close()
	})
}

func distinctPools[T any](items []T, pool func(T) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, item := range items {
		p := pool(item)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
