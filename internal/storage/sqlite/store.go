package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"liquidityLedger/internal/model"
)

// Big integers are TEXT: SQLite integers stop at 64 bits.
const schema = `
CREATE TABLE IF NOT EXISTS pool_states (
	chain_id INTEGER NOT NULL,
	pool_address TEXT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	fee INTEGER NOT NULL,
	tick_spacing INTEGER NOT NULL,
	initialized INTEGER NOT NULL,
	sqrt_price_x96 TEXT NOT NULL,
	tick INTEGER NOT NULL,
	liquidity TEXT NOT NULL,
	fee_growth_global0_x128 TEXT NOT NULL,
	fee_growth_global1_x128 TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);
CREATE TABLE IF NOT EXISTS pool_ticks (
	pool_address TEXT NOT NULL,
	tick INTEGER NOT NULL,
	liquidity_gross TEXT NOT NULL,
	liquidity_net TEXT NOT NULL,
	fee_growth_outside0_x128 TEXT NOT NULL,
	fee_growth_outside1_x128 TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	PRIMARY KEY (pool_address, tick)
);
CREATE TABLE IF NOT EXISTS pool_positions (
	pool_address TEXT NOT NULL,
	position_key TEXT NOT NULL,
	owner TEXT NOT NULL,
	tick_lower INTEGER NOT NULL,
	tick_upper INTEGER NOT NULL,
	liquidity TEXT NOT NULL,
	fee_growth_inside0_last_x128 TEXT NOT NULL,
	fee_growth_inside1_last_x128 TEXT NOT NULL,
	tokens_owed0 TEXT NOT NULL,
	tokens_owed1 TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	PRIMARY KEY (pool_address, position_key)
);
CREATE TABLE IF NOT EXISTS ledger_snapshots (
	name TEXT PRIMARY KEY,
	block_number INTEGER NOT NULL,
	log_index INTEGER NOT NULL,
	snapshot TEXT NOT NULL
);
`

// Store is a single-file ledger sink.
type Store struct {
	db   *sql.DB
	name string
}

// Open opens or creates the database at path and its tables. name keys the replay snapshot.
func Open(path, name string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if name == "" {
		name = "default"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps "database is locked" out of the batch transactions
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, name: name}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutPoolStates(ctx context.Context, pools []model.PoolStateRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO pool_states (
				chain_id, pool_address, token0, token1, fee, tick_spacing, initialized,
				sqrt_price_x96, tick, liquidity, fee_growth_global0_x128, fee_growth_global1_x128, block_number
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range pools {
			if _, err := stmt.ExecContext(ctx, int64(p.ChainID), p.Address, p.Token0, p.Token1, p.Fee, p.TickSpacing,
				p.Initialized, p.SqrtPriceX96, p.Tick, p.Liquidity, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128,
				int64(p.BlockNumber)); err != nil {
				return fmt.Errorf("insert pool %s: %w", p.Address, err)
			}
		}
		return nil
	})
}

// PutTicks replaces the stored ticks of every pool present in ticks.
func (s *Store) PutTicks(ctx context.Context, ticks []model.TickRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		cleared := make(map[string]struct{})
		for _, t := range ticks {
			if _, ok := cleared[t.Pool]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM pool_ticks WHERE pool_address = ?`, t.Pool); err != nil {
				return fmt.Errorf("clear ticks %s: %w", t.Pool, err)
			}
			cleared[t.Pool] = struct{}{}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pool_ticks (
				pool_address, tick, liquidity_gross, liquidity_net,
				fee_growth_outside0_x128, fee_growth_outside1_x128, block_number
			) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range ticks {
			if _, err := stmt.ExecContext(ctx, t.Pool, t.Tick, t.LiquidityGross, t.LiquidityNet,
				t.FeeGrowthOutside0X128, t.FeeGrowthOutside1X128, int64(t.BlockNumber)); err != nil {
				return fmt.Errorf("insert tick %d: %w", t.Tick, err)
			}
		}
		return nil
	})
}

func (s *Store) PutPositions(ctx context.Context, positions []model.PositionRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO pool_positions (
				pool_address, position_key, owner, tick_lower, tick_upper, liquidity,
				fee_growth_inside0_last_x128, fee_growth_inside1_last_x128, tokens_owed0, tokens_owed1, block_number
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range positions {
			if _, err := stmt.ExecContext(ctx, p.Pool, p.Key, p.Owner, p.TickLower, p.TickUpper, p.Liquidity,
				p.FeeGrowthInside0LastX128, p.FeeGrowthInside1LastX128, p.TokensOwed0, p.TokensOwed1,
				int64(p.BlockNumber)); err != nil {
				return fmt.Errorf("insert position %s: %w", p.Key, err)
			}
		}
		return nil
	})
}

func (s *Store) LoadSnapshot(ctx context.Context) (model.LedgerSnapshot, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM ledger_snapshots WHERE name = ?`, s.name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LedgerSnapshot{}, false, nil
	}
	if err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	var snap model.LedgerSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snap model.LedgerSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO ledger_snapshots (name, block_number, log_index, snapshot)
		VALUES (?, ?, ?, ?)`,
		s.name, int64(snap.Cursor.BlockNumber), int64(snap.Cursor.LogIndex), string(raw))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
