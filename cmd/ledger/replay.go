package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityLedger/internal/config"
	"liquidityLedger/internal/replay"
	"liquidityLedger/internal/storage"
	"liquidityLedger/internal/storage/postgres"
	"liquidityLedger/internal/storage/sqlite"
)

type namedSink struct {
	name string
	sink storage.SnapshotSink
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks []namedSink
	var snapshots storage.SnapshotStore

	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN, cfg.SnapshotName)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, namedSink{name: "postgres", sink: pg})
		snapshots = pg
	}
	if cfg.SQLitePath != "" {
		db, err := sqlite.Open(cfg.SQLitePath, cfg.SnapshotName)
		if err != nil {
			return err
		}
		defer db.Close()
		sinks = append(sinks, namedSink{name: "sqlite", sink: db})
		if snapshots == nil {
			snapshots = db
		}
	}
	if cfg.OutDir != "" {
		sinks = append(sinks, namedSink{name: "jsonl", sink: storage.NewJsonlSnapshotSink(cfg.OutDir)})
	}
	if snapshots == nil {
		snapshots = &storage.FileSnapshotStore{Path: cfg.SnapshotFile}
	}

	replayer := replay.New(replay.Config{Strict: cfg.Strict}, logger)

	snap, ok, err := snapshots.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if ok {
		if err := replayer.Restore(snap); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		logger.Info("resuming from snapshot",
			zap.Uint64("block_number", snap.Cursor.BlockNumber),
			zap.Uint64("log_index", snap.Cursor.LogIndex),
			zap.Int("pools", len(snap.Pools)),
			zap.String("saved_at", snap.SavedAt),
		)
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("out_dir", cfg.OutDir),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("sqlite", cfg.SQLitePath),
		zap.Bool("strict", cfg.Strict),
	)

	// a failed run leaves no consistent state to persist
	if _, err := replayer.Run(ctx, inputFile); err != nil {
		return err
	}

	result := replayer.Snapshot()
	for _, s := range sinks {
		if err := storage.WriteSnapshot(ctx, s.sink, result); err != nil {
			return fmt.Errorf("write %s: %w", s.name, err)
		}
		logger.Info("ledger written", zap.String("sink", s.name), zap.Int("pools", len(result.Pools)))
	}
	if err := snapshots.SaveSnapshot(ctx, result); err != nil {
		return err
	}

	logger.Info("snapshot saved",
		zap.Uint64("block_number", result.Cursor.BlockNumber),
		zap.Uint64("log_index", result.Cursor.LogIndex),
	)
	return nil
}
