package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityLedger/internal/config"
	"liquidityLedger/internal/model"
	"liquidityLedger/internal/replay"
	"liquidityLedger/internal/scenario"
	"liquidityLedger/internal/storage"
	"liquidityLedger/internal/storage/sqlite"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}

	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := storage.OpenJSONL(cfg.Out, false)
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("scenario", cfg.Scenario),
		zap.String("name", sc.Name),
		zap.Int("steps", len(sc.Steps)),
		zap.String("out", cfg.Out),
	)

	p, runErr := scenario.NewRunner(logger).Run(ctx, sc, out)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}

	if cfg.SQLitePath == "" {
		return nil
	}
	db, err := sqlite.Open(cfg.SQLitePath, sc.Name)
	if err != nil {
		return err
	}
	defer db.Close()

	addr := common.Address{}
	if common.IsHexAddress(sc.Pool) {
		addr = common.HexToAddress(sc.Pool)
	}
	meta := model.Pool{Address: addr.Hex(), Fee: sc.Fee, TickSpacing: sc.TickSpacing}
	snap := model.LedgerSnapshot{
		Pools:   []model.PoolSnapshot{replay.PoolRecords(meta, p.Snapshot(), 0)},
		SavedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := storage.WriteSnapshot(ctx, db, snap); err != nil {
		return fmt.Errorf("write sqlite: %w", err)
	}
	logger.Info("final pool written", zap.String("sqlite", cfg.SQLitePath))
	return nil
}
