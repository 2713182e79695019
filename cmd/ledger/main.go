package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ledger",
		Short:        "Concentrated liquidity pool ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch raw pool logs over RPC",
		RunE:  runFetch,
	}

	fetchCmd.Flags().String("rpc", "", "RPC URL")
	fetchCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	fetchCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	fetchCmd.Flags().StringSlice("address", nil, "pool addresses (comma-separated)")
	fetchCmd.Flags().StringSlice("topic0", nil, "topic0 filter (comma-separated), defaults to the pool event set")
	fetchCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	fetchCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	fetchCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	fetchCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	fetchCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	fetchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	fetchCmd.Flags().Duration("retry-max-backoff", 30*time.Second, "upper bound on the retry backoff")
	fetchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(fetchCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed pool events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "RPC URL for pool metadata")
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().Bool("include-live-meta", false, "include slot0/liquidity at the log's block (requires archive RPC)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay typed events into pool ledgers",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "./data/typed_events.jsonl", "input typed events JSONL")
	replayCmd.Flags().String("out-dir", "./data/ledger", "directory for pool, tick and position JSONL (empty disables)")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	replayCmd.Flags().String("sqlite", "", "SQLite database path")
	replayCmd.Flags().String("snapshot-file", "./data/ledger_snapshot.json", "snapshot file used when no database is set")
	replayCmd.Flags().String("snapshot-name", "default", "snapshot name in Postgres or SQLite")
	replayCmd.Flags().Bool("strict", false, "stop at the first failed event or mismatch")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted scenario against a fresh pool",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("scenario", "", "scenario file (YAML, JSON or TOML)")
	simulateCmd.Flags().String("out", "./data/simulation.jsonl", "per-step results JSONL")
	simulateCmd.Flags().String("sqlite", "", "SQLite database path for the final pool state")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
