package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"liquidityLedger/internal/dex"
	"liquidityLedger/internal/model"
	"liquidityLedger/internal/storage"
)

// LogSource is the part of chain.Client the fetcher uses.
type LogSource interface {
	ChainID(ctx context.Context) (uint64, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for a fetch.
type RunConfig struct {
	FromBlock uint64
	// ToBlock of zero means the chain head at start.
	ToBlock           uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	RetryMaxBackoff   time.Duration
}

// Runner pulls pool logs in block batches and appends them to storage.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

func NewRunner(cfg RunConfig, source LogSource, sink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		storage:    sink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run fetches every batch from the checkpoint (or FromBlock) to ToBlock. The checkpoint
// advances only after a batch is stored.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("log source is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}
	if len(r.cfg.Topic0) == 0 {
		topics, err := dex.PoolEventTopics()
		if err != nil {
			return fmt.Errorf("pool event topics: %w", err)
		}
		r.cfg.Topic0 = topics
	}

	chainID, err := r.source.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	from, to := r.cfg.FromBlock, r.cfg.ToBlock
	if to == 0 {
		latest, err := r.source.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}
	if from > to {
		r.logger.Info("nothing to fetch", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, br := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.fetchRange(ctx, chainID, br); err != nil {
			return err
		}
		if err := r.checkpoint.Save(br.To); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) fetchRange(ctx context.Context, chainID uint64, br BlockRange) error {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, r.cfg.RetryMaxBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.source.FilterLogs(ctx, br.From, br.To, r.cfg.Addresses, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", br.From), zap.Uint64("to", br.To))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("filter logs %d-%d: %w", br.From, br.To, err)
	}

	ingestedAt := time.Now().UTC().Format(time.RFC3339Nano)
	records := make([]model.LogRecord, 0, len(logs))
	var removed int
	for _, log := range logs {
		if log.Removed {
			removed++
			continue
		}
		record := toLogRecord(chainID, log, ingestedAt)
		if _, dup := r.seen[record.ID()]; dup {
			continue
		}
		r.seen[record.ID()] = struct{}{}

		var ts uint64
		err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, r.cfg.RetryMaxBackoff, func(ctx context.Context) error {
			var err error
			ts, err = r.source.BlockTimestamp(ctx, log.BlockNumber)
			return err
		})
		if err != nil {
			return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		record.Timestamp = ts
		records = append(records, record)
	}

	if err := r.storage.PutLogBatch(records); err != nil {
		return fmt.Errorf("store logs: %w", err)
	}
	r.logger.Info("batch complete",
		zap.Uint64("from", br.From),
		zap.Uint64("to", br.To),
		zap.Int("logs", len(records)),
		zap.Int("removed", removed),
	)
	return nil
}

func toLogRecord(chainID uint64, log types.Log, ingestedAt string) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}
	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		IngestedAt:  ingestedAt,
	}
}
