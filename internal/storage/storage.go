package storage

import (
	"context"

	"liquidityLedger/internal/model"
)

// Storage is a sink for raw log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// SnapshotSink receives the ledger's pool, tick and position records after a replay.
type SnapshotSink interface {
	PutPoolStates(ctx context.Context, pools []model.PoolStateRecord) error
	PutTicks(ctx context.Context, ticks []model.TickRecord) error
	PutPositions(ctx context.Context, positions []model.PositionRecord) error
}

// SnapshotStore persists the resumable replay snapshot.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (model.LedgerSnapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap model.LedgerSnapshot) error
}

// WriteSnapshot sends every record in snap to sink.
func WriteSnapshot(ctx context.Context, sink SnapshotSink, snap model.LedgerSnapshot) error {
	pools := make([]model.PoolStateRecord, 0, len(snap.Pools))
	var ticks []model.TickRecord
	var positions []model.PositionRecord
	for _, p := range snap.Pools {
		pools = append(pools, p.Pool)
		ticks = append(ticks, p.Ticks...)
		positions = append(positions, p.Positions...)
	}
	if err := sink.PutPoolStates(ctx, pools); err != nil {
		return err
	}
	if err := sink.PutTicks(ctx, ticks); err != nil {
		return err
	}
	return sink.PutPositions(ctx, positions)
}
