package dex

import (
	"context"

	"go.uber.org/zap"

	"liquidityLedger/internal/chain"
	"liquidityLedger/internal/model"
)

// Decoder turns raw logs into typed pool events.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext carries what a decoder needs beyond the log itself. Chain may be nil when
// every pool's metadata is already in PoolMetaCache.
type DecodeContext struct {
	Context         context.Context
	Chain           *chain.Client
	PoolMetaCache   *PoolMetaCache
	Logger          *zap.Logger
	IncludeLiveMeta bool
}
