package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"liquidityLedger/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map adds topic0 aliases for forks that rename pool events.
	Topic0Map map[string]string
}

// V3PoolDecoder decodes concentrated-liquidity pool events.
type V3PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

type positionTopics struct {
	Owner     common.Address
	TickLower *big.Int
	TickUpper *big.Int
}

// NewV3PoolDecoder builds a decoder for every event in PoolEvents.
func NewV3PoolDecoder(cfg DecoderConfig) (*V3PoolDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(PoolEvents)+len(cfg.Topic0Map))
	for _, name := range PoolEvents {
		topicToName[strings.ToLower(poolABI.Events[name].ID.Hex())] = name
	}
	for topic0, name := range cfg.Topic0Map {
		normalized := normalizeEventName(name)
		if normalized == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", name)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = normalized
	}

	return &V3PoolDecoder{poolABI: poolABI, topicToName: topicToName}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *V3PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent carrying the pool's metadata.
func (d *V3PoolDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}

	var (
		decoded interface{}
		err     error
	)
	switch name {
	case model.EventInitialize:
		decoded, err = d.decodeInitialize(log)
	case model.EventSwap:
		decoded, err = d.decodeSwap(log)
	case model.EventMint:
		decoded, err = d.decodeMint(log)
	case model.EventBurn:
		decoded, err = d.decodeBurn(log)
	case model.EventCollect:
		decoded, err = d.decodeCollect(log)
	default:
		err = fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	meta, err := getPoolMeta(ctx, common.HexToAddress(log.Address), log.BlockNumber)
	if err != nil {
		return nil, err
	}

	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		PoolMeta:    meta,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

func normalizeEventName(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, known := range PoolEvents {
		if strings.EqualFold(trimmed, known) {
			return known
		}
	}
	return ""
}

func getPoolMeta(ctx DecodeContext, pool common.Address, blockNumber uint64) (model.PoolMeta, error) {
	var (
		meta model.PoolMeta
		ok   bool
	)
	if ctx.PoolMetaCache != nil {
		meta, ok = ctx.PoolMetaCache.Get(pool)
	}
	if ok && !ctx.IncludeLiveMeta {
		return meta, nil
	}
	if ctx.Chain == nil {
		return model.PoolMeta{}, fmt.Errorf("no metadata for pool %s and chain client is nil", pool.Hex())
	}

	callCtx := ctx.Context
	if callCtx == nil {
		callCtx = context.Background()
	}

	if !ok {
		var err error
		meta, err = FetchPoolMeta(callCtx, ctx.Chain, pool)
		if err != nil {
			return model.PoolMeta{}, fmt.Errorf("pool %s metadata: %w", pool.Hex(), err)
		}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(pool, meta)
		}
	}

	if ctx.IncludeLiveMeta {
		if live, err := FetchPoolOptionalMeta(callCtx, ctx.Chain, pool, blockNumber, ctx.Logger); err == nil {
			meta.Liquidity = live.Liquidity
			meta.Slot0 = live.Slot0
		}
	}
	return meta, nil
}

func (d *V3PoolDecoder) decodeInitialize(log model.LogRecord) (model.InitializeEventData, error) {
	event := d.poolABI.Events[model.EventInitialize]
	if _, err := parseIndexedTopics(event, log.Topics); err != nil {
		return model.InitializeEventData{}, err
	}
	_, ints, err := unpackInts(event, log.Data, 0, 2)
	if err != nil {
		return model.InitializeEventData{}, err
	}
	tick, err := int24FromBig(ints[1])
	if err != nil {
		return model.InitializeEventData{}, err
	}
	return model.InitializeEventData{SqrtPriceX96: ints[0].String(), Tick: tick}, nil
}

func (d *V3PoolDecoder) decodeSwap(log model.LogRecord) (model.SwapEventData, error) {
	event := d.poolABI.Events[model.EventSwap]
	var indexed struct {
		Sender    common.Address
		Recipient common.Address
	}
	if err := parseTopicsInto(event, log.Topics, &indexed); err != nil {
		return model.SwapEventData{}, err
	}
	_, ints, err := unpackInts(event, log.Data, 0, 5)
	if err != nil {
		return model.SwapEventData{}, err
	}
	tick, err := int24FromBig(ints[4])
	if err != nil {
		return model.SwapEventData{}, err
	}
	return model.SwapEventData{
		Sender:       indexed.Sender.Hex(),
		Recipient:    indexed.Recipient.Hex(),
		Amount0:      ints[0].String(),
		Amount1:      ints[1].String(),
		SqrtPriceX96: ints[2].String(),
		Liquidity:    ints[3].String(),
		Tick:         tick,
	}, nil
}

func (d *V3PoolDecoder) decodeMint(log model.LogRecord) (model.MintEventData, error) {
	event := d.poolABI.Events[model.EventMint]
	var indexed positionTopics
	if err := parseTopicsInto(event, log.Topics, &indexed); err != nil {
		return model.MintEventData{}, err
	}
	lower, upper, err := indexed.ticks()
	if err != nil {
		return model.MintEventData{}, err
	}
	// sender is the only non-integer data field and comes first
	values, ints, err := unpackInts(event, log.Data, 1, 4)
	if err != nil {
		return model.MintEventData{}, err
	}
	sender, err := asAddress(values[0])
	if err != nil {
		return model.MintEventData{}, err
	}
	return model.MintEventData{
		Sender:    sender.Hex(),
		Owner:     indexed.Owner.Hex(),
		TickLower: lower,
		TickUpper: upper,
		Amount:    ints[1].String(),
		Amount0:   ints[2].String(),
		Amount1:   ints[3].String(),
	}, nil
}

func (d *V3PoolDecoder) decodeBurn(log model.LogRecord) (model.BurnEventData, error) {
	event := d.poolABI.Events[model.EventBurn]
	var indexed positionTopics
	if err := parseTopicsInto(event, log.Topics, &indexed); err != nil {
		return model.BurnEventData{}, err
	}
	lower, upper, err := indexed.ticks()
	if err != nil {
		return model.BurnEventData{}, err
	}
	_, ints, err := unpackInts(event, log.Data, 0, 3)
	if err != nil {
		return model.BurnEventData{}, err
	}
	return model.BurnEventData{
		Owner:     indexed.Owner.Hex(),
		TickLower: lower,
		TickUpper: upper,
		Amount:    ints[0].String(),
		Amount0:   ints[1].String(),
		Amount1:   ints[2].String(),
	}, nil
}

func (d *V3PoolDecoder) decodeCollect(log model.LogRecord) (model.CollectEventData, error) {
	event := d.poolABI.Events[model.EventCollect]
	var indexed positionTopics
	if err := parseTopicsInto(event, log.Topics, &indexed); err != nil {
		return model.CollectEventData{}, err
	}
	lower, upper, err := indexed.ticks()
	if err != nil {
		return model.CollectEventData{}, err
	}
	values, ints, err := unpackInts(event, log.Data, 1, 3)
	if err != nil {
		return model.CollectEventData{}, err
	}
	recipient, err := asAddress(values[0])
	if err != nil {
		return model.CollectEventData{}, err
	}
	return model.CollectEventData{
		Owner:     indexed.Owner.Hex(),
		Recipient: recipient.Hex(),
		TickLower: lower,
		TickUpper: upper,
		Amount0:   ints[1].String(),
		Amount1:   ints[2].String(),
	}, nil
}

func (t positionTopics) ticks() (int32, int32, error) {
	if t.TickLower == nil || t.TickUpper == nil {
		return 0, 0, fmt.Errorf("missing tick topics")
	}
	lower, err := int24FromBig(t.TickLower)
	if err != nil {
		return 0, 0, fmt.Errorf("tick lower: %w", err)
	}
	upper, err := int24FromBig(t.TickUpper)
	if err != nil {
		return 0, 0, fmt.Errorf("tick upper: %w", err)
	}
	return lower, upper, nil
}

func parseTopicsInto(event abi.Event, topics []string, out interface{}) error {
	hashes, err := parseIndexedTopics(event, topics)
	if err != nil {
		return err
	}
	if err := abi.ParseTopics(out, indexedArguments(event.Inputs), hashes); err != nil {
		return fmt.Errorf("parse topics: %w", err)
	}
	return nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	out := make([]common.Hash, 0, indexedCount)
	for _, topic := range topics[1:] {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

// unpackInts unpacks want non-indexed values and converts those from index from onward to
// big integers. Entries before from are left nil.
func unpackInts(event abi.Event, dataHex string, from, want int) ([]interface{}, []*big.Int, error) {
	values, err := unpackNonIndexed(event, dataHex)
	if err != nil {
		return nil, nil, err
	}
	if len(values) != want {
		return nil, nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}
	out := make([]*big.Int, want)
	for i := from; i < want; i++ {
		if out[i], err = asBigInt(values[i]); err != nil {
			return nil, nil, fmt.Errorf("%s field %d: %w", event.Name, i, err)
		}
	}
	return values, out, nil
}
