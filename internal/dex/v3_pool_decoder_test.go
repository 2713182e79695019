package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"liquidityLedger/internal/model"
)

func TestV3PoolDecoderSwap(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	poolMetaCache := NewPoolMetaCache()
	poolMetaCache.Set(pool, model.PoolMeta{
		Token0:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Token1:      "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Fee:         2500,
		TickSpacing: 60,
	})

	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	ctx := DecodeContext{
		PoolMetaCache: poolMetaCache,
		Logger:        zap.NewNop(),
	}

	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	logRecord := buildLogRecord(pool, poolABI.Events["Swap"].ID, data, []common.Hash{
		topicFromAddress(sender),
		topicFromAddress(recipient),
	})

	event, err := decoder.Decode(logRecord, ctx)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	swap, ok := event.Decoded.(model.SwapEventData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}

	if swap.Amount0 != "-1000" || swap.Amount1 != "2000" {
		t.Fatalf("amounts mismatch: %+v", swap)
	}
	if swap.Tick != -15 {
		t.Fatalf("tick mismatch: %d", swap.Tick)
	}
	if swap.Sender != sender.Hex() || swap.Recipient != recipient.Hex() {
		t.Fatalf("address mismatch")
	}
	if event.PoolMeta.Fee != 2500 || event.PoolMeta.TickSpacing != 60 {
		t.Fatalf("pool meta mismatch")
	}
}

func TestV3PoolDecoderMintBurnCollect(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	pool := common.HexToAddress("0x9999999999999999999999999999999999999999")
	poolMetaCache := NewPoolMetaCache()
	poolMetaCache.Set(pool, model.PoolMeta{
		Token0:      "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Token1:      "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Fee:         500,
		TickSpacing: 10,
	})

	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	ctx := DecodeContext{
		PoolMetaCache: poolMetaCache,
		Logger:        zap.NewNop(),
	}

	sender := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	owner := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	recipient := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	mintData, err := poolABI.Events["Mint"].Inputs.NonIndexed().Pack(
		sender,
		big.NewInt(5000),
		big.NewInt(100),
		big.NewInt(200),
	)
	if err != nil {
		t.Fatalf("pack mint: %v", err)
	}

	mintLog := buildLogRecord(pool, poolABI.Events["Mint"].ID, mintData, []common.Hash{
		topicFromAddress(owner),
		topicFromInt24(-120),
		topicFromInt24(120),
	})

	mintEvent, err := decoder.Decode(mintLog, ctx)
	if err != nil {
		t.Fatalf("decode mint: %v", err)
	}

	mint, ok := mintEvent.Decoded.(model.MintEventData)
	if !ok {
		t.Fatalf("mint type mismatch")
	}
	if mint.TickLower != -120 || mint.TickUpper != 120 {
		t.Fatalf("mint tick mismatch: %+v", mint)
	}

	burnData, err := poolABI.Events["Burn"].Inputs.NonIndexed().Pack(
		big.NewInt(7000),
		big.NewInt(300),
		big.NewInt(400),
	)
	if err != nil {
		t.Fatalf("pack burn: %v", err)
	}

	burnLog := buildLogRecord(pool, poolABI.Events["Burn"].ID, burnData, []common.Hash{
		topicFromAddress(owner),
		topicFromInt24(-60),
		topicFromInt24(60),
	})

	burnEvent, err := decoder.Decode(burnLog, ctx)
	if err != nil {
		t.Fatalf("decode burn: %v", err)
	}

	burn, ok := burnEvent.Decoded.(model.BurnEventData)
	if !ok {
		t.Fatalf("burn type mismatch")
	}
	if burn.Amount != "7000" {
		t.Fatalf("burn amount mismatch: %+v", burn)
	}

	collectData, err := poolABI.Events["Collect"].Inputs.NonIndexed().Pack(
		recipient,
		big.NewInt(900),
		big.NewInt(1000),
	)
	if err != nil {
		t.Fatalf("pack collect: %v", err)
	}

	collectLog := buildLogRecord(pool, poolABI.Events["Collect"].ID, collectData, []common.Hash{
		topicFromAddress(owner),
		topicFromInt24(-10),
		topicFromInt24(10),
	})

	collectEvent, err := decoder.Decode(collectLog, ctx)
	if err != nil {
		t.Fatalf("decode collect: %v", err)
	}

	collect, ok := collectEvent.Decoded.(model.CollectEventData)
	if !ok {
		t.Fatalf("collect type mismatch")
	}
	if collect.Amount0 != "900" || collect.Amount1 != "1000" {
		t.Fatalf("collect amount mismatch: %+v", collect)
	}
	if collect.Recipient != recipient.Hex() {
		t.Fatalf("collect recipient mismatch")
	}
}

func TestV3PoolDecoderInitialize(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	pool := common.HexToAddress("0x4444444444444444444444444444444444444444")
	cache := NewPoolMetaCache()
	cache.Set(pool, model.PoolMeta{Fee: 3000, TickSpacing: 60})

	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	sqrtPrice, _ := new(big.Int).SetString("5010828967500958623728276031250", 10)
	data, err := poolABI.Events["Initialize"].Inputs.NonIndexed().Pack(sqrtPrice, big.NewInt(-82944))
	if err != nil {
		t.Fatalf("pack initialize: %v", err)
	}

	record := buildLogRecord(pool, poolABI.Events["Initialize"].ID, data, nil)
	if !decoder.CanDecode(record.Topics[0]) {
		t.Fatalf("initialize topic should be decodable")
	}

	event, err := decoder.Decode(record, DecodeContext{PoolMetaCache: cache, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	initialized, ok := event.Decoded.(model.InitializeEventData)
	if !ok {
		t.Fatalf("initialize type mismatch: %T", event.Decoded)
	}
	if initialized.SqrtPriceX96 != sqrtPrice.String() || initialized.Tick != -82944 {
		t.Fatalf("initialize mismatch: %+v", initialized)
	}
	if event.EventName != model.EventInitialize {
		t.Fatalf("event name mismatch: %s", event.EventName)
	}
}

func TestV3PoolDecoderTopic0Map(t *testing.T) {
	alias := "0x00000000000000000000000000000000000000000000000000000000000000aa"
	decoder, err := NewV3PoolDecoder(DecoderConfig{Topic0Map: map[string]string{alias: " swap "}})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if !decoder.CanDecode(alias) {
		t.Fatalf("alias topic should be decodable")
	}
	if decoder.CanDecode("0xdead") || decoder.CanDecode("") {
		t.Fatalf("unknown topics should not be decodable")
	}

	if _, err := NewV3PoolDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "Flash"}}); err == nil {
		t.Fatalf("expected error for unsupported event name")
	}
}

func TestV3PoolDecoderMissingMetaWithoutChain(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	data, err := poolABI.Events["Initialize"].Inputs.NonIndexed().Pack(big.NewInt(1<<62), big.NewInt(0))
	if err != nil {
		t.Fatalf("pack initialize: %v", err)
	}
	record := buildLogRecord(common.HexToAddress("0x5555555555555555555555555555555555555555"), poolABI.Events["Initialize"].ID, data, nil)

	if _, err := decoder.Decode(record, DecodeContext{PoolMetaCache: NewPoolMetaCache()}); err == nil {
		t.Fatalf("expected error without metadata or chain client")
	}
}

func TestPoolEventTopics(t *testing.T) {
	topics, err := PoolEventTopics()
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if len(topics) != len(PoolEvents) {
		t.Fatalf("topic count mismatch: %d", len(topics))
	}
	// keccak256("Swap(address,address,int256,int256,uint160,uint128,int24)")
	swap := common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67")
	if topics[3] != swap {
		t.Fatalf("swap topic mismatch: %s", topics[3].Hex())
	}
}

func buildLogRecord(pool common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     56,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     pool.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func topicFromInt24(value int32) common.Hash {
	bigVal := big.NewInt(int64(value))
	if value < 0 {
		bigVal = new(big.Int).Add(bigVal, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return common.BigToHash(bigVal)
}
