package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityLedger/internal/chain"
	"liquidityLedger/internal/model"
)

// PoolMetaCache caches pool metadata by address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// FetchPoolMeta reads the pool's immutables: tokens, fee tier and tick spacing.
func FetchPoolMeta(ctx context.Context, chainClient *chain.Client, pool common.Address) (model.PoolMeta, error) {
	if chainClient == nil {
		return model.PoolMeta{}, fmt.Errorf("chain client is nil")
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	first := func(method string) (interface{}, error) {
		values, err := callPoolMethod(ctx, chainClient, pool, poolABI, method, nil)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%s: empty result", method)
		}
		return values[0], nil
	}

	var meta model.PoolMeta
	for _, method := range []string{"token0", "token1"} {
		value, err := first(method)
		if err != nil {
			return model.PoolMeta{}, err
		}
		addr, err := asAddress(value)
		if err != nil {
			return model.PoolMeta{}, fmt.Errorf("%s: %w", method, err)
		}
		if method == "token0" {
			meta.Token0 = addr.Hex()
		} else {
			meta.Token1 = addr.Hex()
		}
	}

	value, err := first("fee")
	if err != nil {
		return model.PoolMeta{}, err
	}
	fee, err := asBigInt(value)
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("fee: %w", err)
	}
	if !fee.IsUint64() || fee.Uint64() >= 1<<24 {
		return model.PoolMeta{}, fmt.Errorf("fee out of range: %s", fee)
	}
	meta.Fee = uint32(fee.Uint64())

	value, err = first("tickSpacing")
	if err != nil {
		return model.PoolMeta{}, err
	}
	spacing, err := asBigInt(value)
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("tick spacing: %w", err)
	}
	if meta.TickSpacing, err = int24FromBig(spacing); err != nil {
		return model.PoolMeta{}, fmt.Errorf("tick spacing: %w", err)
	}

	return meta, nil
}

// FetchPoolOptionalMeta reads slot0 and liquidity at a block height. Failures are logged
// and leave the field empty; historical heights need an archive node.
func FetchPoolOptionalMeta(ctx context.Context, chainClient *chain.Client, pool common.Address, blockNumber uint64, logger *zap.Logger) (model.PoolMeta, error) {
	if chainClient == nil {
		return model.PoolMeta{}, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}

	var meta model.PoolMeta
	if values, err := callPoolMethod(ctx, chainClient, pool, poolABI, "liquidity", block); err != nil {
		logger.Debug("liquidity call failed", zap.String("pool", pool.Hex()), zap.Error(err))
	} else if liq, err := asBigInt(values[0]); err == nil {
		meta.Liquidity = liq.String()
	}

	values, err := callPoolMethod(ctx, chainClient, pool, poolABI, "slot0", block)
	if err != nil || len(values) < 2 {
		logger.Debug("slot0 call failed", zap.String("pool", pool.Hex()), zap.Error(err))
		return meta, nil
	}
	sqrtPrice, errPrice := asBigInt(values[0])
	tickValue, errTick := asBigInt(values[1])
	if errPrice != nil || errTick != nil {
		return meta, nil
	}
	if tick, err := int24FromBig(tickValue); err == nil {
		meta.Slot0 = &model.PoolSlot0{SqrtPriceX96: sqrtPrice.String(), Tick: tick}
	}
	return meta, nil
}

func callPoolMethod(ctx context.Context, chainClient *chain.Client, pool common.Address, poolABI abi.ABI, method string, block *big.Int) ([]interface{}, error) {
	data, err := poolABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := chainClient.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := poolABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

// asBigInt accepts the Go types go-ethereum unpacks integer ABI values into.
func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

var (
	minInt24 = big.NewInt(-1 << 23)
	maxInt24 = big.NewInt(1<<23 - 1)
)

func int24FromBig(value *big.Int) (int32, error) {
	if value.Cmp(minInt24) < 0 || value.Cmp(maxInt24) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value)
	}
	return int32(value.Int64()), nil
}
