package pool

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Registry holds independent pools keyed by address.
type Registry struct {
	mu     sync.RWMutex
	pools  map[common.Address]*Pool
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{pools: make(map[common.Address]*Pool), logger: logger}
}

func (r *Registry) Get(addr common.Address) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[addr]
	return p, ok
}

// GetOrCreate returns the pool at addr, creating it from cfg on first use. An existing pool
// with a different fee or spacing is an error.
func (r *Registry) GetOrCreate(addr common.Address, cfg Config) (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[addr]; ok {
		if p.fee != cfg.Fee || p.tickSpacing != cfg.TickSpacing {
			return nil, fmt.Errorf("pool %s: %w", addr.Hex(), ErrConfigMismatch)
		}
		return p, nil
	}
	if cfg.Logger == nil {
		cfg.Logger = r.logger.With(zap.String("pool", addr.Hex()))
	}
	p, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", addr.Hex(), err)
	}
	r.pools[addr] = p
	return p, nil
}

// Addresses returns the registered pool addresses in ascending order.
func (r *Registry) Addresses() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.pools))
	for addr := range r.pools {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
