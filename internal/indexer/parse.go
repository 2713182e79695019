package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"liquidityLedger/internal/dex"
)

// ParseAddresses returns the pool addresses in first-seen order. Blank entries are skipped
// and repeats that differ only in checksum case collapse into one.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	seen := make(map[common.Address]struct{}, len(inputs))
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid pool address: %s", input)
		}
		addr := common.HexToAddress(input)
		if addr == (common.Address{}) {
			return nil, fmt.Errorf("zero pool address")
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// ParseTopic0 accepts 32 byte hashes or pool event names such as "Swap" and returns the
// distinct topics in first-seen order.
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	seen := make(map[common.Hash]struct{}, len(inputs))
	topics := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		topic, err := parseTopic(input)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics, nil
}

func parseTopic(input string) (common.Hash, error) {
	if !strings.HasPrefix(input, "0x") && !strings.HasPrefix(input, "0X") {
		poolABI, err := dex.V3PoolABI()
		if err != nil {
			return common.Hash{}, err
		}
		for _, name := range dex.PoolEvents {
			if strings.EqualFold(name, input) {
				return poolABI.Events[name].ID, nil
			}
		}
		return common.Hash{}, fmt.Errorf("unknown pool event: %s", input)
	}
	data, err := hexutil.Decode(input)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid topic0: %s", input)
	}
	if len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("topic0 %s: want %d bytes, got %d", input, common.HashLength, len(data))
	}
	return common.BytesToHash(data), nil
}
