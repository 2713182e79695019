package model

// Pool is the immutable description of a pool written next to its ledger records.
type Pool struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	Fee            uint32 `json:"fee"`
	TickSpacing    int32  `json:"tick_spacing"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}
