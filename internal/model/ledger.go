package model

// Cursor orders events by block then log index.
type Cursor struct {
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint64 `json:"log_index"`
}

// After reports whether c comes strictly after other.
func (c Cursor) After(other Cursor) bool {
	if c.BlockNumber != other.BlockNumber {
		return c.BlockNumber > other.BlockNumber
	}
	return c.LogIndex > other.LogIndex
}

// PoolStateRecord is the pool-wide part of a ledger snapshot. Big values are decimal strings.
type PoolStateRecord struct {
	ChainID              uint64 `json:"chain_id"`
	Address              string `json:"address"`
	Token0               string `json:"token0"`
	Token1               string `json:"token1"`
	Fee                  uint32 `json:"fee"`
	TickSpacing          int32  `json:"tick_spacing"`
	Initialized          bool   `json:"initialized"`
	SqrtPriceX96         string `json:"sqrt_price_x96"`
	Tick                 int32  `json:"tick"`
	Liquidity            string `json:"liquidity"`
	FeeGrowthGlobal0X128 string `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 string `json:"fee_growth_global1_x128"`
	BlockNumber          uint64 `json:"block_number"`
}

// TickRecord is one initialized tick. LiquidityNet carries its sign.
type TickRecord struct {
	Pool                  string `json:"pool"`
	Tick                  int32  `json:"tick"`
	LiquidityGross        string `json:"liquidity_gross"`
	LiquidityNet          string `json:"liquidity_net"`
	FeeGrowthOutside0X128 string `json:"fee_growth_outside0_x128"`
	FeeGrowthOutside1X128 string `json:"fee_growth_outside1_x128"`
	BlockNumber           uint64 `json:"block_number"`
}

// PositionRecord is one position, keyed the way the pool contract keys it.
type PositionRecord struct {
	Pool                     string `json:"pool"`
	Key                      string `json:"key"`
	Owner                    string `json:"owner"`
	TickLower                int32  `json:"tick_lower"`
	TickUpper                int32  `json:"tick_upper"`
	Liquidity                string `json:"liquidity"`
	FeeGrowthInside0LastX128 string `json:"fee_growth_inside0_last_x128"`
	FeeGrowthInside1LastX128 string `json:"fee_growth_inside1_last_x128"`
	TokensOwed0              string `json:"tokens_owed0"`
	TokensOwed1              string `json:"tokens_owed1"`
	BlockNumber              uint64 `json:"block_number"`
}

// PoolSnapshot is everything needed to rebuild one pool.
type PoolSnapshot struct {
	Pool      PoolStateRecord  `json:"pool"`
	Ticks     []TickRecord     `json:"ticks"`
	Positions []PositionRecord `json:"positions"`
}

// LedgerSnapshot is a resumable replay checkpoint.
type LedgerSnapshot struct {
	Cursor  Cursor         `json:"cursor"`
	Pools   []PoolSnapshot `json:"pools"`
	SavedAt string         `json:"saved_at"`
}
