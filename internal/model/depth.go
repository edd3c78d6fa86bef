package model

// PoolType identifies the liquidity model backing a pool.
type PoolType string

const (
	PoolTypeV2 PoolType = "v2"
	PoolTypeV3 PoolType = "v3"
	PoolTypeV4 PoolType = "v4"
)

// Source tags where a DepthResult came from.
type Source string

const (
	SourceCache      Source = "cache"
	SourceRPC        Source = "rpc"
	SourceStaleCache Source = "stale-cache"
)

// DepthLevel is one discretized bid or ask entry. Prices are USD per base
// token; amounts are human-readable token quantities.
type DepthLevel struct {
	Price        float64 `json:"price"`
	PriceLower   float64 `json:"price_lower,omitempty"`
	PriceUpper   float64 `json:"price_upper,omitempty"`
	TickLower    int     `json:"tick_lower,omitempty"`
	TickUpper    int     `json:"tick_upper,omitempty"`
	BaseAmount   float64 `json:"base_amount"`
	QuoteAmount  float64 `json:"quote_amount"`
	LiquidityUSD float64 `json:"liquidity_usd"`
}

// DepthResult is the externally visible depth ladder for one pool.
// Bids are ordered descending by price, asks ascending.
type DepthResult struct {
	Bids          []DepthLevel `json:"bids"`
	Asks          []DepthLevel `json:"asks"`
	CurrentPrice  float64      `json:"current_price"`
	BaseSymbol    string       `json:"base_symbol"`
	QuoteSymbol   string       `json:"quote_symbol"`
	BaseDecimals  uint8        `json:"base_decimals"`
	QuoteDecimals uint8        `json:"quote_decimals"`
	PoolType      PoolType     `json:"pool_type"`
}
