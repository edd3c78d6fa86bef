package depth

import (
	"math"

	"depthscope/internal/model"
)

const (
	defaultV2Levels = 50
	defaultV2MaxPct = 50.0

	// power-law exponent for the level schedule, denser near the current price
	v2ScheduleExponent = 1.5
)

// ConstantProductParams drives the reserve-based depth build. Reserves are
// raw on-chain integers converted to float64.
type ConstantProductParams struct {
	Reserve0      float64
	Reserve1      float64
	BaseIsToken0  bool
	BaseDecimals  uint8
	QuoteDecimals uint8
	BasePriceUSD  float64
	Levels        int
	MaxPct        float64
}

// BuildConstantProduct synthesizes depth levels from the x*y=k invariant.
// Each level re-solves the reserves at a shifted price; the reserve deltas
// are the amounts tradable to reach that price. Levels per side follow a
// power-law percentage schedule so spacing grows with distance from the
// current price.
func BuildConstantProduct(p ConstantProductParams) (bids, asks []model.DepthLevel) {
	if p.Reserve0 <= 0 || p.Reserve1 <= 0 ||
		p.BasePriceUSD <= 0 || math.IsNaN(p.BasePriceUSD) || math.IsInf(p.BasePriceUSD, 0) {
		return nil, nil
	}

	levels := p.Levels
	if levels <= 0 {
		levels = defaultV2Levels
	}
	maxPct := p.MaxPct
	if maxPct <= 0 {
		maxPct = defaultV2MaxPct
	}

	k := p.Reserve0 * p.Reserve1
	poolPrice := p.Reserve1 / p.Reserve0

	for i := 1; i <= levels; i++ {
		pct := maxPct * math.Pow(float64(i)/float64(levels), v2ScheduleExponent)

		if level, ok := p.levelAt(k, poolPrice, 1+pct/100); ok {
			asks = append(asks, level)
		}
		if pct < 100 {
			if level, ok := p.levelAt(k, poolPrice, 1-pct/100); ok {
				bids = append(bids, level)
			}
		}
	}

	// asks were generated in ascending price order, bids in descending
	return bids, asks
}

// levelAt solves the pool at a base price scaled by factor and emits the
// reserve deltas as one level.
func (p ConstantProductParams) levelAt(k, poolPrice, factor float64) (model.DepthLevel, bool) {
	// poolPrice is token1 per token0. Scaling the base USD price by factor
	// scales poolPrice by factor when the base is token0, by 1/factor when
	// the base is token1.
	newPool := poolPrice * factor
	if !p.BaseIsToken0 {
		newPool = poolPrice / factor
	}
	if newPool <= 0 || math.IsNaN(newPool) || math.IsInf(newPool, 0) {
		return model.DepthLevel{}, false
	}

	newR0 := math.Sqrt(k / newPool)
	newR1 := math.Sqrt(k * newPool)
	delta0 := math.Abs(newR0 - p.Reserve0)
	delta1 := math.Abs(newR1 - p.Reserve1)
	if delta0 <= 0 || delta1 <= 0 ||
		math.IsNaN(delta0) || math.IsInf(delta0, 0) ||
		math.IsNaN(delta1) || math.IsInf(delta1, 0) {
		return model.DepthLevel{}, false
	}

	baseRaw, quoteRaw := delta0, delta1
	if !p.BaseIsToken0 {
		baseRaw, quoteRaw = delta1, delta0
	}
	base := baseRaw / math.Pow(10, float64(p.BaseDecimals))
	quote := quoteRaw / math.Pow(10, float64(p.QuoteDecimals))

	price := p.BasePriceUSD * factor
	usd := base * price
	if math.IsNaN(usd) || math.IsInf(usd, 0) || usd > usdCeiling {
		return model.DepthLevel{}, false
	}

	return model.DepthLevel{
		Price:        price,
		BaseAmount:   base,
		QuoteAmount:  quote,
		LiquidityUSD: usd,
	}, true
}
