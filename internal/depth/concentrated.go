package depth

import (
	"math"
	"math/big"
	"sort"

	"depthscope/internal/model"
)

// Crossing sign convention: liquidityNet is the liquidity added when the
// price moves upward through a tick, so an ascending walk adds it and a
// descending walk subtracts it.
const (
	crossUpSign   = 1
	crossDownSign = -1
)

const (
	// Per-level USD plausibility window. Below the floor a level is numeric
	// noise, above the ceiling it is an overflow artifact.
	usdNoiseFloor = 0.01
	usdCeiling    = 1e12

	// Subdivision cap per native segment.
	maxBucketsPerSegment = 1000
)

// ConcentratedParams carries everything a concentrated-liquidity depth build
// needs. Ticks must be ascending and TickLiquidity keyed by the same values.
type ConcentratedParams struct {
	CurrentTick     int
	ActiveLiquidity float64
	Ticks           []int
	TickLiquidity   map[int]model.TickLiquidity
	BaseIsToken0    bool
	BaseDecimals    uint8
	QuoteDecimals   uint8
	BasePriceUSD    float64
	MaxLevels       int
	Precision       float64
}

// BuildConcentrated walks the initialized ticks outward from the current tick
// in both directions and converts each constant-liquidity segment into depth
// levels. Returned bids are descending by price, asks ascending.
func BuildConcentrated(p ConcentratedParams) (bids, asks []model.DepthLevel) {
	if p.BasePriceUSD <= 0 || math.IsNaN(p.BasePriceUSD) || math.IsInf(p.BasePriceUSD, 0) {
		return nil, nil
	}

	w := newPriceSpace(p.BaseIsToken0, p.BasePriceUSD, p.CurrentTick)

	up := p.walk(crossUpSign, w)
	down := p.walk(crossDownSign, w)

	for _, level := range append(up, down...) {
		if level.Price >= p.BasePriceUSD {
			asks = append(asks, level)
		} else {
			bids = append(bids, level)
		}
	}

	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	return dedupeByPrice(bids), dedupeByPrice(asks)
}

// priceSpace anchors tick math to the caller's USD reference. When the base
// asset is token0 its USD price rises with the tick, so the exponent is
// negated to keep PriceFromTick's orientation.
type priceSpace struct {
	negate  bool
	adjust  float64
	current float64
}

func newPriceSpace(baseIsToken0 bool, basePriceUSD float64, currentTick int) priceSpace {
	tick := currentTick
	if baseIsToken0 {
		tick = -currentTick
	}
	return priceSpace{
		negate:  baseIsToken0,
		adjust:  DecimalAdjust(basePriceUSD, tick),
		current: basePriceUSD,
	}
}

func (w priceSpace) priceAt(tick int) float64 {
	if w.negate {
		tick = -tick
	}
	return PriceFromTick(tick, w.adjust)
}

func (w priceSpace) tickOf(price float64) int {
	tick := TickFromPrice(price, w.adjust)
	if w.negate {
		return -tick
	}
	return tick
}

// outer picks the price edge farther from the current price, which is where
// a level is anchored.
func (w priceSpace) outer(a, b float64) float64 {
	if math.Abs(b-w.current) >= math.Abs(a-w.current) {
		return b
	}
	return a
}

// walk runs one directional scan. sign is crossUpSign for ascending ticks,
// crossDownSign for descending.
func (p ConcentratedParams) walk(sign int, w priceSpace) []model.DepthLevel {
	running := p.ActiveLiquidity
	boundary := p.CurrentTick

	ticks := make([]int, 0, len(p.Ticks))
	if sign == crossUpSign {
		for _, t := range p.Ticks {
			if t > p.CurrentTick {
				ticks = append(ticks, t)
			}
		}
	} else {
		for i := len(p.Ticks) - 1; i >= 0; i-- {
			if p.Ticks[i] <= p.CurrentTick {
				ticks = append(ticks, p.Ticks[i])
			}
		}
	}

	var levels []model.DepthLevel
	for _, t := range ticks {
		lo, hi := boundary, t
		if sign == crossDownSign {
			lo, hi = t, boundary
		}

		if running > 0 && lo < hi {
			for _, level := range p.segmentLevels(lo, hi, running, w) {
				if p.MaxLevels > 0 && len(levels) >= p.MaxLevels {
					return levels
				}
				levels = append(levels, level)
			}
		}

		if info, ok := p.TickLiquidity[t]; ok && info.LiquidityNet != nil {
			net, _ := new(big.Float).SetInt(info.LiquidityNet).Float64()
			running += float64(sign) * net
		}
		boundary = t
	}
	return levels
}

// segmentLevels converts one constant-liquidity segment into levels: a single
// level anchored at the outer price edge, or uniform price buckets of width
// Precision with synthetic tick edges.
func (p ConcentratedParams) segmentLevels(lo, hi int, running float64, w priceSpace) []model.DepthLevel {
	priceA := w.priceAt(lo)
	priceB := w.priceAt(hi)
	pMin, pMax := math.Min(priceA, priceB), math.Max(priceA, priceB)

	if p.Precision <= 0 || pMax-pMin <= p.Precision {
		if level, ok := p.makeLevel(lo, hi, running, w.outer(priceA, priceB), pMin, pMax); ok {
			return []model.DepthLevel{level}
		}
		return nil
	}

	buckets := int(math.Ceil((pMax - pMin) / p.Precision))
	if buckets > maxBucketsPerSegment {
		buckets = maxBucketsPerSegment
	}
	width := (pMax - pMin) / float64(buckets)

	levels := make([]model.DepthLevel, 0, buckets)
	for i := 0; i < buckets; i++ {
		edgeA := pMin + float64(i)*width
		edgeB := edgeA + width
		tickA := w.tickOf(edgeA)
		tickB := w.tickOf(edgeB)
		bLo, bHi := tickA, tickB
		if bLo > bHi {
			bLo, bHi = bHi, bLo
		}
		if level, ok := p.makeLevel(bLo, bHi, running, w.outer(edgeA, edgeB), edgeA, edgeB); ok {
			levels = append(levels, level)
		}
	}
	return levels
}

func (p ConcentratedParams) makeLevel(lo, hi int, running, price, priceLower, priceUpper float64) (model.DepthLevel, bool) {
	baseRaw, quoteRaw := SegmentBaseQuote(running, lo, hi, p.BaseIsToken0)
	base := baseRaw / math.Pow(10, float64(p.BaseDecimals))
	quote := quoteRaw / math.Pow(10, float64(p.QuoteDecimals))

	usd := base * price
	if math.IsNaN(price) || math.IsInf(price, 0) ||
		math.IsNaN(base) || math.IsInf(base, 0) ||
		math.IsNaN(quote) || math.IsInf(quote, 0) ||
		math.IsNaN(usd) || math.IsInf(usd, 0) {
		return model.DepthLevel{}, false
	}
	if usd < usdNoiseFloor || usd > usdCeiling {
		return model.DepthLevel{}, false
	}

	return model.DepthLevel{
		Price:        price,
		PriceLower:   priceLower,
		PriceUpper:   priceUpper,
		TickLower:    lo,
		TickUpper:    hi,
		BaseAmount:   base,
		QuoteAmount:  quote,
		LiquidityUSD: usd,
	}, true
}

func dedupeByPrice(levels []model.DepthLevel) []model.DepthLevel {
	if len(levels) < 2 {
		return levels
	}
	out := levels[:1]
	for _, level := range levels[1:] {
		if level.Price == out[len(out)-1].Price {
			continue
		}
		out = append(out, level)
	}
	return out
}
