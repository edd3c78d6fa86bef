package depth

import (
	"math"
	"math/big"
)

// Tick bounds of the concentrated-liquidity tick space.
const (
	MinTick = -887272
	MaxTick = 887272
)

const (
	tickBase = 1.0001

	// Output saturation bounds. Prices outside this range carry no signal
	// for an order book and would otherwise leak infinities downstream.
	minPrice = 1e-18
	maxPrice = 1e18
)

// PriceFromTick converts a tick index to a USD price given the pool's decimal
// adjustment factor. Ticks outside the valid range are clamped, outputs are
// saturated into [1e-18, 1e18]. Price decreases as the tick rises.
func PriceFromTick(tick int, decimalAdjust float64) float64 {
	if tick < MinTick {
		tick = MinTick
	} else if tick > MaxTick {
		tick = MaxTick
	}
	price := decimalAdjust / math.Pow(tickBase, float64(tick))
	if math.IsNaN(price) {
		return minPrice
	}
	if price < minPrice {
		return minPrice
	}
	if price > maxPrice {
		return maxPrice
	}
	return price
}

// TickFromPrice inverts PriceFromTick, rounding to the nearest integer tick.
// Non-positive or non-finite inputs map to tick 0.
func TickFromPrice(price, decimalAdjust float64) int {
	if price <= 0 || decimalAdjust <= 0 ||
		math.IsInf(price, 0) || math.IsNaN(price) ||
		math.IsInf(decimalAdjust, 0) || math.IsNaN(decimalAdjust) {
		return 0
	}
	tick := math.Round(math.Log(decimalAdjust/price) / math.Log(tickBase))
	if math.IsNaN(tick) || math.IsInf(tick, 0) {
		return 0
	}
	return int(tick)
}

// DecimalAdjust derives the price conversion factor from a known USD price at
// the pool's current tick. Computed once per depth build.
func DecimalAdjust(usdPrice float64, currentTick int) float64 {
	return usdPrice * math.Pow(tickBase, float64(currentTick))
}

// RatioFromSqrtX96 converts a Q64.96 square-root price to the decimal-adjusted
// token1/token0 ratio.
func RatioFromSqrtX96(raw *big.Int, dec0, dec1 uint8) float64 {
	if raw == nil || raw.Sign() <= 0 {
		return 0
	}
	sqrt, _ := new(big.Float).SetInt(raw).Float64()
	sqrt /= math.Pow(2, 96)
	return sqrt * sqrt * math.Pow(10, float64(dec0)-float64(dec1))
}

// SegmentAmounts computes the raw token amounts held by a constant-liquidity
// segment between two ticks: amount0 = L*(1/sqrtPa - 1/sqrtPb),
// amount1 = L*(sqrtPb - sqrtPa) with Pa < Pb in sqrt-ratio terms.
// Degenerate or non-finite inputs yield (0, 0).
func SegmentAmounts(liquidity float64, tickLower, tickUpper int) (amount0, amount1 float64) {
	if liquidity <= 0 || tickLower >= tickUpper {
		return 0, 0
	}
	sqrtA := math.Pow(tickBase, float64(tickLower)/2)
	sqrtB := math.Pow(tickBase, float64(tickUpper)/2)
	amount0 = liquidity * (1/sqrtA - 1/sqrtB)
	amount1 = liquidity * (sqrtB - sqrtA)
	if math.IsNaN(amount0) || math.IsInf(amount0, 0) ||
		math.IsNaN(amount1) || math.IsInf(amount1, 0) {
		return 0, 0
	}
	if amount0 < 0 {
		amount0 = 0
	}
	if amount1 < 0 {
		amount1 = 0
	}
	return amount0, amount1
}

// SegmentBaseQuote maps SegmentAmounts onto (base, quote) according to which
// pool side is the priced asset.
func SegmentBaseQuote(liquidity float64, tickLower, tickUpper int, baseIsToken0 bool) (baseAmount, quoteAmount float64) {
	amount0, amount1 := SegmentAmounts(liquidity, tickLower, tickUpper)
	if baseIsToken0 {
		return amount0, amount1
	}
	return amount1, amount0
}
