package depth

import (
	"math"
	"testing"
)

func TestBuildConstantProductLevelSchedule(t *testing.T) {
	p := ConstantProductParams{
		Reserve0:     1_000_000,
		Reserve1:     500,
		BaseIsToken0: true,
		BasePriceUSD: 0.0005,
		Levels:       10,
		MaxPct:       50,
	}

	bids, asks := BuildConstantProduct(p)
	if len(bids) != 10 || len(asks) != 10 {
		t.Fatalf("bids/asks = %d/%d, want 10/10", len(bids), len(asks))
	}

	current := p.BasePriceUSD
	prevDist := 0.0
	for i, level := range asks {
		dist := level.Price - current
		if dist <= prevDist {
			t.Fatalf("ask %d distance %g not strictly growing from %g", i, dist, prevDist)
		}
		prevDist = dist
	}
	prevDist = 0.0
	for i, level := range bids {
		dist := current - level.Price
		if dist <= prevDist {
			t.Fatalf("bid %d distance %g not strictly growing from %g", i, dist, prevDist)
		}
		prevDist = dist
	}

	for _, level := range append(bids, asks...) {
		if level.BaseAmount <= 0 || level.QuoteAmount <= 0 || level.LiquidityUSD <= 0 {
			t.Fatalf("non-positive amounts in level %+v", level)
		}
	}
}

func TestBuildConstantProductInvariantHolds(t *testing.T) {
	p := ConstantProductParams{
		Reserve0:     1_000_000,
		Reserve1:     500,
		BaseIsToken0: true,
		BasePriceUSD: 0.0005,
		Levels:       5,
		MaxPct:       30,
	}
	k := p.Reserve0 * p.Reserve1

	_, asks := BuildConstantProduct(p)
	for _, level := range asks {
		// reconstruct the re-solved reserves from the deltas; an ask moves
		// the pool price up so token0 leaves and token1 enters
		newR0 := p.Reserve0 - level.BaseAmount
		newR1 := p.Reserve1 + level.QuoteAmount
		if math.Abs(newR0*newR1-k)/k > 1e-9 {
			t.Fatalf("invariant broken at price %g: %g vs %g", level.Price, newR0*newR1, k)
		}
	}
}

func TestBuildConstantProductBaseToken1(t *testing.T) {
	p := ConstantProductParams{
		Reserve0:     500,
		Reserve1:     1_000_000,
		BaseIsToken0: false,
		BasePriceUSD: 0.0005,
		Levels:       10,
		MaxPct:       50,
	}

	bids, asks := BuildConstantProduct(p)
	if len(bids) != 10 || len(asks) != 10 {
		t.Fatalf("bids/asks = %d/%d, want 10/10", len(bids), len(asks))
	}
	for i := 1; i < len(asks); i++ {
		if asks[i].Price <= asks[i-1].Price {
			t.Fatalf("asks not strictly ascending at %d", i)
		}
	}
	for i := 1; i < len(bids); i++ {
		if bids[i].Price >= bids[i-1].Price {
			t.Fatalf("bids not strictly descending at %d", i)
		}
	}
}

func TestBuildConstantProductDefaults(t *testing.T) {
	p := ConstantProductParams{
		Reserve0:     1_000_000,
		Reserve1:     500,
		BaseIsToken0: true,
		BasePriceUSD: 0.0005,
	}
	bids, asks := BuildConstantProduct(p)
	if len(bids) != defaultV2Levels || len(asks) != defaultV2Levels {
		t.Fatalf("bids/asks = %d/%d, want %d each", len(bids), len(asks), defaultV2Levels)
	}
}

func TestBuildConstantProductDegenerate(t *testing.T) {
	cases := []ConstantProductParams{
		{Reserve0: 0, Reserve1: 500, BasePriceUSD: 1},
		{Reserve0: 500, Reserve1: 0, BasePriceUSD: 1},
		{Reserve0: 500, Reserve1: 500, BasePriceUSD: 0},
		{Reserve0: 500, Reserve1: 500, BasePriceUSD: math.NaN()},
	}
	for i, p := range cases {
		bids, asks := BuildConstantProduct(p)
		if len(bids) != 0 || len(asks) != 0 {
			t.Fatalf("case %d: bids/asks = %d/%d, want empty", i, len(bids), len(asks))
		}
	}
}
