package depth

import (
	"math"
	"math/big"
	"testing"

	"depthscope/internal/model"
)

func tickInfo(net int64) model.TickLiquidity {
	return model.TickLiquidity{
		LiquidityGross: big.NewInt(net).Abs(big.NewInt(net)),
		LiquidityNet:   big.NewInt(net),
	}
}

func TestBuildConcentratedCrossingReducesLiquidity(t *testing.T) {
	// One boundary at tick 60 removing half the active liquidity: the first
	// ask segment [0,60] must be computed with L=10000, everything beyond
	// tick 60 with L=5000.
	p := ConcentratedParams{
		CurrentTick:     0,
		ActiveLiquidity: 10000,
		Ticks:           []int{60, 120},
		TickLiquidity: map[int]model.TickLiquidity{
			60: tickInfo(-5000),
		},
		BaseIsToken0: true,
		BasePriceUSD: 1,
	}

	_, asks := BuildConcentrated(p)
	if len(asks) != 2 {
		t.Fatalf("ask levels = %d, want 2", len(asks))
	}

	want0, _ := SegmentAmounts(10000, 0, 60)
	if math.Abs(asks[0].BaseAmount-want0)/want0 > 1e-9 {
		t.Fatalf("first segment base = %g, want %g", asks[0].BaseAmount, want0)
	}

	want1, _ := SegmentAmounts(5000, 60, 120)
	if math.Abs(asks[1].BaseAmount-want1)/want1 > 1e-9 {
		t.Fatalf("second segment base = %g, want %g", asks[1].BaseAmount, want1)
	}
}

func TestBuildConcentratedNegativeRunningContributesNothing(t *testing.T) {
	// Crossing tick 60 drives running liquidity negative; the segment
	// [60,120] must be skipped, and the +18000 boundary at 120 restores a
	// positive value for [120,180].
	p := ConcentratedParams{
		CurrentTick:     0,
		ActiveLiquidity: 10000,
		Ticks:           []int{60, 120, 180},
		TickLiquidity: map[int]model.TickLiquidity{
			60:  tickInfo(-15000),
			120: tickInfo(18000),
		},
		BaseIsToken0: true,
		BasePriceUSD: 1,
	}

	_, asks := BuildConcentrated(p)
	if len(asks) != 2 {
		t.Fatalf("ask levels = %d, want 2", len(asks))
	}

	want, _ := SegmentAmounts(13000, 120, 180)
	if math.Abs(asks[1].BaseAmount-want)/want > 1e-9 {
		t.Fatalf("restored segment base = %g, want %g", asks[1].BaseAmount, want)
	}
}

func TestBuildConcentratedSideOrdering(t *testing.T) {
	p := ConcentratedParams{
		CurrentTick:     0,
		ActiveLiquidity: 50000,
		Ticks:           []int{-180, -120, -60, 60, 120, 180},
		TickLiquidity: map[int]model.TickLiquidity{
			-180: tickInfo(10000), -120: tickInfo(10000), -60: tickInfo(10000),
			60: tickInfo(-10000), 120: tickInfo(-10000), 180: tickInfo(-10000),
		},
		BaseIsToken0: true,
		BasePriceUSD: 100,
	}

	bids, asks := BuildConcentrated(p)
	if len(bids) == 0 || len(asks) == 0 {
		t.Fatalf("bids/asks = %d/%d, want both non-empty", len(bids), len(asks))
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
	for _, level := range asks {
		if level.Price < p.BasePriceUSD {
			t.Fatalf("ask below current price: %g", level.Price)
		}
	}
	for _, level := range bids {
		if level.Price >= p.BasePriceUSD {
			t.Fatalf("bid at or above current price: %g", level.Price)
		}
	}
	for _, level := range append(bids, asks...) {
		if level.BaseAmount < 0 || level.QuoteAmount < 0 || level.LiquidityUSD < 0 {
			t.Fatalf("negative amounts in level %+v", level)
		}
	}
}

func TestBuildConcentratedBaseToken1SwapsSides(t *testing.T) {
	// With the base on token1, rising ticks lower the base USD price, so the
	// ascending walk must land on the bid side.
	p := ConcentratedParams{
		CurrentTick:     0,
		ActiveLiquidity: 50000,
		Ticks:           []int{-60, 60},
		TickLiquidity: map[int]model.TickLiquidity{
			-60: tickInfo(10000),
			60:  tickInfo(-10000),
		},
		BaseIsToken0: false,
		BasePriceUSD: 100,
	}

	bids, asks := BuildConcentrated(p)
	if len(bids) != 1 || len(asks) != 1 {
		t.Fatalf("bids/asks = %d/%d, want 1/1", len(bids), len(asks))
	}
	if bids[0].TickLower != 0 || bids[0].TickUpper != 60 {
		t.Fatalf("bid ticks = [%d,%d], want [0,60]", bids[0].TickLower, bids[0].TickUpper)
	}
	if asks[0].TickLower != -60 || asks[0].TickUpper != 0 {
		t.Fatalf("ask ticks = [%d,%d], want [-60,0]", asks[0].TickLower, asks[0].TickUpper)
	}
}

func TestBuildConcentratedMaxLevels(t *testing.T) {
	ticks := make([]int, 0, 20)
	info := make(map[int]model.TickLiquidity, 20)
	for tick := 60; tick <= 1200; tick += 60 {
		ticks = append(ticks, tick)
		info[tick] = tickInfo(0)
	}
	p := ConcentratedParams{
		CurrentTick:     0,
		ActiveLiquidity: 10000,
		Ticks:           ticks,
		TickLiquidity:   info,
		BaseIsToken0:    true,
		BasePriceUSD:    1,
		MaxLevels:       3,
	}

	_, asks := BuildConcentrated(p)
	if len(asks) != 3 {
		t.Fatalf("ask levels = %d, want 3", len(asks))
	}
}

func TestBuildConcentratedSubdivision(t *testing.T) {
	p := ConcentratedParams{
		CurrentTick:     0,
		ActiveLiquidity: 1e6,
		Ticks:           []int{6000},
		TickLiquidity:   map[int]model.TickLiquidity{6000: tickInfo(-1e6)},
		BaseIsToken0:    true,
		BasePriceUSD:    100,
		Precision:       5,
	}

	_, coarse := BuildConcentrated(ConcentratedParams{
		CurrentTick: 0, ActiveLiquidity: 1e6,
		Ticks:         []int{6000},
		TickLiquidity: map[int]model.TickLiquidity{6000: tickInfo(-1e6)},
		BaseIsToken0:  true, BasePriceUSD: 100,
	})
	_, fine := BuildConcentrated(p)

	if len(coarse) != 1 {
		t.Fatalf("coarse levels = %d, want 1", len(coarse))
	}
	// 1.0001^6000 ≈ 1.82, so the segment spans roughly $100..$182 and a $5
	// precision must split it into many buckets.
	if len(fine) < 10 {
		t.Fatalf("fine levels = %d, want >= 10", len(fine))
	}
	if len(fine) > maxBucketsPerSegment {
		t.Fatalf("fine levels = %d exceeds bucket cap", len(fine))
	}

	var coarseBase, fineBase float64
	coarseBase = coarse[0].BaseAmount
	for _, level := range fine {
		fineBase += level.BaseAmount
	}
	if math.Abs(fineBase-coarseBase)/coarseBase > 0.02 {
		t.Fatalf("subdivided base %g deviates from whole segment %g", fineBase, coarseBase)
	}
}

func TestBuildConcentratedNoiseFloor(t *testing.T) {
	p := ConcentratedParams{
		CurrentTick:     0,
		ActiveLiquidity: 1, // far below one cent of depth
		Ticks:           []int{60},
		TickLiquidity:   map[int]model.TickLiquidity{60: tickInfo(-1)},
		BaseIsToken0:    true,
		BasePriceUSD:    1,
	}
	bids, asks := BuildConcentrated(p)
	if len(bids) != 0 || len(asks) != 0 {
		t.Fatalf("bids/asks = %d/%d, want 0/0", len(bids), len(asks))
	}
}

func TestBuildConcentratedInvalidPrice(t *testing.T) {
	for _, price := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		bids, asks := BuildConcentrated(ConcentratedParams{
			BasePriceUSD: price, ActiveLiquidity: 1e6, Ticks: []int{60},
		})
		if len(bids) != 0 || len(asks) != 0 {
			t.Fatalf("price %g: bids/asks = %d/%d, want empty", price, len(bids), len(asks))
		}
	}
}
