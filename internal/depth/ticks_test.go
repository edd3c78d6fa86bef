package depth

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"depthscope/internal/chain"
	"depthscope/internal/dex"
)

func TestLoadV3OmitsFailedTicks(t *testing.T) {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		t.Fatalf("parse v3 abi: %v", err)
	}

	reader := &fakeReader{handler: func(calls []chain.Call) []chain.Result {
		results := make([]chain.Result, len(calls))
		for i, call := range calls {
			values := unpackMethodInputs(t, poolABI, "ticks", call.Data)
			tick := values[0].(*big.Int).Int64()
			if tick == 60 {
				results[i] = chain.Result{Success: false}
				continue
			}
			results[i] = chain.Result{Success: true, ReturnData: packMethodOutputs(t, poolABI, "ticks",
				big.NewInt(1000), big.NewInt(tick*10),
				big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), uint32(0), true)}
		}
		return results
	}}

	got, err := NewTickLoader(reader, nil).LoadV3(context.Background(), common.Address{}, []int{-60, 0, 60})
	if err != nil {
		t.Fatalf("LoadV3: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d ticks, want 2", len(got))
	}
	if _, ok := got[60]; ok {
		t.Fatal("failed tick must be omitted")
	}
	if net := got[-60].LiquidityNet; net.Cmp(big.NewInt(-600)) != 0 {
		t.Fatalf("liquidityNet(-60) = %s, want -600", net)
	}
	if gross := got[0].LiquidityGross; gross.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("liquidityGross(0) = %s, want 1000", gross)
	}
}

func TestLoadV3EmptyTickList(t *testing.T) {
	reader := &fakeReader{}
	got, err := NewTickLoader(reader, nil).LoadV3(context.Background(), common.Address{}, nil)
	if err != nil {
		t.Fatalf("LoadV3: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("loaded %d ticks, want 0", len(got))
	}
	if reader.calls != 0 {
		t.Fatalf("reader called %d times, want 0", reader.calls)
	}
}

func TestLoadV4(t *testing.T) {
	viewABI, err := dex.V4StateViewABI()
	if err != nil {
		t.Fatalf("parse state-view abi: %v", err)
	}

	var poolID [32]byte
	poolID[0] = 0x42

	reader := &fakeReader{handler: func(calls []chain.Call) []chain.Result {
		results := make([]chain.Result, len(calls))
		for i, call := range calls {
			values := unpackMethodInputs(t, viewABI, "getTickLiquidity", call.Data)
			id := values[0].([32]byte)
			if id != poolID {
				t.Fatalf("pool id = %x", id)
			}
			tick := values[1].(*big.Int).Int64()
			results[i] = chain.Result{Success: true, ReturnData: packMethodOutputs(t, viewABI, "getTickLiquidity",
				big.NewInt(500), big.NewInt(-tick))}
		}
		return results
	}}

	got, err := NewTickLoader(reader, nil).LoadV4(context.Background(), common.Address{}, poolID, []int{-120, 120})
	if err != nil {
		t.Fatalf("LoadV4: %v", err)
	}
	if net := got[120].LiquidityNet; net.Cmp(big.NewInt(-120)) != 0 {
		t.Fatalf("liquidityNet(120) = %s, want -120", net)
	}
	if net := got[-120].LiquidityNet; net.Cmp(big.NewInt(120)) != 0 {
		t.Fatalf("liquidityNet(-120) = %s, want 120", net)
	}
}
