package dex

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"depthscope/internal/chain"
	"depthscope/internal/model"
)

// StateFetcher snapshots the on-chain fields a depth computation needs, one
// batched round trip per pool.
type StateFetcher struct {
	reader chain.Reader
}

func NewStateFetcher(reader chain.Reader) *StateFetcher {
	return &StateFetcher{reader: reader}
}

// FetchV3State reads token0/token1/fee/tickSpacing/liquidity/slot0 in one
// batch. Any failed sub-call fails the snapshot; a classified V3 pool that
// stops answering is an upstream problem, not a partial result.
func (f *StateFetcher) FetchV3State(ctx context.Context, pool common.Address) (model.PoolState, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse v3 abi: %w", err)
	}

	methods := []string{"token0", "token1", "fee", "tickSpacing", "liquidity", "slot0"}
	results, err := f.batch(ctx, pool, poolABI, methods)
	if err != nil {
		return model.PoolState{}, err
	}

	state := model.PoolState{}

	token0, err := asAddress(results["token0"][0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := asAddress(results["token1"][0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("token1: %w", err)
	}
	state.Token0 = token0.Hex()
	state.Token1 = token1.Hex()

	fee, err := asBigInt(results["fee"][0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("fee: %w", err)
	}
	state.Fee = uint32(fee.Uint64())

	spacing, err := asBigInt(results["tickSpacing"][0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("tick spacing: %w", err)
	}
	spacing24, err := int24FromBig(spacing)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("tick spacing: %w", err)
	}
	state.TickSpacing = int(spacing24)

	state.Liquidity, err = asBigInt(results["liquidity"][0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("liquidity: %w", err)
	}

	slot0 := results["slot0"]
	state.SqrtPriceX96, err = asBigInt(slot0[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("sqrt price: %w", err)
	}
	tickBig, err := asBigInt(slot0[1])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("tick: %w", err)
	}
	tick24, err := int24FromBig(tickBig)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("tick: %w", err)
	}
	state.Tick = int(tick24)

	return state, nil
}

// FetchV2State reads token0/token1/getReserves in one batch.
func (f *StateFetcher) FetchV2State(ctx context.Context, pool common.Address) (model.PoolState, error) {
	pairABI, err := V2PairABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse v2 abi: %w", err)
	}

	results, err := f.batch(ctx, pool, pairABI, []string{"token0", "token1", "getReserves"})
	if err != nil {
		return model.PoolState{}, err
	}

	state := model.PoolState{}

	token0, err := asAddress(results["token0"][0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := asAddress(results["token1"][0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("token1: %w", err)
	}
	state.Token0 = token0.Hex()
	state.Token1 = token1.Hex()

	reserves := results["getReserves"]
	state.Reserve0, err = asBigInt(reserves[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("reserve0: %w", err)
	}
	state.Reserve1, err = asBigInt(reserves[1])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("reserve1: %w", err)
	}

	return state, nil
}

// FetchV4State reads getSlot0/getLiquidity from the state-view contract.
// Token addresses and tick spacing are not recoverable from a pool identifier,
// so the caller supplies them.
func (f *StateFetcher) FetchV4State(ctx context.Context, stateView common.Address, poolID [32]byte, token0, token1 common.Address, tickSpacing int) (model.PoolState, error) {
	viewABI, err := V4StateViewABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse state-view abi: %w", err)
	}

	slot0Data, err := viewABI.Pack("getSlot0", poolID)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("pack getSlot0: %w", err)
	}
	liquidityData, err := viewABI.Pack("getLiquidity", poolID)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("pack getLiquidity: %w", err)
	}

	results, err := f.reader.Aggregate(ctx, []chain.Call{
		{Target: stateView, Data: slot0Data, AllowFailure: true},
		{Target: stateView, Data: liquidityData, AllowFailure: true},
	})
	if err != nil {
		return model.PoolState{}, fmt.Errorf("fetch v4 state: %w", err)
	}
	for i, name := range []string{"getSlot0", "getLiquidity"} {
		if !results[i].Success {
			return model.PoolState{}, fmt.Errorf("fetch v4 state: %s reverted", name)
		}
	}

	state := model.PoolState{
		Token0:      token0.Hex(),
		Token1:      token1.Hex(),
		TickSpacing: tickSpacing,
	}

	slot0, err := viewABI.Unpack("getSlot0", results[0].ReturnData)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("unpack getSlot0: %w", err)
	}
	state.SqrtPriceX96, err = asBigInt(slot0[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("sqrt price: %w", err)
	}
	tickBig, err := asBigInt(slot0[1])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("tick: %w", err)
	}
	tick24, err := int24FromBig(tickBig)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("tick: %w", err)
	}
	state.Tick = int(tick24)

	liquidity, err := viewABI.Unpack("getLiquidity", results[1].ReturnData)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("unpack getLiquidity: %w", err)
	}
	state.Liquidity, err = asBigInt(liquidity[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("liquidity: %w", err)
	}

	return state, nil
}

func (f *StateFetcher) batch(ctx context.Context, target common.Address, parsed abi.ABI, methods []string) (map[string][]interface{}, error) {
	calls := make([]chain.Call, 0, len(methods))
	for _, method := range methods {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		calls = append(calls, chain.Call{Target: target, Data: data, AllowFailure: true})
	}

	results, err := f.reader.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("fetch pool state: %w", err)
	}

	out := make(map[string][]interface{}, len(methods))
	for i, method := range methods {
		if !results[i].Success {
			return nil, fmt.Errorf("fetch pool state: %s reverted", method)
		}
		values, err := parsed.Unpack(method, results[i].ReturnData)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		out[method] = values
	}
	return out, nil
}
