package depth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"depthscope/internal/chain"
	"depthscope/internal/dex"
	"depthscope/internal/model"
)

// TickLoader reads liquidityGross/liquidityNet for initialized ticks, one
// batched round trip per pool. Failed or undecodable sub-calls are skipped;
// the map only ever contains ticks the chain actually answered for.
type TickLoader struct {
	reader chain.Reader
	logger *zap.Logger
}

func NewTickLoader(reader chain.Reader, logger *zap.Logger) *TickLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TickLoader{reader: reader, logger: logger}
}

// LoadV3 reads the ticks mapping of a standalone pool contract.
func (l *TickLoader) LoadV3(ctx context.Context, pool common.Address, ticks []int) (map[int]model.TickLiquidity, error) {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse v3 abi: %w", err)
	}
	return l.load(ctx, pool, ticks, func(tick int) ([]byte, error) {
		return poolABI.Pack("ticks", big.NewInt(int64(tick)))
	}, func(data []byte) (model.TickLiquidity, error) {
		values, err := poolABI.Unpack("ticks", data)
		if err != nil {
			return model.TickLiquidity{}, err
		}
		return tickLiquidityFromValues(values)
	})
}

// LoadV4 reads tick liquidity through the state-view contract.
func (l *TickLoader) LoadV4(ctx context.Context, stateView common.Address, poolID [32]byte, ticks []int) (map[int]model.TickLiquidity, error) {
	viewABI, err := dex.V4StateViewABI()
	if err != nil {
		return nil, fmt.Errorf("parse state-view abi: %w", err)
	}
	return l.load(ctx, stateView, ticks, func(tick int) ([]byte, error) {
		return viewABI.Pack("getTickLiquidity", poolID, big.NewInt(int64(tick)))
	}, func(data []byte) (model.TickLiquidity, error) {
		values, err := viewABI.Unpack("getTickLiquidity", data)
		if err != nil {
			return model.TickLiquidity{}, err
		}
		return tickLiquidityFromValues(values)
	})
}

func (l *TickLoader) load(ctx context.Context, target common.Address, ticks []int, pack func(int) ([]byte, error), unpack func([]byte) (model.TickLiquidity, error)) (map[int]model.TickLiquidity, error) {
	out := make(map[int]model.TickLiquidity, len(ticks))
	if len(ticks) == 0 {
		return out, nil
	}

	calls := make([]chain.Call, 0, len(ticks))
	for _, tick := range ticks {
		data, err := pack(tick)
		if err != nil {
			return nil, fmt.Errorf("pack tick %d: %w", tick, err)
		}
		calls = append(calls, chain.Call{Target: target, Data: data, AllowFailure: true})
	}

	results, err := l.reader.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("load tick liquidity: %w", err)
	}

	for i, result := range results {
		if !result.Success || len(result.ReturnData) == 0 {
			continue
		}
		liquidity, err := unpack(result.ReturnData)
		if err != nil {
			l.logger.Debug("tick decode failed", zap.Int("tick", ticks[i]), zap.Error(err))
			continue
		}
		out[ticks[i]] = liquidity
	}
	return out, nil
}

func tickLiquidityFromValues(values []interface{}) (model.TickLiquidity, error) {
	if len(values) < 2 {
		return model.TickLiquidity{}, fmt.Errorf("short tick tuple: %d values", len(values))
	}
	gross, ok := values[0].(*big.Int)
	if !ok {
		return model.TickLiquidity{}, fmt.Errorf("unexpected liquidityGross type %T", values[0])
	}
	net, ok := values[1].(*big.Int)
	if !ok {
		return model.TickLiquidity{}, fmt.Errorf("unexpected liquidityNet type %T", values[1])
	}
	return model.TickLiquidity{
		LiquidityGross: new(big.Int).Set(gross),
		LiquidityNet:   new(big.Int).Set(net),
	}, nil
}
