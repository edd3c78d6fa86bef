package depth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"depthscope/internal/chain"
	"depthscope/internal/dex"
)

// wordSize is the number of ticks tracked per bitmap word.
const wordSize = 256

// BitmapScanner discovers initialized tick indices by reading every bitmap
// word covering the valid tick range in one batched round trip.
type BitmapScanner struct {
	reader chain.Reader
	logger *zap.Logger
}

func NewBitmapScanner(reader chain.Reader, logger *zap.Logger) *BitmapScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BitmapScanner{reader: reader, logger: logger}
}

// ScanV3 scans the tickBitmap of a standalone pool contract.
func (s *BitmapScanner) ScanV3(ctx context.Context, pool common.Address, tickSpacing int) ([]int, error) {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse v3 abi: %w", err)
	}
	return s.scan(ctx, pool, tickSpacing, func(word int16) ([]byte, error) {
		return poolABI.Pack("tickBitmap", word)
	}, func(data []byte) (*big.Int, error) {
		values, err := poolABI.Unpack("tickBitmap", data)
		if err != nil {
			return nil, err
		}
		word, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected word type %T", values[0])
		}
		return word, nil
	})
}

// ScanV4 scans the bitmap of a singleton-managed pool through the state-view
// contract.
func (s *BitmapScanner) ScanV4(ctx context.Context, stateView common.Address, poolID [32]byte, tickSpacing int) ([]int, error) {
	viewABI, err := dex.V4StateViewABI()
	if err != nil {
		return nil, fmt.Errorf("parse state-view abi: %w", err)
	}
	return s.scan(ctx, stateView, tickSpacing, func(word int16) ([]byte, error) {
		return viewABI.Pack("getTickBitmap", poolID, word)
	}, func(data []byte) (*big.Int, error) {
		values, err := viewABI.Unpack("getTickBitmap", data)
		if err != nil {
			return nil, err
		}
		word, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected word type %T", values[0])
		}
		return word, nil
	})
}

func (s *BitmapScanner) scan(ctx context.Context, target common.Address, tickSpacing int, pack func(int16) ([]byte, error), unpack func([]byte) (*big.Int, error)) ([]int, error) {
	if tickSpacing <= 0 {
		return nil, fmt.Errorf("invalid tick spacing %d", tickSpacing)
	}

	minWord := wordPosition(floorDiv(MinTick, tickSpacing))
	maxWord := wordPosition(floorDiv(MaxTick, tickSpacing))

	words := make([]int16, 0, maxWord-minWord+1)
	calls := make([]chain.Call, 0, maxWord-minWord+1)
	for word := minWord; word <= maxWord; word++ {
		data, err := pack(int16(word))
		if err != nil {
			return nil, fmt.Errorf("pack bitmap word %d: %w", word, err)
		}
		words = append(words, int16(word))
		calls = append(calls, chain.Call{Target: target, Data: data, AllowFailure: true})
	}

	results, err := s.reader.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("scan tick bitmap: %w", err)
	}

	var ticks []int
	for i, result := range results {
		if !result.Success || len(result.ReturnData) == 0 {
			continue
		}
		word, err := unpack(result.ReturnData)
		if err != nil {
			s.logger.Debug("bitmap word decode failed", zap.Int("word", int(words[i])), zap.Error(err))
			continue
		}
		if word.Sign() == 0 {
			continue
		}
		for bit := 0; bit < wordSize; bit++ {
			if word.Bit(bit) == 0 {
				continue
			}
			tick := (int(words[i])*wordSize + bit) * tickSpacing
			if tick < MinTick || tick > MaxTick {
				continue
			}
			ticks = append(ticks, tick)
		}
	}
	return ticks, nil
}

// wordPosition maps a compressed tick to its bitmap word using arithmetic
// shift semantics, matching the on-chain int16(compressed >> 8).
func wordPosition(compressed int) int {
	return compressed >> 8
}

// floorDiv divides rounding toward negative infinity, the compression used by
// the tick bitmap for negative ticks.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
