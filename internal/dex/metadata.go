package dex

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"depthscope/internal/chain"
	"depthscope/internal/model"
)

// TokenMetaCache caches token metadata by address. ERC20 metadata is
// immutable, so entries never expire.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// MetadataFetcher loads ERC20 decimals and symbols through the batched reader.
type MetadataFetcher struct {
	reader chain.Reader
	cache  *TokenMetaCache
	logger *zap.Logger
}

func NewMetadataFetcher(reader chain.Reader, cache *TokenMetaCache, logger *zap.Logger) *MetadataFetcher {
	if cache == nil {
		cache = NewTokenMetaCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataFetcher{reader: reader, cache: cache, logger: logger}
}

// FetchTokenMetas resolves metadata for all tokens in one aggregated round
// trip. Cached tokens are skipped. Symbols that answer neither the string nor
// the bytes32 ABI are left empty rather than failing the whole fetch; a
// missing decimals answer fails that token because depth math cannot proceed
// without it.
func (f *MetadataFetcher) FetchTokenMetas(ctx context.Context, tokens []common.Address) (map[common.Address]model.TokenMeta, error) {
	out := make(map[common.Address]model.TokenMeta, len(tokens))

	var missing []common.Address
	seen := make(map[common.Address]bool, len(tokens))
	for _, token := range tokens {
		if seen[token] {
			continue
		}
		seen[token] = true
		if meta, ok := f.cache.Get(token); ok {
			out[token] = meta
			continue
		}
		missing = append(missing, token)
	}
	if len(missing) == 0 {
		return out, nil
	}

	stringABI, err := ERC20StringABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := ERC20Bytes32ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	decimalsData, err := stringABI.Pack("decimals")
	if err != nil {
		return nil, fmt.Errorf("pack decimals: %w", err)
	}
	symbolData, err := stringABI.Pack("symbol")
	if err != nil {
		return nil, fmt.Errorf("pack symbol: %w", err)
	}

	// Two sub-calls per token: decimals then symbol. The symbol return data
	// is decoded against both ABIs after the fact, so one call covers both
	// string and bytes32 tokens.
	calls := make([]chain.Call, 0, len(missing)*2)
	for _, token := range missing {
		calls = append(calls,
			chain.Call{Target: token, Data: decimalsData, AllowFailure: true},
			chain.Call{Target: token, Data: symbolData, AllowFailure: true},
		)
	}

	results, err := f.reader.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("fetch token metadata: %w", err)
	}

	for i, token := range missing {
		decResult := results[i*2]
		symResult := results[i*2+1]

		if !decResult.Success {
			return nil, fmt.Errorf("token %s: decimals call reverted", token.Hex())
		}
		values, err := stringABI.Unpack("decimals", decResult.ReturnData)
		if err != nil {
			return nil, fmt.Errorf("token %s: unpack decimals: %w", token.Hex(), err)
		}
		decimals, err := asUint8(values[0])
		if err != nil {
			return nil, fmt.Errorf("token %s: decimals: %w", token.Hex(), err)
		}

		meta := model.TokenMeta{Address: token.Hex(), Decimals: decimals}
		meta.Symbol = decodeSymbol(stringABI, bytes32ABI, symResult)
		if meta.Symbol == "" {
			f.logger.Debug("symbol decode failed", zap.String("token", token.Hex()))
		}

		f.cache.Set(token, meta)
		out[token] = meta
	}

	return out, nil
}

func decodeSymbol(stringABI, bytes32ABI abi.ABI, result chain.Result) string {
	if !result.Success || len(result.ReturnData) == 0 {
		return ""
	}
	if values, err := stringABI.Unpack("symbol", result.ReturnData); err == nil {
		if symbol, ok := values[0].(string); ok {
			return symbol
		}
	}
	if values, err := bytes32ABI.Unpack("symbol", result.ReturnData); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			return symbol
		}
	}
	return ""
}
