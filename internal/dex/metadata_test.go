package dex

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"depthscope/internal/chain"
)

func TestFetchTokenMetasStringAndBytes32Symbols(t *testing.T) {
	stringABI, err := ERC20StringABI()
	if err != nil {
		t.Fatalf("parse string abi: %v", err)
	}
	bytes32ABI, err := ERC20Bytes32ABI()
	if err != nil {
		t.Fatalf("parse bytes32 abi: %v", err)
	}

	usdt := common.HexToAddress("0x0000000000000000000000000000000000000001")
	mkr := common.HexToAddress("0x0000000000000000000000000000000000000002")

	var mkrSymbol [32]byte
	copy(mkrSymbol[:], "MKR")

	reader := &fakeReader{handler: func(calls []chain.Call) []chain.Result {
		results := make([]chain.Result, len(calls))
		for i, call := range calls {
			switch {
			case call.Target == usdt && i%2 == 0:
				results[i] = chain.Result{Success: true, ReturnData: packOutputs(t, stringABI, "decimals", uint8(6))}
			case call.Target == usdt:
				results[i] = chain.Result{Success: true, ReturnData: packOutputs(t, stringABI, "symbol", "USDT")}
			case i%2 == 0:
				results[i] = chain.Result{Success: true, ReturnData: packOutputs(t, stringABI, "decimals", uint8(18))}
			default:
				results[i] = chain.Result{Success: true, ReturnData: packOutputs(t, bytes32ABI, "symbol", mkrSymbol)}
			}
		}
		return results
	}}

	fetcher := NewMetadataFetcher(reader, nil, nil)
	metas, err := fetcher.FetchTokenMetas(context.Background(), []common.Address{usdt, mkr})
	if err != nil {
		t.Fatalf("FetchTokenMetas: %v", err)
	}

	if got := metas[usdt]; got.Symbol != "USDT" || got.Decimals != 6 {
		t.Fatalf("usdt meta = %+v", got)
	}
	if got := metas[mkr]; got.Symbol != "MKR" || got.Decimals != 18 {
		t.Fatalf("mkr meta = %+v", got)
	}
}

func TestFetchTokenMetasUsesCache(t *testing.T) {
	stringABI, err := ERC20StringABI()
	if err != nil {
		t.Fatalf("parse string abi: %v", err)
	}

	token := common.HexToAddress("0x0000000000000000000000000000000000000003")
	reader := &fakeReader{handler: func(calls []chain.Call) []chain.Result {
		results := make([]chain.Result, len(calls))
		for i := range calls {
			if i%2 == 0 {
				results[i] = chain.Result{Success: true, ReturnData: packOutputs(t, stringABI, "decimals", uint8(18))}
			} else {
				results[i] = chain.Result{Success: true, ReturnData: packOutputs(t, stringABI, "symbol", "WETH")}
			}
		}
		return results
	}}

	fetcher := NewMetadataFetcher(reader, nil, nil)
	if _, err := fetcher.FetchTokenMetas(context.Background(), []common.Address{token}); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := fetcher.FetchTokenMetas(context.Background(), []common.Address{token}); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if reader.calls != 1 {
		t.Fatalf("reader called %d times, want 1", reader.calls)
	}
}

func TestFetchTokenMetasRevertedSymbolIsEmpty(t *testing.T) {
	stringABI, err := ERC20StringABI()
	if err != nil {
		t.Fatalf("parse string abi: %v", err)
	}

	token := common.HexToAddress("0x0000000000000000000000000000000000000004")
	reader := &fakeReader{handler: func(calls []chain.Call) []chain.Result {
		return []chain.Result{
			{Success: true, ReturnData: packOutputs(t, stringABI, "decimals", uint8(9))},
			{Success: false},
		}
	}}

	fetcher := NewMetadataFetcher(reader, nil, nil)
	metas, err := fetcher.FetchTokenMetas(context.Background(), []common.Address{token})
	if err != nil {
		t.Fatalf("FetchTokenMetas: %v", err)
	}
	if got := metas[token]; got.Symbol != "" || got.Decimals != 9 {
		t.Fatalf("meta = %+v", got)
	}
}
