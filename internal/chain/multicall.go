package chain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const multicall3ABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "bool", "name": "allowFailure", "type": "bool"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Call3[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "aggregate3",
    "outputs": [
      {
        "components": [
          {"internalType": "bool", "name": "success", "type": "bool"},
          {"internalType": "bytes", "name": "returnData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Result[]",
        "name": "returnData",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "payable",
    "type": "function"
  }
]`

// DefaultMulticallAddress is the canonical Multicall3 deployment shared by
// most EVM chains.
const DefaultMulticallAddress = "0xcA11bde05977b3631167028862bE2a173976CA11"

var (
	multicall3ABI     abi.ABI
	multicall3ABIOnce sync.Once
	multicall3ABIErr  error
)

func multicallABI() (abi.ABI, error) {
	multicall3ABIOnce.Do(func() {
		multicall3ABI, multicall3ABIErr = abi.JSON(strings.NewReader(multicall3ABIJSON))
	})
	return multicall3ABI, multicall3ABIErr
}

type aggregateCall struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type aggregateResult struct {
	Success    bool
	ReturnData []byte
}

func packAggregate(calls []Call) ([]byte, error) {
	parsed, err := multicallABI()
	if err != nil {
		return nil, err
	}

	wire := make([]aggregateCall, 0, len(calls))
	for _, call := range calls {
		wire = append(wire, aggregateCall{
			Target:       call.Target,
			AllowFailure: call.AllowFailure,
			CallData:     call.Data,
		})
	}
	return parsed.Pack("aggregate3", wire)
}

func unpackAggregate(data []byte) ([]Result, error) {
	parsed, err := multicallABI()
	if err != nil {
		return nil, err
	}

	values, err := parsed.Unpack("aggregate3", data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected aggregate3 output arity: %d", len(values))
	}

	wire := *abi.ConvertType(values[0], new([]aggregateResult)).(*[]aggregateResult)
	results := make([]Result, 0, len(wire))
	for _, item := range wire {
		results = append(results, Result{Success: item.Success, ReturnData: item.ReturnData})
	}
	return results, nil
}
