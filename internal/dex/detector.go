package dex

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"depthscope/internal/chain"
	"depthscope/internal/model"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	poolIDPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// IsAddress reports whether the identifier has the narrow 20-byte shape.
func IsAddress(identifier string) bool {
	return addressPattern.MatchString(identifier)
}

// IsPoolID reports whether the identifier has the wide 32-byte shape used by
// singleton-managed pools.
func IsPoolID(identifier string) bool {
	return poolIDPattern.MatchString(identifier)
}

// Detector classifies a pool identifier into a liquidity model.
type Detector struct {
	reader chain.Reader
}

// NewDetector builds a Detector over a batched reader.
func NewDetector(reader chain.Reader) *Detector {
	return &Detector{reader: reader}
}

// Detect resolves the pool type for the identifier. Wide identifiers are
// classified as V4 without any network call. Narrow addresses are probed with
// slot0 and getReserves in one batch; slot0 wins when both answer, because a
// V2-shaped call can spuriously succeed against non-pair contracts.
func (d *Detector) Detect(ctx context.Context, identifier string) (model.PoolType, error) {
	if IsPoolID(identifier) {
		return model.PoolTypeV4, nil
	}
	if !IsAddress(identifier) {
		return "", model.NewInvalidInput("pool", fmt.Sprintf("malformed pool identifier: %s", identifier))
	}

	pool := common.HexToAddress(identifier)

	poolABI, err := V3PoolABI()
	if err != nil {
		return "", fmt.Errorf("parse v3 abi: %w", err)
	}
	pairABI, err := V2PairABI()
	if err != nil {
		return "", fmt.Errorf("parse v2 abi: %w", err)
	}

	slot0Data, err := poolABI.Pack("slot0")
	if err != nil {
		return "", fmt.Errorf("pack slot0: %w", err)
	}
	reservesData, err := pairABI.Pack("getReserves")
	if err != nil {
		return "", fmt.Errorf("pack getReserves: %w", err)
	}

	results, err := d.reader.Aggregate(ctx, []chain.Call{
		{Target: pool, Data: slot0Data, AllowFailure: true},
		{Target: pool, Data: reservesData, AllowFailure: true},
	})
	if err != nil {
		return "", model.NewUpstreamUnavailable(fmt.Sprintf("pool type probe failed: %v", err))
	}

	if results[0].Success && decodes(poolABI, "slot0", results[0].ReturnData) {
		return model.PoolTypeV3, nil
	}
	if results[1].Success && decodes(pairABI, "getReserves", results[1].ReturnData) {
		return model.PoolTypeV2, nil
	}

	return "", model.NewUnsupported(fmt.Sprintf("contract %s answers neither slot0 nor getReserves", strings.ToLower(identifier)))
}

func decodes(parsed abi.ABI, method string, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	_, err := parsed.Unpack(method, data)
	return err == nil
}
