package depth

import (
	"context"

	"depthscope/internal/model"
)

// Request carries the parameters of one depth query. Token0/Token1 and
// TickSpacing are only consulted for wide (32-byte) pool identifiers, whose
// on-chain key cannot be recovered from the identifier alone.
type Request struct {
	ChainID     int64
	Pool        string
	USDPrice    float64
	MaxLevels   int
	Precision   float64
	Dex         string
	Token0      string
	Token1      string
	TickSpacing int
}

// Provider is an alternate depth estimator for pool families this engine does
// not compute itself. It returns the same result shape so the orchestrator
// stays agnostic to its internals.
type Provider interface {
	Depth(ctx context.Context, req Request) (model.DepthResult, error)
}
