// Package cache memoizes depth results for a few seconds. Freshness policy
// lives in the caller; stores only report how old an entry is.
package cache

import (
	"context"
	"fmt"
	"time"

	"depthscope/internal/model"
)

// Key identifies one cached depth computation. Two requests differing in any
// field must not share an entry.
type Key struct {
	ChainID   int64
	Pool      string
	MaxLevels int
	Precision float64
	Dex       string
}

func (k Key) String() string {
	return fmt.Sprintf("depth:%d:%s:%d:%g:%s", k.ChainID, k.Pool, k.MaxLevels, k.Precision, k.Dex)
}

// Store is a TTL-agnostic depth cache. Get reports the entry's age so the
// caller can distinguish fresh, stale-but-usable and unusable entries.
type Store interface {
	Get(ctx context.Context, key Key) (model.DepthResult, time.Duration, bool)
	Put(ctx context.Context, key Key, result model.DepthResult)
}
