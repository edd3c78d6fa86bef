package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"depthscope/internal/model"
)

// RedisStore keeps depth entries in Redis so several serving processes share
// one cache. Values live for the retention window (the caller's staleness
// bound), not the fresh TTL, so stale-window reads still find them. Redis
// failures degrade to cache misses.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

type redisEnvelope struct {
	Result    model.DepthResult `json:"result"`
	FetchedAt int64             `json:"fetched_at_ms"`
}

func NewRedisStore(client *redis.Client, retention time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:    client,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *RedisStore) Get(ctx context.Context, key Key) (model.DepthResult, time.Duration, bool) {
	raw, err := s.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Debug("redis get failed", zap.String("key", key.String()), zap.Error(err))
		}
		return model.DepthResult{}, 0, false
	}

	var envelope redisEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Debug("redis entry decode failed", zap.String("key", key.String()), zap.Error(err))
		return model.DepthResult{}, 0, false
	}

	age := s.now().Sub(time.UnixMilli(envelope.FetchedAt))
	return envelope.Result, age, true
}

func (s *RedisStore) Put(ctx context.Context, key Key, result model.DepthResult) {
	raw, err := json.Marshal(redisEnvelope{Result: result, FetchedAt: s.now().UnixMilli()})
	if err != nil {
		s.logger.Debug("redis entry encode failed", zap.String("key", key.String()), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, key.String(), raw, s.retention).Err(); err != nil {
		s.logger.Debug("redis set failed", zap.String("key", key.String()), zap.Error(err))
	}
}
