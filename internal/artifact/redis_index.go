package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyArtifact       = "artifact:%s"
	keyArtifactExpiry = "artifacts:expiry"
)

// keeps artifact records in Redis so any instance can serve or sweep them
type RedisIndex struct {
	client *redis.Client
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func (r *RedisIndex) Put(ctx context.Context, a Artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(keyArtifact, a.ID), data, 0)
	pipe.ZAdd(ctx, keyArtifactExpiry, redis.Z{Score: float64(a.ExpiresAt.UnixMilli()), Member: a.ID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	return nil
}

// GETDEL makes the claim atomic across instances
func (r *RedisIndex) Take(ctx context.Context, id string) (Artifact, error) {
	pipe := r.client.TxPipeline()
	get := pipe.GetDel(ctx, fmt.Sprintf(keyArtifact, id))
	pipe.ZRem(ctx, keyArtifactExpiry, id)

	_, err := pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		return Artifact{}, ErrNotFound
	}

	if err != nil {
		return Artifact{}, fmt.Errorf("failed to claim artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal([]byte(get.Val()), &a); err != nil {
		return Artifact{}, fmt.Errorf("failed to decode artifact: %w", err)
	}

	return a, nil
}

// expiry scores are unix milliseconds
func (r *RedisIndex) ExpiredIDs(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, keyArtifactExpiry, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired artifacts: %w", err)
	}

	return ids, nil
}
