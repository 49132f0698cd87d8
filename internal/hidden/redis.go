package hidden

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"xcom/map-go/internal/overlay"
)

// hashKey is the single redis hash all hide decisions live under, one field
// per (kind, id) pair.
const hashKey = "overlay:hidden"

// RedisKV persists hide decisions in a redis hash.
type RedisKV struct {
	rdb *redis.Client
}

func NewRedisKV(rdb *redis.Client) *RedisKV {
	return &RedisKV{rdb: rdb}
}

func (r *RedisKV) Load(ctx context.Context) ([]Item, error) {
	fields, err := r.rdb.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(fields))
	for _, raw := range fields {
		var it Item
		if err := json.Unmarshal([]byte(raw), &it); err != nil {
			continue // malformed entries are skipped, not fatal
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *RedisKV) Put(ctx context.Context, item Item) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return r.rdb.HSet(ctx, hashKey, key(item.Kind, item.ID), raw).Err()
}

func (r *RedisKV) Delete(ctx context.Context, kind overlay.HiddenKind, id string) error {
	return r.rdb.HDel(ctx, hashKey, key(kind, id)).Err()
}

// Ping reports redis reachability for the readiness probe.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
