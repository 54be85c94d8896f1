package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/skyfare/ticketing/config"
)

// RedisCache holds the in-flight operation markers that enforce "at most
// one mutating operation per booking/ticket identity", the completed
// idempotency results, and the read-side caches (fare rules, search).
type RedisCache struct {
	client       *redis.Client
	fareRulesTTL time.Duration
	searchTTL    time.Duration
}

func NewRedisCache(cfg config.RedisConfig, fareRulesTTL, searchTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:       redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		fareRulesTTL: fareRulesTTL,
		searchTTL:    searchTTL,
	}
}

// AcquireInFlight marks a mutating operation as in flight for an entity.
// Returns false when another operation already holds the marker; the caller
// rejects the request with a conflict instead of queueing it.
func (c *RedisCache) AcquireInFlight(ctx context.Context, entityID, operation string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, inFlightKey(entityID), operation, ttl).Result()
}

func (c *RedisCache) ReleaseInFlight(ctx context.Context, entityID string) error {
	return c.client.Del(ctx, inFlightKey(entityID)).Err()
}

// InFlightOperation returns the operation currently holding the marker, or
// "" when none. The reconciliation sweep uses it to learn what was being
// attempted when an outcome went unknown.
func (c *RedisCache) InFlightOperation(ctx context.Context, entityID string) (string, error) {
	op, err := c.client.Get(ctx, inFlightKey(entityID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return op, err
}

// StoreResult records the completed outcome of an idempotency key so a
// retried request returns the original result without a second GDS call.
func (c *RedisCache) StoreResult(ctx context.Context, key string, result any, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, idempotencyKey(key), payload, ttl).Err()
}

func (c *RedisCache) GetResult(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}

func (c *RedisCache) GetFareRules(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, fareRulesKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}

func (c *RedisCache) SetFareRules(ctx context.Context, key string, rules any) error {
	payload, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fareRulesKey(key), payload, c.fareRulesTTL).Err()
}

func (c *RedisCache) GetSearch(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, searchKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}

func (c *RedisCache) SetSearch(ctx context.Context, key string, results any) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, searchKey(key), payload, c.searchTTL).Err()
}

func inFlightKey(entityID string) string {
	return fmt.Sprintf("inflight:%s", entityID)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idem:%s", key)
}

func fareRulesKey(key string) string {
	return fmt.Sprintf("cache:farerules:%s", key)
}

func searchKey(key string) string {
	return fmt.Sprintf("cache:search:%s", key)
}
