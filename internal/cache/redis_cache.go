package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisRecommendationCache struct {
	client *redis.Client
}

func NewRedisRecommendationCache(addr string, password string, db int) *RedisRecommendationCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisRecommendationCache{client: client}
}

func (c *RedisRecommendationCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRecommendationCache) Close() error {
	return c.client.Close()
}

func (c *RedisRecommendationCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var names []string
	if err := json.Unmarshal(val, &names); err != nil {
		return nil, false, err
	}
	return names, true, nil
}

func (c *RedisRecommendationCache) Set(ctx context.Context, key string, names []string, ttl time.Duration) error {
	if names == nil {
		names = []string{}
	}
	payload, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
