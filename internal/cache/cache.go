package cache

import (
	"context"
	"time"
)

// RecommendationCache stores suggested product names keyed by cart content.
type RecommendationCache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, names []string, ttl time.Duration) error
}

type NoopRecommendationCache struct{}

func (NoopRecommendationCache) Get(_ context.Context, _ string) ([]string, bool, error) {
	return nil, false, nil
}

func (NoopRecommendationCache) Set(_ context.Context, _ string, _ []string, _ time.Duration) error {
	return nil
}
