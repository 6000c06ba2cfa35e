package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/pkg/models"
)

// RedisRecommendationCache keeps enriched recommendation responses in Redis.
// Keys embed the model version, so a retrain makes earlier entries unreachable
// and they expire on their TTL.
type RedisRecommendationCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisRecommendationCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisRecommendationCache {
	return &RedisRecommendationCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns nil without error on a cache miss.
func (c *RedisRecommendationCache) Get(ctx context.Context, key string) (*models.RecommendationResponse, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached recommendations: %w", err)
	}

	var resp models.RecommendationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Dropping unreadable cached recommendations")
		c.client.Del(ctx, key)
		return nil, nil
	}
	return &resp, nil
}

func (c *RedisRecommendationCache) Set(ctx context.Context, key string, resp *models.RecommendationResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache recommendations: %w", err)
	}
	return nil
}
