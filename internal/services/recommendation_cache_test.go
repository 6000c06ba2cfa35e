package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shopwise/pkg/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisRecommendationCache(t *testing.T) {
	ctx := context.Background()
	key := recommendationCacheKey("u1", 5, models.FilterHybrid, 3)

	t.Run("MissReturnsNil", func(t *testing.T) {
		_, client := newTestRedis(t)
		cache := NewRedisRecommendationCache(client, time.Minute, testLogger())

		resp, err := cache.Get(ctx, key)
		assert.NoError(t, err)
		assert.Nil(t, resp)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		mr, client := newTestRedis(t)
		cache := NewRedisRecommendationCache(client, 15*time.Minute, testLogger())

		trainedAt := testNow.Add(-time.Hour)
		stored := &models.RecommendationResponse{
			UserID: "u1",
			Recommendations: []models.Recommendation{{
				ProductID:              "p7",
				Score:                  1.0,
				Algorithm:              models.AlgorithmHybrid,
				ContributingAlgorithms: []models.Algorithm{models.AlgorithmCollaborative, models.AlgorithmContent},
				Name:                   "Laptop",
				Price:                  1299,
				Category:               "electronics",
				Images:                 []string{"p7.jpg"},
			}},
			Algorithm:      string(models.AlgorithmHybrid),
			ModelState:     models.ModelStateTrained,
			ModelVersion:   3,
			ModelTrainedAt: &trainedAt,
			GeneratedAt:    testNow,
		}
		require.NoError(t, cache.Set(ctx, key, stored))
		assert.Equal(t, 15*time.Minute, mr.TTL(key))

		got, err := cache.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, stored.Recommendations, got.Recommendations)
		assert.Equal(t, int64(3), got.ModelVersion)
		assert.True(t, trainedAt.Equal(*got.ModelTrainedAt))

		mr.FastForward(16 * time.Minute)
		got, err = cache.Get(ctx, key)
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("UnreadableEntryIsDropped", func(t *testing.T) {
		mr, client := newTestRedis(t)
		cache := NewRedisRecommendationCache(client, time.Minute, testLogger())
		require.NoError(t, mr.Set(key, "{not json"))

		got, err := cache.Get(ctx, key)
		assert.NoError(t, err)
		assert.Nil(t, got)
		assert.False(t, mr.Exists(key))
	})

	t.Run("RedisDownIsAnError", func(t *testing.T) {
		mr, client := newTestRedis(t)
		cache := NewRedisRecommendationCache(client, time.Minute, testLogger())
		mr.Close()

		_, err := cache.Get(ctx, key)
		assert.Error(t, err)
		assert.Error(t, cache.Set(ctx, key, &models.RecommendationResponse{UserID: "u1"}))
	})
}
