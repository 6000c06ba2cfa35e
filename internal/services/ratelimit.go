package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/internal/config"
	"github.com/temcen/shopwise/pkg/models"
)

// RateLimitService applies a sliding window limit per client key using a
// Redis sorted set of request timestamps.
type RateLimitService struct {
	limit       int
	window      time.Duration
	logger      *logrus.Logger
	redisClient *redis.Client
	now         func() time.Time
}

func NewRateLimitService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	window := cfg.Security.RateLimit.Window
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimitService{
		limit:       cfg.Security.RateLimit.Requests,
		window:      window,
		logger:      logger,
		redisClient: redisClient,
		now:         time.Now,
	}
}

func (s *RateLimitService) CheckLimit(ctx context.Context, clientKey string) (*models.RateLimitInfo, error) {
	key := fmt.Sprintf("rate_limit:client:%s", clientKey)

	now := s.now()
	windowStart := now.Add(-s.window)
	resetTime := now.Add(s.window).Unix()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Redis pipeline for atomic operations
	pipe := s.redisClient.Pipeline()

	// Remove expired entries
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))

	// Count current requests in window
	countCmd := pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})

	pipe.Expire(ctx, key, s.window)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to execute rate limit pipeline")
		// Return permissive result if Redis is down
		return &models.RateLimitInfo{
			Limit:     s.limit,
			Remaining: s.limit - 1,
			ResetTime: resetTime,
		}, nil
	}

	remaining := s.limit - int(countCmd.Val())
	if remaining < 0 {
		remaining = 0
	}

	return &models.RateLimitInfo{
		Limit:     s.limit,
		Remaining: remaining,
		ResetTime: resetTime,
	}, nil
}

// IsAllowed counts the request and reports whether it fits in the window.
func (s *RateLimitService) IsAllowed(ctx context.Context, clientKey string) (bool, *models.RateLimitInfo, error) {
	info, err := s.CheckLimit(ctx, clientKey)
	if err != nil {
		return false, nil, err
	}
	return info.Remaining > 0, info, nil
}
