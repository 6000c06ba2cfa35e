package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shopwise/internal/config"
	"github.com/temcen/shopwise/pkg/models"
)

const tokenIssuer = "github.com/temcen/shopwise"

var ErrAuthDisabled = errors.New("admin authentication is not configured")

// AuthService issues and validates the admin tokens that guard training.
// When a Redis client is present, tokens are also tracked as revocable sessions.
type AuthService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	jwtSecret   []byte
	now         func() time.Time
}

func NewAuthService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *AuthService {
	return &AuthService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		jwtSecret:   []byte(cfg.Auth.JWTSecret),
		now:         time.Now,
	}
}

// Enabled reports whether admin endpoints require a token.
func (s *AuthService) Enabled() bool {
	return len(s.jwtSecret) > 0
}

func (s *AuthService) GenerateAdminToken(subject string) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}

	now := s.now()
	claims := &models.AdminClaims{
		Role: models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Auth.TokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	if s.redisClient != nil {
		err = s.redisClient.Set(context.Background(), sessionKey(claims.ID), subject, s.config.Auth.TokenTTL).Err()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to store session in Redis")
			// Don't fail token generation if Redis is down
		}
	}

	return tokenString, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*models.AdminClaims, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Role != models.RoleAdmin {
		return nil, fmt.Errorf("token does not carry the admin role")
	}

	if s.redisClient != nil {
		exists, err := s.redisClient.Exists(context.Background(), sessionKey(claims.ID)).Result()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to check session in Redis")
			// Continue validation even if Redis is down
		} else if exists == 0 {
			return nil, fmt.Errorf("session not found or revoked")
		}
	}

	return claims, nil
}

// RevokeToken ends the session of the token with the given id.
func (s *AuthService) RevokeToken(tokenID string) error {
	if s.redisClient == nil {
		return fmt.Errorf("token revocation requires redis")
	}
	if err := s.redisClient.Del(context.Background(), sessionKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func sessionKey(tokenID string) string {
	return "admin_session:" + tokenID
}
