package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// TokenPrefix is the prefix for admin session tokens
	TokenPrefix = "mkt_"

	// TokenTTL is the admin session lifetime
	TokenTTL = 12 * time.Hour

	// TokenRedisKeyPrefix is the Redis key prefix for sessions
	TokenRedisKeyPrefix = "market:admin:token:"
)

// TokenService issues and validates opaque admin session tokens backed by
// Redis. When Redis is unavailable the API falls back to login-key-only
// admin auth and this service is simply not constructed.
type TokenService struct {
	redis *redis.Client
}

// NewTokenService creates a new token service.
func NewTokenService(redisClient *redis.Client) *TokenService {
	return &TokenService{redis: redisClient}
}

// GenerateToken mints a new admin session token and stores it in Redis
// with a TTL.
func (s *TokenService) GenerateToken(ctx context.Context) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := TokenPrefix + hex.EncodeToString(tokenBytes)

	key := TokenRedisKeyPrefix + token
	if err := s.redis.Set(ctx, key, time.Now().Unix(), TokenTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// ValidateToken checks that a token exists and has not expired.
func (s *TokenService) ValidateToken(ctx context.Context, token string) error {
	if len(token) < len(TokenPrefix) || token[:len(TokenPrefix)] != TokenPrefix {
		return fmt.Errorf("invalid token format")
	}

	err := s.redis.Get(ctx, TokenRedisKeyPrefix+token).Err()
	if err == redis.Nil {
		return fmt.Errorf("token not found or expired")
	}
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	return nil
}

// RevokeToken deletes an admin session.
func (s *TokenService) RevokeToken(ctx context.Context, token string) error {
	return s.redis.Del(ctx, TokenRedisKeyPrefix+token).Err()
}
