package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dashportal/internal/models"
)

// SessionStore remembers signed-out session ids until their tokens expire.
type SessionStore interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// DBSessionStore keeps revocations in the revoked_sessions table.
type DBSessionStore struct {
	DB *gorm.DB
}

func (s *DBSessionStore) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	gdb := s.DB.WithContext(ctx)
	// Expired entries can no longer match a valid token.
	if err := gdb.Where("expires_at < ?", time.Now()).Delete(&models.RevokedSession{}).Error; err != nil {
		return err
	}
	return gdb.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RevokedSession{ID: sessionID, ExpiresAt: until}).Error
}

func (s *DBSessionStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.RevokedSession{}).Where("id = ?", sessionID).Count(&n).Error
	return n > 0, err
}

const keyRevokedSession = "dashportal:session:revoked:"

// RedisSessionStore keeps revocations as keys expiring with the token, so
// every API replica sees a sign-out immediately.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// NewRedisSessionStoreFromURL parses redisURL and pings the server.
func NewRedisSessionStoreFromURL(ctx context.Context, redisURL string) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisSessionStore(client), nil
}

func (s *RedisSessionStore) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, keyRevokedSession+sessionID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	err := s.client.Get(ctx, keyRevokedSession+sessionID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return true, nil
}

func (s *RedisSessionStore) Close() error { return s.client.Close() }
