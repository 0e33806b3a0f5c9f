package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrTokenMiss indicates no usable token exists in the store.
	ErrTokenMiss = errors.New("token not found")

	// ErrInvalidEntry indicates the stored token entry is corrupted.
	ErrInvalidEntry = errors.New("invalid token entry")
)

// tokenKeyPrefix namespaces token entries in Redis.
const tokenKeyPrefix = "bulkquery:token:"

// TokenEntry is an issued bearer token shared across processes.
type TokenEntry struct {
	// AccessToken is the bearer credential.
	AccessToken string `json:"access_token"`

	// InstanceURL is the API host the token is valid against.
	InstanceURL string `json:"instance_url"`

	// IssuedAt is when the token was obtained.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is when the token is assumed invalid.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the token is past its assumed validity.
func (e *TokenEntry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TTL returns the remaining validity. Returns 0 if already expired.
func (e *TokenEntry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// TokenStore shares issued tokens across client instances via Redis.
type TokenStore struct {
	redis *redis.Client
}

// NewTokenStore creates a token store with Redis backend.
func NewTokenStore(redisClient *redis.Client) *TokenStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &TokenStore{
		redis: redisClient,
	}
}

// Get retrieves a token entry by credential key.
// Returns ErrTokenMiss if no entry exists or the stored token has expired.
func (s *TokenStore) Get(ctx context.Context, key string) (*TokenEntry, error) {
	data, err := s.redis.Get(ctx, tokenKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			tokenCacheMisses.Inc()
			return nil, ErrTokenMiss
		}
		tokenCacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry TokenEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		tokenCacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = s.Delete(ctx, key)
		tokenCacheMisses.Inc()
		return nil, ErrTokenMiss
	}

	tokenCacheHits.Inc()
	return &entry, nil
}

// Set stores a token entry with TTL derived from its expiry.
// Redis drops the entry automatically once it expires.
func (s *TokenStore) Set(ctx context.Context, key string, entry *TokenEntry) error {
	if entry == nil {
		return fmt.Errorf("token entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't store
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		tokenCacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal token entry: %w", err)
	}

	if err := s.redis.Set(ctx, tokenKeyPrefix+key, data, ttl).Err(); err != nil {
		tokenCacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a token entry.
func (s *TokenStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, tokenKeyPrefix+key).Err(); err != nil {
		tokenCacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
