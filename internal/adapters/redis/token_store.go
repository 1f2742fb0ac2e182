package redis

// Package redis provides Redis-based adapters for the ledger console.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/ledger-console/internal/ports"
)

// DefaultTokenPrefix namespaces persisted console tokens.
const DefaultTokenPrefix = "console:token:"

var _ ports.TokenStore = (*TokenStore)(nil)

// TokenStore persists one session token per console instance.
// Keys expire with the token; Redis TTL is the only expiry mechanism.
type TokenStore struct {
	client redis.UniversalClient
	prefix string
}

// NewTokenStore creates a Redis-based token store.
func NewTokenStore(client redis.UniversalClient) *TokenStore {
	return NewTokenStoreWithPrefix(client, DefaultTokenPrefix)
}

// NewTokenStoreWithPrefix creates a Redis token store with a custom key prefix.
func NewTokenStoreWithPrefix(client redis.UniversalClient, prefix string) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: prefix,
	}
}

func (s *TokenStore) Load(ctx context.Context, consoleID string) (string, error) {
	if consoleID == "" {
		return "", ports.ErrTokenNotFound
	}

	token, err := s.client.Get(ctx, s.prefix+consoleID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ports.ErrTokenNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return token, nil
}

func (s *TokenStore) Save(ctx context.Context, consoleID, token string, ttl time.Duration) error {
	if consoleID == "" {
		return errors.New("console ID cannot be empty")
	}
	if token == "" {
		return errors.New("token cannot be empty")
	}
	if ttl <= 0 {
		// Token is already expired, don't save it
		return errors.New("token is expired")
	}

	if err := s.client.Set(ctx, s.prefix+consoleID, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *TokenStore) Delete(ctx context.Context, consoleID string) error {
	if consoleID == "" {
		return nil // Nothing to delete
	}

	if err := s.client.Del(ctx, s.prefix+consoleID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// PersistedToken describes a stored token without exposing its value.
type PersistedToken struct {
	ConsoleID string
	TTL       time.Duration
}

// List scans persisted tokens. It is meant for operator tooling and walks the
// keyspace with SCAN rather than KEYS.
func (s *TokenStore) List(ctx context.Context, limit int) ([]PersistedToken, error) {
	var (
		out    []PersistedToken
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, key := range keys {
			ttl, err := s.client.TTL(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("redis ttl: %w", err)
			}
			out = append(out, PersistedToken{ConsoleID: strings.TrimPrefix(key, s.prefix), TTL: ttl})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}
