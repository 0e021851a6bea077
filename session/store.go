package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cookieauth/cookieauth/internal"
	"github.com/cookieauth/cookieauth/ticket"
)

// ErrKeyNotFound is returned by Retrieve and Renew when no ticket exists
// under the given key. The engine treats it as "not logged in", never as a
// fault.
var ErrKeyNotFound = errors.New("session key not found")

// ErrRedisUnavailable wraps transport-level Redis failures so callers can
// distinguish an unreachable backend from an ordinary miss.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minEntryTTL = time.Second

// Store is the session store capability required by the engine when cookie
// payloads must stay opaque: Store mints a key for a new ticket, Retrieve
// resolves a key back to its ticket, Renew replaces the ticket under an
// existing key, and Remove destroys an entry.
//
// All four may block; implementations must honor ctx cancellation and be
// safe for concurrent use across requests.
type Store interface {
	Store(ctx context.Context, t *ticket.Ticket) (string, error)
	Retrieve(ctx context.Context, key string) (*ticket.Ticket, error)
	Renew(ctx context.Context, key string, t *ticket.Ticket) error
	Remove(ctx context.Context, key string) error
}

// RedisStore is a Redis-backed [Store] holding binary-encoded tickets. Entry
// TTL follows the ticket's ExpiresUtc so abandoned sessions age out of Redis
// on their own; tickets without an expiry use the configured fallback TTL.
type RedisStore struct {
	redis       redis.UniversalClient
	prefix      string
	fallbackTTL time.Duration
	now         func() time.Time
}

// NewRedisStore creates a [RedisStore]. prefix namespaces the Redis keys;
// fallbackTTL bounds the lifetime of entries whose ticket carries no expiry.
func NewRedisStore(client redis.UniversalClient, prefix string, fallbackTTL time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ctk"
	}
	if fallbackTTL <= 0 {
		fallbackTTL = 14 * 24 * time.Hour
	}
	return &RedisStore{
		redis:       client,
		prefix:      prefix,
		fallbackTTL: fallbackTTL,
		now:         time.Now,
	}
}

func (s *RedisStore) key(sessionKey string) string {
	return s.prefix + ":" + sessionKey
}

func (s *RedisStore) entryTTL(t *ticket.Ticket) time.Duration {
	if t.Properties != nil && t.Properties.ExpiresUtc != nil {
		ttl := t.Properties.ExpiresUtc.Sub(s.now())
		if ttl < minEntryTTL {
			return minEntryTTL
		}
		return ttl
	}
	return s.fallbackTTL
}

// Store persists the ticket under a freshly minted key.
//
//	Performance: 1 Redis SET.
func (s *RedisStore) Store(ctx context.Context, t *ticket.Ticket) (string, error) {
	data, err := ticket.Encode(t)
	if err != nil {
		return "", err
	}

	sessionKey, err := internal.NewSessionKey()
	if err != nil {
		return "", err
	}

	if err := s.redis.Set(ctx, s.key(sessionKey), data, s.entryTTL(t)).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sessionKey, nil
}

// Retrieve resolves a key back to its ticket. A missing or expired entry
// yields [ErrKeyNotFound].
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Retrieve(ctx context.Context, key string) (*ticket.Ticket, error) {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	t, err := ticket.Decode(data)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Renew replaces the ticket under an existing key and realigns the entry TTL
// with the renewed expiry. Renewing a key that no longer exists yields
// [ErrKeyNotFound]; two concurrent renewals of the same key resolve
// last-writer-wins.
//
//	Performance: 1 Redis SET XX.
func (s *RedisStore) Renew(ctx context.Context, key string, t *ticket.Ticket) error {
	data, err := ticket.Encode(t)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetXX(ctx, s.key(key), data, s.entryTTL(t)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return ErrKeyNotFound
	}
	return nil
}

// Remove destroys the entry. Removing a missing key is not an error.
//
//	Performance: 1 Redis DEL.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
