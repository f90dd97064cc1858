package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hawx.me/code/countdown-auth/internal/logger"
	"hawx.me/code/countdown-auth/internal/random"
)

const redisPendingPrefix = "pending:"

// RedisPendingStore keeps pending logins in Redis so that a login started on one
// instance can finish on another. Redis expires the keys itself, so there is
// nothing to sweep.
type RedisPendingStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	newKey func() (string, error)
}

// NewRedisPendingStore creates a store using client. A zero ttl uses
// PendingTTL.
func NewRedisPendingStore(client *redis.Client, ttl time.Duration) *RedisPendingStore {
	if ttl <= 0 {
		ttl = PendingTTL
	}

	return &RedisPendingStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		newKey: random.Generator(pendingKeyLen),
	}
}

// Store records the token and secret under a newly generated key, which is
// returned. SET NX means an existing key is never overwritten.
func (s *RedisPendingStore) Store(ctx context.Context, token, secret string) (string, error) {
	now := s.now()
	value, err := json.Marshal(Pending{
		Token:     token,
		Secret:    secret,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal pending login: %w", err)
	}

	for {
		key, err := s.newKey()
		if err != nil {
			return "", err
		}

		ok, err := s.client.SetNX(ctx, redisPendingPrefix+key, value, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("failed to save pending login: %w", err)
		}
		if ok {
			return key, nil
		}
	}
}

// Retrieve returns the entry for key without consuming it. An expired entry is
// deleted as soon as it is seen.
func (s *RedisPendingStore) Retrieve(ctx context.Context, key string) (Pending, error) {
	raw, err := s.client.Get(ctx, redisPendingPrefix+key).Result()
	if err != nil {
		return Pending{}, s.wrapErr(err)
	}

	pending, err := s.decode(raw)
	if err != nil {
		return Pending{}, err
	}
	if pending.Expired(s.now()) {
		if err := s.client.Del(ctx, redisPendingPrefix+key).Err(); err != nil {
			logger.Debug("data/redis could not delete expired login", zap.Error(err))
		}
		return Pending{}, ErrTokenNotFound
	}

	return pending, nil
}

// Take returns the entry for key and removes it in the same step. GETDEL means
// two instances handling the same callback cannot both consume the entry.
func (s *RedisPendingStore) Take(ctx context.Context, key string) (Pending, error) {
	raw, err := s.client.GetDel(ctx, redisPendingPrefix+key).Result()
	if err != nil {
		return Pending{}, s.wrapErr(err)
	}

	pending, err := s.decode(raw)
	if err != nil {
		return Pending{}, err
	}
	if pending.Expired(s.now()) {
		return Pending{}, ErrTokenNotFound
	}

	return pending, nil
}

// Remove deletes the entry for key, if there is one.
func (s *RedisPendingStore) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisPendingPrefix+key).Err()
}

func (s *RedisPendingStore) decode(raw string) (Pending, error) {
	var pending Pending
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return Pending{}, fmt.Errorf("failed to unmarshal pending login: %w", err)
	}

	return pending, nil
}

func (s *RedisPendingStore) wrapErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrTokenNotFound
	}

	return fmt.Errorf("failed to get pending login: %w", err)
}
