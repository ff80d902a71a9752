// Package redis keeps short-lived payment sessions and rate limit counters
// in Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"

	"github.com/xenking/hawker-checkout/internal/domain/payment"
)

const sessionKeyPrefix = "hawker:payment:session:"

var _ payment.SessionStore = (*SessionStore)(nil)

// NewClient connects to the Redis instance at url and verifies it responds.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// SessionStore maps order ids to the retrieval reference of their QR.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore returns a SessionStore backed by client.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

// Save stores the retrieval reference issued for orderID, replacing any
// previous one.
func (s *SessionStore) Save(ctx context.Context, orderID, retrievalRef string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(orderID), retrievalRef, ttl).Err(); err != nil {
		return errors.Wrapf(err, "set session %s", orderID)
	}
	return nil
}

// Lookup returns the retrieval reference issued for orderID.
func (s *SessionStore) Lookup(ctx context.Context, orderID string) (string, error) {
	ref, err := s.client.Get(ctx, sessionKey(orderID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", payment.ErrSessionNotFound
		}
		return "", errors.Wrapf(err, "get session %s", orderID)
	}
	return ref, nil
}

// Delete forgets the session of orderID.
func (s *SessionStore) Delete(ctx context.Context, orderID string) error {
	if err := s.client.Del(ctx, sessionKey(orderID)).Err(); err != nil {
		return errors.Wrapf(err, "delete session %s", orderID)
	}
	return nil
}

func sessionKey(orderID string) string {
	return sessionKeyPrefix + orderID
}
