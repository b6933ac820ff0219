package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/mcp-tracker-go/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for the Redis-backed session store. Defaults can be loaded via
// envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=mcp:tracker:sessions:"`
	// TTL is the sliding idle timeout; 0 disables expiry. ENV: SESSIONS_TTL
	TTL time.Duration `env:"SESSIONS_TTL,default=1h"`
}

const maxTouchRetries = 5

type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cl, cfg), nil
}

// NewWithClient wraps an existing client. The store takes ownership and
// closes it on Close.
func NewWithClient(cl redis.UniversalClient, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:tracker:sessions:"
	}
	return &Store{client: cl, keyPrefix: prefix, ttl: max(cfg.TTL, 0)}
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv(ctx context.Context) (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decoding redis store config: %w", err)
	}
	return New(ctx, cfg)
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) sessionKey(sessionID string) string { return s.keyPrefix + "session:" + sessionID }

func (s *Store) CreateSession(ctx context.Context, sess *sessions.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.sessionKey(sess.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return sessions.ErrSessionExists
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*sessions.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessions.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeSession(data)
}

// TouchSession rewrites the record with the new activity timestamp and a
// fresh expiry. Concurrent touches race under WATCH; the loser retries so the
// last writer wins.
func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	key := s.sessionKey(sessionID)
	touch := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return sessions.ErrSessionNotFound
			}
			return fmt.Errorf("redis get: %w", err)
		}
		sess, err := decodeSession(data)
		if err != nil {
			return err
		}
		sess.LastActiveAt = at.UTC()
		data, err = json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for range maxTouchRetries {
		err := s.client.Watch(ctx, touch, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("touch session %s: %w", sessionID, redis.TxFailedErr)
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func decodeSession(data []byte) (*sessions.Session, error) {
	var sess sessions.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}

var _ sessions.Store = (*Store)(nil)
