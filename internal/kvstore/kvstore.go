// Package kvstore provides the byte-addressable keyed storage façade
// described in SPEC_FULL.md §4.1: per-key TTL envelopes and a small
// "expiring set" primitive, backed by Redis.
package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aklnz/realtime-transit-engine/internal/clock"
)

// Store is the KV façade every stateful component depends on. Defined as an
// interface here (rather than only in consumer packages) because every
// consumer needs the identical surface and a single fake satisfies all of
// them in tests.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, error)
	Delete(ctx context.Context, key string) error
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	SetExpiry(ctx context.Context, key string, ttl time.Duration) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

type ttlEnvelope struct {
	ExpiresAt int64  `json:"expires_at"`
	Value     []byte `json:"value"`
}

type setEnvelope struct {
	ExpiresAt *int64   `json:"expires_at,omitempty"`
	Members   []string `json:"members"`
}

// farFuture stands in for "no expiry" since every envelope carries a
// deadline; set() without a TTL keeps the value alive effectively forever.
const farFuture = int64(1 << 62)

// Redis implements Store over a *redis.Client, with the TTL envelope
// applied at the application layer rather than relying on Redis's native
// EXPIRE, so that legacy unwrapped payloads remain readable and set()
// can return the prior decoded value as the spec requires.
type Redis struct {
	rdb   *redis.Client
	clock clock.Clock
}

func NewRedis(rdb *redis.Client, clk clock.Clock) *Redis {
	return &Redis{rdb: rdb, clock: clk}
}

func (s *Redis) now() int64 { return s.clock.Now().Unix() }

// Get returns nil, nil if the key is absent or its envelope has expired; an
// expired key is deleted as a side effect. Legacy unwrapped payloads (not a
// ttlEnvelope) are returned as-is.
func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var env ttlEnvelope
	if jerr := json.Unmarshal(raw, &env); jerr != nil || env.Value == nil {
		// Not our envelope shape: treat as a legacy unwrapped payload.
		return raw, nil
	}

	if env.ExpiresAt <= s.now() {
		if derr := s.rdb.Del(ctx, key).Err(); derr != nil {
			return nil, derr
		}
		return nil, nil
	}
	return env.Value, nil
}

// Set wraps value in a TTL envelope (when ttl > 0) and returns the
// previously-decoded value, used only for concurrency observation by
// callers (internal/apc logs a warning when it diverges from an
// in-flight-observed value).
func (s *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, error) {
	prev, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	expiresAt := farFuture
	if ttl > 0 {
		expiresAt = s.now() + int64(ttl/time.Second)
	}
	env := ttlEnvelope{ExpiresAt: expiresAt, Value: value}
	bytes, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, key, bytes, 0).Err(); err != nil {
		return nil, err
	}
	return prev, nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *Redis) loadSet(ctx context.Context, key string) (setEnvelope, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return setEnvelope{}, nil
	}
	if err != nil {
		return setEnvelope{}, err
	}

	var set setEnvelope
	if jerr := json.Unmarshal(raw, &set); jerr != nil {
		return setEnvelope{}, nil
	}
	if set.ExpiresAt != nil && *set.ExpiresAt <= s.now() {
		if derr := s.rdb.Del(ctx, key).Err(); derr != nil {
			return setEnvelope{}, derr
		}
		return setEnvelope{}, nil
	}
	return set, nil
}

func (s *Redis) storeSet(ctx context.Context, key string, set setEnvelope) error {
	bytes, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, bytes, 0).Err()
}

// AddToSet appends member to the set if not already present, preserving the
// envelope's existing expiry (or starting a fresh one at ttl if the set did
// not exist).
func (s *Redis) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	set, err := s.loadSet(ctx, key)
	if err != nil {
		return err
	}
	if set.ExpiresAt == nil {
		deadline := s.now() + int64(ttl/time.Second)
		set.ExpiresAt = &deadline
	}
	for _, m := range set.Members {
		if m == member {
			return nil
		}
	}
	set.Members = append(set.Members, member)
	return s.storeSet(ctx, key, set)
}

// SetExpiry refreshes the set envelope's deadline without altering members.
func (s *Redis) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	set, err := s.loadSet(ctx, key)
	if err != nil {
		return err
	}
	deadline := s.now() + int64(ttl/time.Second)
	set.ExpiresAt = &deadline
	return s.storeSet(ctx, key, set)
}

// SetMembers returns the current (non-expired) member list.
func (s *Redis) SetMembers(ctx context.Context, key string) ([]string, error) {
	set, err := s.loadSet(ctx, key)
	if err != nil {
		return nil, err
	}
	return set.Members, nil
}
