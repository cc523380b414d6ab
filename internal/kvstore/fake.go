package kvstore

import (
	"context"
	"time"

	"github.com/aklnz/realtime-transit-engine/internal/clock"
)

// Fake is an in-memory Store for tests; it reimplements the same TTL/expiry
// semantics as Redis so tests exercise real expiry logic without a network
// dependency.
type Fake struct {
	clock  clock.Clock
	values map[string]ttlEnvelope
	sets   map[string]setEnvelope
}

func NewFake(clk clock.Clock) *Fake {
	return &Fake{clock: clk, values: map[string]ttlEnvelope{}, sets: map[string]setEnvelope{}}
}

func (f *Fake) now() int64 { return f.clock.Now().Unix() }

func (f *Fake) Get(_ context.Context, key string) ([]byte, error) {
	env, ok := f.values[key]
	if !ok {
		return nil, nil
	}
	if env.ExpiresAt <= f.now() {
		delete(f.values, key)
		return nil, nil
	}
	return env.Value, nil
}

func (f *Fake) Set(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, error) {
	prev, err := f.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	expiresAt := farFuture
	if ttl > 0 {
		expiresAt = f.now() + int64(ttl/time.Second)
	}
	f.values[key] = ttlEnvelope{ExpiresAt: expiresAt, Value: value}
	return prev, nil
}

func (f *Fake) Delete(_ context.Context, key string) error {
	delete(f.values, key)
	delete(f.sets, key)
	return nil
}

func (f *Fake) AddToSet(_ context.Context, key, member string, ttl time.Duration) error {
	set := f.sets[key]
	if set.ExpiresAt != nil && *set.ExpiresAt <= f.now() {
		set = setEnvelope{}
	}
	if set.ExpiresAt == nil {
		deadline := f.now() + int64(ttl/time.Second)
		set.ExpiresAt = &deadline
	}
	for _, m := range set.Members {
		if m == member {
			f.sets[key] = set
			return nil
		}
	}
	set.Members = append(set.Members, member)
	f.sets[key] = set
	return nil
}

func (f *Fake) SetExpiry(_ context.Context, key string, ttl time.Duration) error {
	set := f.sets[key]
	deadline := f.now() + int64(ttl/time.Second)
	set.ExpiresAt = &deadline
	f.sets[key] = set
	return nil
}

func (f *Fake) SetMembers(_ context.Context, key string) ([]string, error) {
	set := f.sets[key]
	if set.ExpiresAt != nil && *set.ExpiresAt <= f.now() {
		delete(f.sets, key)
		return nil, nil
	}
	return set.Members, nil
}
