package adapters

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
)

// resultCache wraps a kvstore.Store with the success/miss TTL split used by
// the Fleet adapter: successful lookups are cached
// longer than miss/failure results, so a transient upstream outage doesn't
// pin a "not found" verdict for as long as a genuine record would be cached.
type resultCache struct {
	store      kvstore.Store
	successTTL time.Duration
	missTTL    time.Duration
}

type cacheEnvelope struct {
	Found bool            `json:"found"`
	Value json.RawMessage `json:"value,omitempty"`
}

// lookup reports (hit, found, error). hit is false when nothing cached; when
// hit is true, found distinguishes a cached record (decoded into out) from a
// cached miss sentinel.
func (c *resultCache) lookup(ctx context.Context, key string, out any) (hit, found bool, err error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return false, false, err
	}
	if raw == nil {
		return false, false, nil
	}
	var env cacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, false, nil
	}
	if !env.Found {
		return true, false, nil
	}
	if err := json.Unmarshal(env.Value, out); err != nil {
		return false, false, nil
	}
	return true, true, nil
}

func (c *resultCache) storeFound(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	env, err := json.Marshal(cacheEnvelope{Found: true, Value: encoded})
	if err != nil {
		return err
	}
	_, err = c.store.Set(ctx, key, env, c.successTTL)
	return err
}

func (c *resultCache) storeMiss(ctx context.Context, key string) error {
	env, err := json.Marshal(cacheEnvelope{Found: false})
	if err != nil {
		return err
	}
	_, err = c.store.Set(ctx, key, env, c.missTTL)
	return err
}
