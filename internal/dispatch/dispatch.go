// Package dispatch routes inbound messages to the handler registered for
// their topic, bounding concurrent handler execution with a worker pool and
// optionally serializing same-key messages. Generalized from
// internal/ingest/router.go's string-prefix topic switch to a map-based
// registry over this service's fixed, ENV-prefixed topic set.
package dispatch

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/keylock"
)

// Handler processes one inbound message already stripped of its topic's
// ENV- prefix.
type Handler func(ctx context.Context, topic string, payload []byte) error

// KeyFunc extracts a partition key from a message's payload, used to
// serialize handler invocations sharing that key. Handlers whose
// correctness already depends on internal per-key locking (the SmarTrak and
// APC processors embed their own internal/keylock.Locker) register with a
// nil KeyFunc; simpler handlers that have no such internal lock can opt in.
type KeyFunc func(payload []byte) string

type registration struct {
	handler Handler
	keyFunc KeyFunc
}

// Registry maps an un-prefixed topic name to its registration.
type Registry struct {
	env      string
	handlers map[string]registration
}

// NewRegistry constructs an empty Registry. env is stripped from inbound
// topic names before lookup.
func NewRegistry(env string) *Registry {
	return &Registry{env: env, handlers: make(map[string]registration)}
}

// Register binds topic (un-prefixed) to handler. keyFunc may be nil.
func (r *Registry) Register(topic string, keyFunc KeyFunc, handler Handler) {
	r.handlers[topic] = registration{handler: handler, keyFunc: keyFunc}
}

// stripEnv removes this service's ENV- prefix from an inbound topic name,
// returning the topic unchanged if the prefix is absent.
func (r *Registry) stripEnv(topic string) string {
	prefix := r.env + "-"
	return strings.TrimPrefix(topic, prefix)
}

// lookup resolves the handler registered for fullTopic, if any.
func (r *Registry) lookup(fullTopic string) (string, registration, bool) {
	topic := r.stripEnv(fullTopic)
	reg, ok := r.handlers[topic]
	return topic, reg, ok
}

// job is one routed unit of work submitted to a Dispatcher's worker pool.
type job struct {
	ctx     context.Context
	topic   string
	reg     registration
	payload []byte
}

// Dispatcher runs a Registry's handlers through a bounded worker pool,
// serializing jobs that share a key via a shared key-locker.
type Dispatcher struct {
	registry *Registry
	locks    *keylock.Locker
	log      zerolog.Logger
	jobs     chan job
}

// New starts a Dispatcher with the given worker concurrency (clamped to at
// least 1).
func New(registry *Registry, locks *keylock.Locker, concurrency int, log zerolog.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	d := &Dispatcher{
		registry: registry,
		locks:    locks,
		log:      log,
		jobs:     make(chan job, concurrency*4),
	}
	for i := 0; i < concurrency; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	for j := range d.jobs {
		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	if j.reg.keyFunc != nil {
		key := j.reg.keyFunc(j.payload)
		if key != "" {
			guard := d.locks.Lock(key)
			defer guard.Release()
		}
	}

	if err := j.reg.handler(j.ctx, j.topic, j.payload); err != nil {
		d.log.Error().Err(err).Str("topic", j.topic).Msg("handler failed")
	}
}

// Dispatch routes fullTopic's payload to its registered handler on the
// worker pool. It returns false without enqueuing anything if no handler is
// registered for the topic (an ordinary outcome: the broker subscription is
// necessarily broader than any one handler's interest).
func (d *Dispatcher) Dispatch(ctx context.Context, fullTopic string, payload []byte) bool {
	topic, reg, ok := d.registry.lookup(fullTopic)
	if !ok {
		return false
	}

	select {
	case d.jobs <- job{ctx: ctx, topic: topic, reg: reg, payload: payload}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close stops accepting new jobs; workers finish draining the buffered
// queue and exit once it is closed and empty.
func (d *Dispatcher) Close() {
	close(d.jobs)
}

// QueueDepth reports the number of jobs currently buffered, for the metrics
// collector's scrape-time gauge.
func (d *Dispatcher) QueueDepth() int {
	return len(d.jobs)
}
