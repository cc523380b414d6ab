package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/dispatch"
	"github.com/aklnz/realtime-transit-engine/internal/keylock"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	registry := dispatch.NewRegistry("dev")
	var got string
	done := make(chan struct{})
	registry.Register("realtime-dilax-apc.v2", nil, func(_ context.Context, topic string, payload []byte) error {
		got = topic + ":" + string(payload)
		close(done)
		return nil
	})

	d := dispatch.New(registry, keylock.New(), 2, zerolog.Nop())
	defer d.Close()

	ok := d.Dispatch(context.Background(), "dev-realtime-dilax-apc.v2", []byte("payload"))
	if !ok {
		t.Fatal("Dispatch = false, want true (handler registered)")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked within 1s")
	}
	if got != "realtime-dilax-apc.v2:payload" {
		t.Fatalf("got = %q, want the un-prefixed topic and payload", got)
	}
}

func TestDispatchReturnsFalseForUnregisteredTopic(t *testing.T) {
	registry := dispatch.NewRegistry("dev")
	d := dispatch.New(registry, keylock.New(), 1, zerolog.Nop())
	defer d.Close()

	if ok := d.Dispatch(context.Background(), "dev-unknown-topic", nil); ok {
		t.Fatal("Dispatch = true, want false for unregistered topic")
	}
}

func TestDispatchSerializesSameKey(t *testing.T) {
	registry := dispatch.NewRegistry("dev")

	var active int32
	var maxObservedConcurrency int32
	var wg sync.WaitGroup
	wg.Add(2)

	registry.Register("realtime-caf-avl.v1", func(payload []byte) string { return string(payload) },
		func(_ context.Context, _ string, _ []byte) error {
			defer wg.Done()
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&maxObservedConcurrency) {
				atomic.StoreInt32(&maxObservedConcurrency, n)
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		})

	d := dispatch.New(registry, keylock.New(), 4, zerolog.Nop())
	defer d.Close()

	d.Dispatch(context.Background(), "dev-realtime-caf-avl.v1", []byte("veh-1"))
	d.Dispatch(context.Background(), "dev-realtime-caf-avl.v1", []byte("veh-1"))

	wg.Wait()
	if maxObservedConcurrency > 1 {
		t.Fatalf("max observed concurrency = %d, want 1 (same key serialized)", maxObservedConcurrency)
	}
}
