package messaging_test

import (
	"encoding/json"
	"testing"

	"github.com/aklnz/realtime-transit-engine/internal/messaging"
)

func TestDecodeEnvelopeRoundTrips(t *testing.T) {
	inner, err := json.Marshal(map[string]string{"vehicleId": "veh-1"})
	if err != nil {
		t.Fatalf("marshal inner: %v", err)
	}

	wrapped, err := json.Marshal(struct {
		Key     string          `json:"key"`
		Payload json.RawMessage `json:"payload"`
	}{Key: "veh-1", Payload: inner})
	if err != nil {
		t.Fatalf("marshal wrapped: %v", err)
	}

	key, payload, err := messaging.DecodeEnvelope(wrapped)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if key != "veh-1" {
		t.Fatalf("key = %q, want veh-1", key)
	}
	if string(payload) != string(inner) {
		t.Fatalf("payload = %s, want %s", payload, inner)
	}
}

func TestPrefixTopicsAddsEnvOnce(t *testing.T) {
	got := messaging.PrefixTopics("prod", "realtime-dilax-apc.v2", "prod-realtime-r9k.v1")
	want := []string{"prod-realtime-dilax-apc.v2", "prod-realtime-r9k.v1"}

	if len(got) != len(want) {
		t.Fatalf("got = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
