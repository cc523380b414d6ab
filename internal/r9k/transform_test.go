package r9k_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/clock"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/r9k"
)

type fakeStops struct {
	info *domain.StopInfo
}

func (f *fakeStops) StopByCode(_ context.Context, _ string) (*domain.StopInfo, error) {
	return f.info, nil
}

type fakeAllocations struct {
	trains []string
}

func (f *fakeAllocations) AllocatedTrains(_ context.Context, _ string) ([]string, error) {
	return f.trains, nil
}

type fakePublisher struct {
	published []publishedMessage
}

type publishedMessage struct {
	topic, key string
	payload    []byte
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	f.published = append(f.published, publishedMessage{topic: topic, key: key, payload: payload})
	return nil
}

func TestEventsSkipsIrrelevantChangeType(t *testing.T) {
	clk := clock.Fixed{At: time.Now()}
	tr := r9k.New(&fakeStops{}, &fakeAllocations{}, clk, zerolog.Nop())

	update := r9k.TrainUpdate{Changes: []r9k.Change{{Type: r9k.PlatformChange, Station: 0}}}
	events, err := tr.Events(context.Background(), update)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none (irrelevant change type)", events)
	}
}

func TestEventsSkipsIrrelevantStation(t *testing.T) {
	clk := clock.Fixed{At: time.Now()}
	tr := r9k.New(&fakeStops{info: nil}, &fakeAllocations{}, clk, zerolog.Nop())

	update := r9k.TrainUpdate{Changes: []r9k.Change{{Type: r9k.ArrivedAtStation, Station: 5}}}
	events, err := tr.Events(context.Background(), update)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none (irrelevant station)", events)
	}
}

func TestEventsBuildsOnePerAllocatedTrain(t *testing.T) {
	clk := clock.Fixed{At: time.Now()}
	stop := &domain.StopInfo{StopCode: "133", StopLat: -36.84448, StopLon: 174.76915}
	tr := r9k.New(&fakeStops{info: stop}, &fakeAllocations{trains: []string{"AM 01", "AM 02"}}, clk, zerolog.Nop())

	update := r9k.TrainUpdate{
		EvenTrainID: "1234",
		Changes:     []r9k.Change{{Type: r9k.ArrivedAtStation, Station: 0}},
	}
	events, err := tr.Events(context.Background(), update)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %+v, want two", events)
	}
	if events[0].RemoteData.ExternalID != "AM01" {
		t.Fatalf("ExternalID = %q, want AM01 (spaces stripped)", events[0].RemoteData.ExternalID)
	}
	if *events[0].LocationData.Latitude != stop.StopLat {
		t.Fatalf("Latitude = %v, want %v", *events[0].LocationData.Latitude, stop.StopLat)
	}
}

func TestPublishDoublePublishesWithTimestamps(t *testing.T) {
	clk := clock.Fixed{At: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	tr := r9k.New(&fakeStops{}, &fakeAllocations{}, clk, zerolog.Nop()).WithPublishGap(time.Millisecond)
	pub := &fakePublisher{}

	events := []domain.SmarTrakMessage{{RemoteData: &domain.RemoteData{ExternalID: "AM01"}}}

	if err := tr.Publish(context.Background(), events, pub); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(pub.published) != 2 {
		t.Fatalf("published = %d messages, want 2 (double-publish)", len(pub.published))
	}
	for _, msg := range pub.published {
		if msg.topic != r9k.OutboundTopic {
			t.Fatalf("topic = %q, want %q", msg.topic, r9k.OutboundTopic)
		}
		if msg.key != "AM01" {
			t.Fatalf("key = %q, want AM01", msg.key)
		}
		var decoded domain.SmarTrakMessage
		if err := json.Unmarshal(msg.payload, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if decoded.MessageData.Timestamp == "" {
			t.Fatal("want message timestamp stamped at publish time")
		}
	}
}

func TestPublishNoOpWithoutEvents(t *testing.T) {
	clk := clock.Fixed{At: time.Now()}
	tr := r9k.New(&fakeStops{}, &fakeAllocations{}, clk, zerolog.Nop())
	pub := &fakePublisher{}

	if err := tr.Publish(context.Background(), nil, pub); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatalf("published = %+v, want none", pub.published)
	}
}
