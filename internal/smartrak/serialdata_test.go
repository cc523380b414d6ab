package smartrak_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/clock"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/keylock"
	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
	"github.com/aklnz/realtime-transit-engine/internal/smartrak"
)

type fakeNearestTripResolver struct {
	trip *domain.TripInstance
	err  error
}

func (f *fakeNearestTripResolver) NearestTripInstance(_ context.Context, _ string, _ int64) (*domain.TripInstance, error) {
	return f.trip, f.err
}

func serialEvent(timestamp string, decoded *domain.DecodedSerialData) domain.SmarTrakMessage {
	return domain.SmarTrakMessage{
		EventType:   domain.SmarTrakEventSerialData,
		MessageData: domain.MessageData{Timestamp: timestamp},
		RemoteData:  &domain.RemoteData{ExternalID: "veh-1"},
		SerialData:  domain.SerialData{DecodedSerialData: decoded},
	}
}

func TestSerialDataPersistsResolvedTrip(t *testing.T) {
	store := kvstore.NewFake(clock.Fixed{At: time.Now()})
	trip := &domain.TripInstance{TripID: "trip-1", ServiceDate: "20260101", StartTime: "08:00:00"}
	p := smartrak.NewSerialDataProcessor(store, keylock.New(), &fakeNearestTripResolver{trip: trip}, zerolog.Nop(), time.Hour)

	event := serialEvent(time.Now().Format(time.RFC3339), &domain.DecodedSerialData{TripID: "trip-1"})
	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	raw, err := store.Get(context.Background(), "smartrakGtfs:trip:vehicle:veh-1")
	if err != nil || raw == nil {
		t.Fatalf("expected trip binding persisted, got raw=%s err=%v", raw, err)
	}
	signOn, err := store.Get(context.Background(), "smartrakGtfs:vehicle:signOn:veh-1")
	if err != nil || signOn == nil {
		t.Fatalf("expected sign-on recorded, got raw=%s err=%v", signOn, err)
	}
}

func TestSerialDataClearsBindingOnEmptyTripIdentifier(t *testing.T) {
	store := kvstore.NewFake(clock.Fixed{At: time.Now()})
	ctx := context.Background()
	store.Set(ctx, "smartrakGtfs:trip:vehicle:veh-1", []byte(`{"tripId":"trip-1"}`), time.Hour)
	store.Set(ctx, "smartrakGtfs:vehicle:signOn:veh-1", []byte("1"), time.Hour)

	p := smartrak.NewSerialDataProcessor(store, keylock.New(), &fakeNearestTripResolver{}, zerolog.Nop(), time.Hour)
	event := serialEvent(time.Now().Format(time.RFC3339), &domain.DecodedSerialData{})

	if err := p.Process(ctx, event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	raw, _ := store.Get(ctx, "smartrakGtfs:trip:vehicle:veh-1")
	if raw != nil {
		t.Fatalf("trip binding = %s, want cleared (empty trip identifier)", raw)
	}
	signOn, _ := store.Get(ctx, "smartrakGtfs:vehicle:signOn:veh-1")
	if signOn != nil {
		t.Fatalf("sign-on = %s, want cleared", signOn)
	}
}

func TestSerialDataNoOpWhenBindingAlreadyMatches(t *testing.T) {
	store := kvstore.NewFake(clock.Fixed{At: time.Now()})
	ctx := context.Background()
	store.Set(ctx, "smartrakGtfs:trip:vehicle:veh-1", []byte(`{"tripId":"trip-1"}`), time.Hour)

	resolver := &fakeNearestTripResolver{trip: &domain.TripInstance{TripID: "trip-2"}}
	p := smartrak.NewSerialDataProcessor(store, keylock.New(), resolver, zerolog.Nop(), time.Hour)
	event := serialEvent(time.Now().Format(time.RFC3339), &domain.DecodedSerialData{TripID: "trip-1"})

	if err := p.Process(ctx, event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	raw, _ := store.Get(ctx, "smartrakGtfs:trip:vehicle:veh-1")
	if string(raw) != `{"tripId":"trip-1"}` {
		t.Fatalf("trip binding = %s, want unchanged (already matches)", raw)
	}
}

func TestSerialDataClearsBindingOnResolutionFailure(t *testing.T) {
	store := kvstore.NewFake(clock.Fixed{At: time.Now()})
	ctx := context.Background()
	store.Set(ctx, "smartrakGtfs:trip:vehicle:veh-1", []byte(`{"tripId":"trip-old"}`), time.Hour)
	store.Set(ctx, "smartrakGtfs:vehicle:signOn:veh-1", []byte("1"), time.Hour)

	resolver := &fakeNearestTripResolver{trip: &domain.TripInstance{Error: true}}
	p := smartrak.NewSerialDataProcessor(store, keylock.New(), resolver, zerolog.Nop(), time.Hour)
	event := serialEvent(time.Now().Format(time.RFC3339), &domain.DecodedSerialData{TripID: "trip-new"})

	if err := p.Process(ctx, event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	raw, _ := store.Get(ctx, "smartrakGtfs:trip:vehicle:veh-1")
	if raw != nil {
		t.Fatalf("trip binding = %s, want cleared (resolution error marker)", raw)
	}
}

func TestSerialDataRejectsFutureDatedEvent(t *testing.T) {
	store := kvstore.NewFake(clock.Fixed{At: time.Now()})
	resolver := &fakeNearestTripResolver{trip: &domain.TripInstance{TripID: "trip-1"}}
	p := smartrak.NewSerialDataProcessor(store, keylock.New(), resolver, zerolog.Nop(), 900*time.Second)

	future := time.Now().Add(2000 * time.Second).Format(time.RFC3339)
	event := serialEvent(future, &domain.DecodedSerialData{TripID: "trip-1"})

	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	raw, _ := store.Get(context.Background(), "smartrakGtfs:trip:vehicle:veh-1")
	if raw != nil {
		t.Fatalf("trip binding = %s, want untouched (future-dated event rejected)", raw)
	}
}

func TestSerialDataRejectsStaleTimestamp(t *testing.T) {
	store := kvstore.NewFake(clock.Fixed{At: time.Now()})
	resolver := &fakeNearestTripResolver{trip: &domain.TripInstance{TripID: "trip-1"}}
	p := smartrak.NewSerialDataProcessor(store, keylock.New(), resolver, zerolog.Nop(), time.Hour)

	first := time.Now().Format(time.RFC3339)
	event := serialEvent(first, &domain.DecodedSerialData{TripID: "trip-1"})
	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("first process: %v", err)
	}

	// Replay an older (or equal) timestamp: must be ignored entirely, even
	// though the trip id differs.
	resolver.trip = &domain.TripInstance{TripID: "trip-2"}
	staleEvent := serialEvent(first, &domain.DecodedSerialData{TripID: "trip-2"})
	if err := p.Process(context.Background(), staleEvent); err != nil {
		t.Fatalf("stale process: %v", err)
	}

	raw, _ := store.Get(context.Background(), "smartrakGtfs:trip:vehicle:veh-1")
	var got domain.TripInstance
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TripID != "trip-1" {
		t.Fatalf("trip id = %q, want trip-1 (stale replay ignored)", got.TripID)
	}
}
