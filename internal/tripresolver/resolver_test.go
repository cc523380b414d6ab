package tripresolver_test

import (
	"context"
	"testing"
	"time"

	"github.com/aklnz/realtime-transit-engine/internal/clock"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/tripresolver"
)

type fakeFetcher struct {
	byDate map[string][]domain.TripInstance
	calls  []string
}

func (f *fakeFetcher) FetchTrips(_ context.Context, tripID, serviceDate string) ([]domain.TripInstance, error) {
	f.calls = append(f.calls, serviceDate)
	return f.byDate[serviceDate], nil
}

func aucklandClock(t *testing.T, instant string) clock.Fixed {
	t.Helper()
	loc, err := time.LoadLocation("Pacific/Auckland")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	at, err := time.ParseInLocation("2006-01-02T15:04:05", instant, loc)
	if err != nil {
		t.Fatalf("parse instant: %v", err)
	}
	return clock.Fixed{At: at, Loc: loc}
}

func TestTripInstanceExactMatch(t *testing.T) {
	fetcher := &fakeFetcher{byDate: map[string][]domain.TripInstance{
		"20260101": {
			{TripID: "trip-1", StartTime: "08:00:00"},
			{TripID: "trip-1", StartTime: "09:00:00"},
		},
	}}
	r := tripresolver.New(fetcher, aucklandClock(t, "2026-01-01T08:00:00"))

	got, err := r.TripInstance(context.Background(), "trip-1", "20260101", "09:00:00")
	if err != nil {
		t.Fatalf("TripInstance: %v", err)
	}
	if got == nil || got.StartTime != "09:00:00" {
		t.Fatalf("got %+v", got)
	}
}

func TestTripInstanceErrorMarkerPropagates(t *testing.T) {
	fetcher := &fakeFetcher{byDate: map[string][]domain.TripInstance{
		"20260101": {{Error: true}},
	}}
	r := tripresolver.New(fetcher, aucklandClock(t, "2026-01-01T08:00:00"))

	got, err := r.TripInstance(context.Background(), "trip-1", "20260101", "09:00:00")
	if err != nil {
		t.Fatalf("TripInstance: %v", err)
	}
	if got == nil || !got.HasError() {
		t.Fatalf("got %+v, want error marker", got)
	}
}

func TestTripInstanceNoMatchReturnsNil(t *testing.T) {
	fetcher := &fakeFetcher{byDate: map[string][]domain.TripInstance{
		"20260101": {{TripID: "trip-1", StartTime: "08:00:00"}},
	}}
	r := tripresolver.New(fetcher, aucklandClock(t, "2026-01-01T08:00:00"))

	got, err := r.TripInstance(context.Background(), "trip-1", "20260101", "10:00:00")
	if err != nil {
		t.Fatalf("TripInstance: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}

func TestNearestTripInstancePicksClosest(t *testing.T) {
	fetcher := &fakeFetcher{byDate: map[string][]domain.TripInstance{
		"20260101": {
			{TripID: "trip-1", ServiceDate: "20260101", StartTime: "08:00:00"},
			{TripID: "trip-1", ServiceDate: "20260101", StartTime: "08:30:00"},
		},
	}}
	clk := aucklandClock(t, "2026-01-01T08:00:00")
	r := tripresolver.New(fetcher, clk)

	eventTS := clk.At.Add(5 * time.Minute).Unix()
	got, err := r.NearestTripInstance(context.Background(), "trip-1", eventTS)
	if err != nil {
		t.Fatalf("NearestTripInstance: %v", err)
	}
	if got == nil || got.StartTime != "08:00:00" {
		t.Fatalf("got %+v, want the 08:00:00 trip", got)
	}
}

func TestNearestTripInstanceConsultsPreviousDayBeforeFourAM(t *testing.T) {
	fetcher := &fakeFetcher{byDate: map[string][]domain.TripInstance{
		"20260101": {}, // current date has no trips
		"20251231": {
			{TripID: "trip-1", ServiceDate: "20251231", StartTime: "25:15:00"},
		},
	}}
	clk := aucklandClock(t, "2026-01-01T01:15:00")
	r := tripresolver.New(fetcher, clk)

	got, err := r.NearestTripInstance(context.Background(), "trip-1", clk.At.Unix())
	if err != nil {
		t.Fatalf("NearestTripInstance: %v", err)
	}
	if got == nil || got.ServiceDate != "20251231" {
		t.Fatalf("got %+v, want previous-day trip", got)
	}

	foundPrevious := false
	for _, d := range fetcher.calls {
		if d == "20251231" {
			foundPrevious = true
		}
	}
	if !foundPrevious {
		t.Fatalf("resolver did not consult previous day, calls=%v", fetcher.calls)
	}
}

func TestNearestTripInstanceDoesNotConsultPreviousDayAfterFourAM(t *testing.T) {
	fetcher := &fakeFetcher{byDate: map[string][]domain.TripInstance{
		"20260101": {
			{TripID: "trip-1", ServiceDate: "20260101", StartTime: "09:00:00"},
		},
	}}
	clk := aucklandClock(t, "2026-01-01T09:00:00")
	r := tripresolver.New(fetcher, clk)

	if _, err := r.NearestTripInstance(context.Background(), "trip-1", clk.At.Unix()); err != nil {
		t.Fatalf("NearestTripInstance: %v", err)
	}
	for _, d := range fetcher.calls {
		if d == "20251231" {
			t.Fatalf("resolver consulted previous day after 4am, calls=%v", fetcher.calls)
		}
	}
}
