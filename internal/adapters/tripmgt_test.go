package adapters_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/adapters"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

func TestTripMgtFetchTripsDecodesWrappedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["serviceDate"] != "20260101" {
			t.Fatalf("serviceDate = %v", body["serviceDate"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tripInstances": []domain.TripInstance{{TripID: "trip-1", StartTime: "08:00:00"}},
		})
	}))
	defer srv.Close()

	tm := adapters.NewTripMgt(srv.URL, time.Second, zerolog.Nop())
	trips, err := tm.FetchTrips(context.Background(), "trip-1", "20260101")
	if err != nil {
		t.Fatalf("FetchTrips: %v", err)
	}
	if len(trips) != 1 || trips[0].StartTime != "08:00:00" {
		t.Fatalf("got %+v", trips)
	}
}

func TestTripMgtFetchTripsUpstreamFailureReturnsErrorMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tm := adapters.NewTripMgt(srv.URL, time.Second, zerolog.Nop())
	trips, err := tm.FetchTrips(context.Background(), "trip-1", "20260101")
	if err != nil {
		t.Fatalf("FetchTrips: %v", err)
	}
	if len(trips) != 1 || !trips[0].HasError() {
		t.Fatalf("got %+v, want single error marker", trips)
	}
}
