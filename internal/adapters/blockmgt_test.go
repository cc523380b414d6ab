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

func TestBlockMgtAllocationReturnsCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer devtoken" {
			t.Fatalf("Authorization header = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"current": []domain.Allocation{{TripID: "trip-1", VehicleID: "veh-1"}},
		})
	}))
	defer srv.Close()

	bm := adapters.NewBlockMgt(srv.URL, time.Second, adapters.DevTokenSource{Token: "devtoken"}, zerolog.Nop())

	alloc, err := bm.Allocation(context.Background(), "veh-1")
	if err != nil {
		t.Fatalf("Allocation: %v", err)
	}
	if alloc == nil || alloc.TripID != "trip-1" {
		t.Fatalf("got %+v", alloc)
	}
}

func TestBlockMgtAllocationsReturnsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"all": []domain.Allocation{
				{TripID: "trip-1", VehicleID: "veh-1"},
				{TripID: "trip-2", VehicleID: "veh-2"},
			},
		})
	}))
	defer srv.Close()

	bm := adapters.NewBlockMgt(srv.URL, time.Second, adapters.DevTokenSource{}, zerolog.Nop())

	allocs, err := bm.Allocations(context.Background())
	if err != nil {
		t.Fatalf("Allocations: %v", err)
	}
	if len(allocs) != 2 {
		t.Fatalf("got %d allocations, want 2", len(allocs))
	}
}

func TestBlockMgtAllocationNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	bm := adapters.NewBlockMgt(srv.URL, time.Second, nil, zerolog.Nop())

	alloc, err := bm.Allocation(context.Background(), "veh-missing")
	if err != nil {
		t.Fatalf("Allocation: %v", err)
	}
	if alloc != nil {
		t.Fatalf("expected nil allocation, got %+v", alloc)
	}
}
