package detector_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/clock"
	"github.com/aklnz/realtime-transit-engine/internal/detector"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
)

type fakeBlockMgt struct {
	allocations []domain.Allocation
}

func (f *fakeBlockMgt) Allocations(_ context.Context) ([]domain.Allocation, error) {
	return f.allocations, nil
}

type fakeTripInfo struct {
	byVehicle map[string]*domain.VehicleTripInfo
}

func (f *fakeTripInfo) GetVehicleTripInfo(_ context.Context, vehicleID string) (*domain.VehicleTripInfo, error) {
	return f.byVehicle[vehicleID], nil
}

func newDetector(t *testing.T, now time.Time, block *fakeBlockMgt, trips *fakeTripInfo) (*detector.Detector, kvstore.Store) {
	t.Helper()
	clk := clock.Fixed{At: now}
	store := kvstore.NewFake(clk)
	d := detector.New(store, block, trips, clk, zerolog.Nop(), time.Hour, 7*24*time.Hour)
	return d, store
}

func TestDetectFlagsVehicleWithNoVehicleTripInfo(t *testing.T) {
	now := time.Unix(1_700_100_000, 0)
	allocation := domain.Allocation{
		VehicleID:     "veh-1",
		VehicleLabel:  "AM123",
		TripID:        "trip-1",
		ServiceDate:   clock.Fixed{At: now}.Today(),
		StartDatetime: now.Unix() - 3600,
		EndDatetime:   now.Unix() + 3600,
	}
	block := &fakeBlockMgt{allocations: []domain.Allocation{allocation}}
	trips := &fakeTripInfo{byVehicle: map[string]*domain.VehicleTripInfo{}}

	d, _ := newDetector(t, now, block, trips)
	ctx := context.Background()
	if err := d.RefreshAllocations(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	detections, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("detections = %d, want 1", len(detections))
	}
	if detections[0].VehicleTripInfo.VehicleInfo.ID != "veh-1" {
		t.Fatalf("got %+v", detections[0])
	}
}

func TestDetectSkipsRecentlyReportedVehicle(t *testing.T) {
	now := time.Unix(1_700_100_000, 0)
	allocation := domain.Allocation{
		VehicleID:     "veh-1",
		VehicleLabel:  "AM123",
		TripID:        "trip-1",
		ServiceDate:   clock.Fixed{At: now}.Today(),
		StartDatetime: now.Unix() - 3600,
		EndDatetime:   now.Unix() + 3600,
	}
	block := &fakeBlockMgt{allocations: []domain.Allocation{allocation}}
	trips := &fakeTripInfo{byVehicle: map[string]*domain.VehicleTripInfo{
		"veh-1": {
			VehicleInfo:           domain.VehicleInfoRef{ID: "veh-1", Label: "AM123"},
			TripID:                "trip-1",
			LastReceivedTimestamp: now.Unix() - 60, // within threshold
		},
	}}

	d, _ := newDetector(t, now, block, trips)
	ctx := context.Background()
	d.RefreshAllocations(ctx)

	detections, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(detections) != 0 {
		t.Fatalf("detections = %d, want 0 (recently reported)", len(detections))
	}
}

func TestDetectFlagsVehicleWithStaleTimestampOnMatchingTrip(t *testing.T) {
	now := time.Unix(1_700_100_000, 0)
	allocation := domain.Allocation{
		VehicleID:     "veh-1",
		VehicleLabel:  "AM123",
		TripID:        "trip-1",
		ServiceDate:   clock.Fixed{At: now}.Today(),
		StartDatetime: now.Unix() - 3600,
		EndDatetime:   now.Unix() + 3600,
	}
	block := &fakeBlockMgt{allocations: []domain.Allocation{allocation}}
	trips := &fakeTripInfo{byVehicle: map[string]*domain.VehicleTripInfo{
		"veh-1": {
			VehicleInfo:           domain.VehicleInfoRef{ID: "veh-1", Label: "AM123"},
			TripID:                "trip-1",
			LastReceivedTimestamp: now.Unix() - 7200, // well past the 1h threshold
		},
	}}

	d, _ := newDetector(t, now, block, trips)
	ctx := context.Background()
	d.RefreshAllocations(ctx)

	detections, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("detections = %d, want 1 (stale)", len(detections))
	}
}

func TestDetectIsIdempotentAcrossRuns(t *testing.T) {
	now := time.Unix(1_700_100_000, 0)
	allocation := domain.Allocation{
		VehicleID:     "veh-1",
		VehicleLabel:  "AM123",
		TripID:        "trip-1",
		ServiceDate:   clock.Fixed{At: now}.Today(),
		StartDatetime: now.Unix() - 3600,
		EndDatetime:   now.Unix() + 3600,
	}
	block := &fakeBlockMgt{allocations: []domain.Allocation{allocation}}
	trips := &fakeTripInfo{byVehicle: map[string]*domain.VehicleTripInfo{}}

	d, _ := newDetector(t, now, block, trips)
	ctx := context.Background()
	d.RefreshAllocations(ctx)

	first, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("first detect: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first detections = %d, want 1", len(first))
	}

	second, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("second detect: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second detections = %d, want 0 (already emitted today)", len(second))
	}
}

func TestDetectExcludesDieselTrainAndFutureAllocations(t *testing.T) {
	now := time.Unix(1_700_100_000, 0)
	dieselAllocation := domain.Allocation{
		VehicleID:     "veh-2",
		VehicleLabel:  "ADL456",
		TripID:        "trip-2",
		ServiceDate:   clock.Fixed{At: now}.Today(),
		StartDatetime: now.Unix() - 3600,
		EndDatetime:   now.Unix() + 3600,
	}
	futureAllocation := domain.Allocation{
		VehicleID:     "veh-3",
		VehicleLabel:  "AM789",
		TripID:        "trip-3",
		ServiceDate:   clock.Fixed{At: now}.Today(),
		StartDatetime: now.Unix() + 3600,
		EndDatetime:   now.Unix() + 7200,
	}
	block := &fakeBlockMgt{allocations: []domain.Allocation{dieselAllocation, futureAllocation}}
	trips := &fakeTripInfo{byVehicle: map[string]*domain.VehicleTripInfo{}}

	d, _ := newDetector(t, now, block, trips)
	ctx := context.Background()
	d.RefreshAllocations(ctx)

	detections, err := d.Detect(ctx)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(detections) != 0 {
		t.Fatalf("detections = %d, want 0 (diesel excluded, future not running)", len(detections))
	}
}
