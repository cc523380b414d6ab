package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

// BlockMgt resolves vehicle-to-trip block allocations. Grounded on
// original_source/crates/dilax/src/block_mgt.rs (vehicle_allocation,
// allocations) and crates/smartrak-gtfs/src/block_mgt.rs
// (get_allocation_by_vehicle, the cached/siblings variant).
type BlockMgt struct {
	http httpClient
}

func NewBlockMgt(baseURL string, timeout time.Duration, tokens TokenSource, log zerolog.Logger) *BlockMgt {
	return &BlockMgt{
		http: newHTTPClient(baseURL, timeout, log.With().Str("adapter", "block_mgt").Logger(), tokens),
	}
}

type allocationEnvelope struct {
	Current []domain.Allocation `json:"current"`
	All     []domain.Allocation `json:"all"`
}

// Allocation returns the current trip allocation for a vehicle, if any.
func (b *BlockMgt) Allocation(ctx context.Context, vehicleID string) (*domain.Allocation, error) {
	path := fmt.Sprintf("/allocations/vehicles/%s?currentTrip=true", vehicleID)
	var env allocationEnvelope
	ok, err := b.http.getJSON(ctx, path, "", vehicleID, &env)
	if err != nil || !ok || len(env.Current) == 0 {
		return nil, err
	}
	return &env.Current[0], nil
}

// CachedAllocation returns a point-in-time allocation snapshot including
// sibling vehicles, as the location processor uses to validate an existing
// binding.
func (b *BlockMgt) CachedAllocation(ctx context.Context, vehicleID string, timestamp int64) (*domain.BlockInstance, error) {
	path := fmt.Sprintf("/allocations/vehicles/%s?currentTrip=true&siblings=true&nowUnixTimeSeconds=%d", vehicleID, timestamp)
	var instance domain.BlockInstance
	ok, err := b.http.getJSON(ctx, path, "max-age=20", vehicleID, &instance)
	if err != nil || !ok {
		return nil, err
	}
	return &instance, nil
}

// AllocatedTrains returns the vehicle ids currently allocated to the trip
// identified by externalRefID, as the R9K transformer uses to fan a single
// train update out to every allocated vehicle.
func (b *BlockMgt) AllocatedTrains(ctx context.Context, externalRefID string) ([]string, error) {
	path := fmt.Sprintf("/allocations/trips?externalRefId=%s", externalRefID)
	var vehicles []string
	ok, err := b.http.getJSON(ctx, path, "", externalRefID, &vehicles)
	if err != nil || !ok {
		return nil, err
	}
	return vehicles, nil
}

// Allocations returns every current allocation, consumed by the
// lost-connection detector filtered to today's service date and non-ADL
// vehicles.
func (b *BlockMgt) Allocations(ctx context.Context) ([]domain.Allocation, error) {
	var env allocationEnvelope
	ok, err := b.http.getJSON(ctx, "/allocations", "", "", &env)
	if err != nil || !ok {
		return nil, err
	}
	return env.All, nil
}
