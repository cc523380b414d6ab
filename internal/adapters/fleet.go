package adapters

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
)

const (
	fleetSuccessTTL = 24 * time.Hour
	fleetMissTTL    = 3 * time.Minute
)

// Fleet resolves vehicle metadata (label, capacity, type) from the Fleet
// API, caching successes for 24h and misses/failures for 3m. Grounded on
// original_source/crates/smartrak-gtfs/src/fleet.rs's get_vehicle_by_label,
// get_vehicle_by_id, and get_vehicle_capacity_for_route.
type Fleet struct {
	http  httpClient
	cache resultCache
}

func NewFleet(baseURL string, timeout time.Duration, tokens TokenSource, store kvstore.Store, log zerolog.Logger) *Fleet {
	return &Fleet{
		http:  newHTTPClient(baseURL, timeout, log.With().Str("adapter", "fleet").Logger(), tokens),
		cache: resultCache{store: store, successTTL: fleetSuccessTTL, missTTL: fleetMissTTL},
	}
}

func (f *Fleet) VehicleByLabel(ctx context.Context, label string) (*domain.Vehicle, error) {
	return f.fetchVehicle(ctx, "fleet:label:"+label, "label="+url.QueryEscape(label))
}

func (f *Fleet) VehicleByID(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	return f.fetchVehicle(ctx, "fleet:id:"+vehicleID, "id="+url.QueryEscape(vehicleID))
}

// VehicleByIDOrLabel resolves a vehicle using the same heuristics as the
// original's get_vehicle_by_id_or_label: a padded train label first, then
// the raw label if it already looks like a train label, finally a plain id
// lookup.
func (f *Fleet) VehicleByIDOrLabel(ctx context.Context, idOrLabel string) (*domain.Vehicle, error) {
	if domain.IsAlphanumericLabel(idOrLabel) {
		padded := domain.PaddedTrainLabel(idOrLabel)
		if v, err := f.VehicleByLabel(ctx, padded); err != nil {
			return nil, err
		} else if v != nil {
			return v, nil
		}
	}
	if domain.LooksLikeTrain(idOrLabel) {
		return f.VehicleByLabel(ctx, idOrLabel)
	}
	return f.VehicleByID(ctx, idOrLabel)
}

func (f *Fleet) CapacityForRoute(ctx context.Context, vehicleID, routeID string) (*domain.VehicleCapacity, error) {
	key := fmt.Sprintf("fleet:id:%s:route:%s", vehicleID, routeID)
	query := fmt.Sprintf("id=%s&route_id=%s", url.QueryEscape(vehicleID), url.QueryEscape(routeID))
	v, err := f.fetchVehicle(ctx, key, query)
	if err != nil || v == nil {
		return nil, err
	}
	return &v.Capacity, nil
}

func (f *Fleet) fetchVehicle(ctx context.Context, cacheKey, query string) (*domain.Vehicle, error) {
	var cached domain.Vehicle
	if hit, found, err := f.cache.lookup(ctx, cacheKey, &cached); err != nil {
		return nil, err
	} else if hit {
		if !found {
			return nil, nil
		}
		return &cached, nil
	}

	var vehicles []domain.Vehicle
	ok, err := f.http.getJSON(ctx, "/vehicles?"+query, "max-age=20", query, &vehicles)
	if err != nil {
		if serr := f.cache.storeMiss(ctx, cacheKey); serr != nil {
			return nil, serr
		}
		return nil, err
	}
	if !ok || len(vehicles) == 0 {
		if err := f.cache.storeMiss(ctx, cacheKey); err != nil {
			return nil, err
		}
		return nil, nil
	}

	vehicle := vehicles[0]
	if err := f.cache.storeFound(ctx, cacheKey, vehicle); err != nil {
		return nil, err
	}
	return &vehicle, nil
}
