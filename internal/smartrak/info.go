package smartrak

import (
	"context"
	"encoding/json"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
)

// VehicleInfo is the current binding state the /info/{vehicle_id} endpoint
// reports: the cached SmarTrak trip binding, whether the driver is signed
// on, and the cached fleet record for the vehicle.
type VehicleInfo struct {
	TripInstance *domain.TripInstance `json:"tripInstance,omitempty"`
	SignedOn     bool                 `json:"signedOn"`
	Vehicle      *domain.Vehicle      `json:"vehicle,omitempty"`
}

// Info reads the cached trip binding, sign-on flag, and fleet record for a
// vehicle without mutating anything, grounded on the same key layout the
// location and serial-data processors write to.
type Info struct {
	store kvstore.Store
	fleet FleetResolver
}

func NewInfo(store kvstore.Store, fleet FleetResolver) *Info {
	return &Info{store: store, fleet: fleet}
}

func (i *Info) VehicleInfo(ctx context.Context, vehicleID string) (VehicleInfo, error) {
	var out VehicleInfo

	if raw, err := i.store.Get(ctx, tripKey(vehicleID)); err != nil {
		return out, err
	} else if raw != nil {
		var trip domain.TripInstance
		if err := json.Unmarshal(raw, &trip); err == nil {
			out.TripInstance = &trip
		}
	}

	if raw, err := i.store.Get(ctx, signOnKey(vehicleID)); err != nil {
		return out, err
	} else if raw != nil {
		out.SignedOn = true
	}

	if i.fleet != nil {
		if vehicle, err := i.fleet.VehicleByIDOrLabel(ctx, vehicleID); err == nil {
			out.Vehicle = vehicle
		}
	}

	return out, nil
}
