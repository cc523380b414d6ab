package apc

import (
	"context"
	"encoding/json"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

// GetVehicleTripInfo returns the last-known VehicleTripInfo upkeep record
// for vehicleID, consumed by the lost-connection detector and the
// /info/{vehicle_id} endpoint.
func (t *Tracker) GetVehicleTripInfo(ctx context.Context, vehicleID string) (*domain.VehicleTripInfo, error) {
	raw, err := t.store.Get(ctx, vehicleTripInfoKey(vehicleID))
	if err != nil || raw == nil {
		return nil, err
	}
	var info domain.VehicleTripInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SetVehicleTripInfo upserts the upkeep record on every successful APC
// processing cycle, with a 48h TTL.
func (t *Tracker) SetVehicleTripInfo(ctx context.Context, info domain.VehicleTripInfo) error {
	encoded, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = t.store.Set(ctx, vehicleTripInfoKey(info.VehicleInfo.ID), encoded, ttlVehicleTrip)
	return err
}

// LookupOccupancy returns the occupancy status most recently reported for
// vehicleID on this trip via the realtime-passenger-count.v1 feed, consumed
// by the SmarTrak location processor when it builds an outbound
// vehicle-position message for a vehicle with a known trip.
func (t *Tracker) LookupOccupancy(ctx context.Context, vehicleID, tripID, serviceDate, startTime string) (*domain.OccupancyStatus, error) {
	raw, err := t.store.Get(ctx, occupancyPublicationKey(vehicleID, tripID, serviceDate, startTime))
	if err != nil || raw == nil {
		return nil, err
	}
	status := parseOccupancyStatus(string(raw))
	return &status, nil
}
