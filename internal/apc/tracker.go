// Package apc implements the automatic passenger counter occupancy
// tracker: per-vehicle running count, monotonic token gating, trip-change
// reset, and occupancy bucketing. Grounded on
// original_source/crates/dilax/src/trip_state.rs (update_vehicle,
// migrate_legacy_keys) and occupancy.rs (the OccupancyStatus enum).
package apc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/keylock"
	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
)

const (
	ttlState               = time.Hour
	ttlOccupancy            = 90 * time.Minute
	ttlVehicleTrip          = 48 * time.Hour
	ttlOccupancyPublication = 3 * time.Hour
)

func stateKey(vehicleID string) string          { return "apc:vehicleIdState:" + vehicleID }
func migratedKey(vehicleID string) string       { return "apc:vehicleIdMigrated:" + vehicleID }
func legacyTripKey(vehicleID string) string     { return "apc:trips:" + vehicleID }
func legacyCountKey(vehicleID string) string    { return "apc:vehicleId:" + vehicleID }
func occupancyKey(vehicleID string) string      { return "trip:occupancy:" + vehicleID }
func vehicleTripInfoKey(vehicleID string) string { return "apc:vehicleTripInfo:" + vehicleID }

// occupancyPublicationKey is the trip-scoped key the realtime-passenger-count.v1
// feed publishes its occupancy status under, read back by the SmarTrak
// location processor for the matching trip.
func occupancyPublicationKey(vehicleID, tripID, serviceDate, startTime string) string {
	return fmt.Sprintf("smartrakGtfs:occupancyStatus:%s:%s:%s:%s", vehicleID, tripID, serviceDate, startTime)
}

// Tracker maintains the per-vehicle occupancy state the engine republishes
// alongside vehicle positions.
type Tracker struct {
	store kvstore.Store
	locks *keylock.Locker
	log   zerolog.Logger
}

func NewTracker(store kvstore.Store, locks *keylock.Locker, log zerolog.Logger) *Tracker {
	return &Tracker{store: store, locks: locks, log: log}
}

// UpdateVehicle applies a Dilax APC message to vehicleID's tracked state,
// following the five-step algorithm: legacy migration, monotonic token
// check, trip-change reset, door-count summation, and occupancy bucketing.
// A stale/duplicate token is not an error; it is logged and skipped.
func (t *Tracker) UpdateVehicle(ctx context.Context, vehicleID string, tripID *string, seatingCapacity, totalCapacity int64, event domain.DilaxMessage) error {
	guard := t.locks.Lock(vehicleID)
	defer guard.Release()

	key := stateKey(vehicleID)
	prevRaw, err := t.store.Get(ctx, key)
	if err != nil {
		return err
	}

	var state domain.VehicleTripState
	if prevRaw != nil {
		if err := json.Unmarshal(prevRaw, &state); err != nil {
			state = domain.VehicleTripState{}
		}
	} else {
		if err := t.migrateLegacyKeys(ctx, vehicleID, &state); err != nil {
			return err
		}
	}

	token, err := strconv.ParseInt(event.Clock.UTC, 10, 64)
	if err != nil {
		t.log.Warn().Str("vehicle_id", vehicleID).Str("clock_utc", event.Clock.UTC).Err(err).Msg("dropping Dilax message with malformed clock token")
		return nil
	}
	if token <= state.LastToken {
		t.log.Warn().
			Str("vehicle_id", vehicleID).
			Int64("token", token).
			Int64("last_token", state.LastToken).
			Msg("received duplicate or out-of-order Dilax message")
		return nil
	}
	state.LastToken = token

	resetRunningCount := tripID == nil
	if tripID != nil {
		if state.LastTripID != "" && state.LastTripID != *tripID {
			resetRunningCount = true
		}
		state.LastTripID = *tripID
	}

	if resetRunningCount {
		state.RunningCount = occupancyCount(0, event.Doors, vehicleID, true, t.log)
	} else {
		state.RunningCount = occupancyCount(state.RunningCount, event.Doors, vehicleID, false, t.log)
	}

	status := domain.BucketOccupancy(state.RunningCount, seatingCapacity, totalCapacity)
	state.OccupancyStatus = status

	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}
	replaced, err := t.store.Set(ctx, key, encoded, ttlState)
	if err != nil {
		return err
	}
	if prevRaw != nil && replaced != nil && string(prevRaw) != string(replaced) {
		t.log.Warn().Str("vehicle_id", vehicleID).Msg("state overwritten concurrently")
	}

	if _, err := t.store.Set(ctx, occupancyKey(vehicleID), []byte(strconv.Itoa(int(status))), ttlOccupancy); err != nil {
		return err
	}
	countBytes := []byte(strconv.FormatInt(state.RunningCount, 10))
	if _, err := t.store.Set(ctx, legacyCountKey(vehicleID), countBytes, ttlState); err != nil {
		return err
	}

	return nil
}

// UpdateFromPassengerCount applies the alternate realtime-passenger-count.v1
// input shape: it publishes (or clears) the reported occupancy status under
// a key scoped to this vehicle and trip, independent of the Dilax
// running-count tracker, since this feed already reports a computed
// occupancy status rather than door counts to bucket.
func (t *Tracker) UpdateFromPassengerCount(ctx context.Context, event domain.PassengerCountEvent) error {
	key := occupancyPublicationKey(event.Vehicle.ID, event.Trip.TripID, event.Trip.StartDate, event.Trip.StartTime)
	if event.OccupancyStatus == "" {
		return t.store.Delete(ctx, key)
	}
	_, err := t.store.Set(ctx, key, []byte(event.OccupancyStatus), ttlOccupancyPublication)
	return err
}

func parseOccupancyStatus(s string) domain.OccupancyStatus {
	switch s {
	case "MANY_SEATS_AVAILABLE":
		return domain.OccupancyManySeatsAvailable
	case "FEW_SEATS_AVAILABLE":
		return domain.OccupancyFewSeatsAvailable
	case "STANDING_ROOM_ONLY":
		return domain.OccupancyStandingRoomOnly
	case "FULL":
		return domain.OccupancyFull
	default:
		return domain.OccupancyEmpty
	}
}

func (t *Tracker) migrateLegacyKeys(ctx context.Context, vehicleID string, state *domain.VehicleTripState) error {
	migrationKey := migratedKey(vehicleID)
	already, err := t.store.Get(ctx, migrationKey)
	if err != nil {
		return err
	}
	if already != nil {
		return nil
	}

	if tripBytes, err := t.store.Get(ctx, legacyTripKey(vehicleID)); err != nil {
		return err
	} else if tripBytes != nil {
		t.log.Warn().Str("vehicle_id", vehicleID).Str("trip_id", string(tripBytes)).Msg("migrating legacy trip ID")
		state.LastTripID = string(tripBytes)
	}

	countBytes, err := t.store.Get(ctx, legacyCountKey(vehicleID))
	if err != nil {
		return err
	}
	if countBytes == nil {
		return nil
	}
	count, err := strconv.ParseInt(string(countBytes), 10, 64)
	if err != nil {
		return err
	}
	t.log.Warn().Str("vehicle_id", vehicleID).Int64("count", count).Msg("migrating legacy passenger count")
	state.RunningCount = count

	_, err = t.store.Set(ctx, migrationKey, []byte("true"), 0)
	return err
}

// occupancyCount sums door in/out counts onto previous, floored at zero.
// skipOut omits the out total, used on a trip-change reset where only the
// fresh boardings since the reset should count.
func occupancyCount(previous int64, doors []domain.Door, vehicleID string, skipOut bool, log zerolog.Logger) int64 {
	var totalIn, totalOut int64
	for _, d := range doors {
		totalIn += d.PassengersIn
		if !skipOut {
			totalOut += d.PassengersOut
		}
	}

	current := previous - totalOut
	if current < 0 {
		current = 0
	}
	current += totalIn

	if current < 0 {
		log.Warn().Str("vehicle_id", vehicleID).Int64("count", current).Msg("calculated negative passenger count")
		return 0
	}
	return current
}
