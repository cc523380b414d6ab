// Package dilaxadapter enriches a raw Dilax automatic passenger counter
// event with the vehicle, trip, and stop context the downstream
// GTFS-realtime consumers expect, republishing the combined record.
// Grounded on
// original_source/crates/dilax-adapter/src/handlers/processor.rs's process.
package dilaxadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

// OutboundTopic is the un-prefixed topic name enriched Dilax events are
// published to; the dispatch layer adds the `{ENV}-` prefix.
const OutboundTopic = "realtime-dilax-adapter-apc-enriched.v1"

// VehicleResolver looks up a vehicle's Fleet record by label; satisfied by
// *internal/adapters.Fleet.
type VehicleResolver interface {
	VehicleByLabel(ctx context.Context, label string) (*domain.Vehicle, error)
}

// AllocationResolver looks up the current trip allocation for a vehicle;
// satisfied by *internal/adapters.BlockMgt.
type AllocationResolver interface {
	Allocation(ctx context.Context, vehicleID string) (*domain.Allocation, error)
}

// OccupancyTracker applies an APC event to the tracked per-vehicle
// occupancy state and persists the upkeep record; satisfied by
// *internal/apc.Tracker.
type OccupancyTracker interface {
	UpdateVehicle(ctx context.Context, vehicleID string, tripID *string, seatingCapacity, totalCapacity int64, event domain.DilaxMessage) error
	SetVehicleTripInfo(ctx context.Context, info domain.VehicleTripInfo) error
}

// Publisher publishes an outbound payload under topic, keyed for
// downstream partition affinity; satisfied by the messaging client.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// EnrichedEvent is the outbound shape: the raw Dilax event augmented with
// the resolved stop, trip, and service-date context.
type EnrichedEvent struct {
	domain.DilaxMessage
	StopID    string `json:"stopId,omitempty"`
	TripID    string `json:"tripId,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	StartTime string `json:"startTime,omitempty"`
}

// Processor enriches inbound Dilax APC events and republishes them.
type Processor struct {
	vehicles   VehicleResolver
	allocation AllocationResolver
	stops      StopLocator
	trainStops TrainStopLister
	tracker    OccupancyTracker
	log        zerolog.Logger
}

func New(vehicles VehicleResolver, allocation AllocationResolver, stops StopLocator, trainStops TrainStopLister, tracker OccupancyTracker, log zerolog.Logger) *Processor {
	return &Processor{
		vehicles:   vehicles,
		allocation: allocation,
		stops:      stops,
		trainStops: trainStops,
		tracker:    tracker,
		log:        log,
	}
}

// Process resolves event's vehicle, trip, and stop, updates the occupancy
// tracker, and publishes the enriched event. Every resolution failure
// (unlabeled vehicle, unknown fleet vehicle, missing capacity, unallocated
// trip, unresolved stop) is reported as an error rather than attempted
// partially: the enriched event is only meaningful with every field filled
// in.
func (p *Processor) Process(ctx context.Context, event domain.DilaxMessage, publisher Publisher) error {
	label, ok := vehicleLabel(event.Device.Site)
	if !ok {
		return fmt.Errorf("dilaxadapter: vehicle label missing for device %+v", event.Device)
	}

	vehicle, err := p.vehicles.VehicleByLabel(ctx, label)
	if err != nil {
		return fmt.Errorf("dilaxadapter: resolving vehicle for label %s: %w", label, err)
	}
	if vehicle == nil {
		return fmt.Errorf("dilaxadapter: vehicle not found for label %s", label)
	}

	seating, total, ok := vehicleCapacity(*vehicle)
	if !ok {
		return fmt.Errorf("dilaxadapter: vehicle %s lacks capacity information", vehicle.ID)
	}

	allocation, err := p.allocation.Allocation(ctx, vehicle.ID)
	if err != nil {
		return fmt.Errorf("dilaxadapter: fetching block allocation for vehicle %s: %w", vehicle.ID, err)
	}
	if allocation == nil {
		return fmt.Errorf("dilaxadapter: block allocation unavailable for vehicle %s", vehicle.ID)
	}
	tripID := allocation.TripID

	stopID, err := p.resolveStop(ctx, vehicle.ID, event)
	if err != nil {
		return err
	}

	if err := p.tracker.UpdateVehicle(ctx, vehicle.ID, &tripID, seating, total, event); err != nil {
		return fmt.Errorf("dilaxadapter: updating trip state for vehicle %s: %w", vehicle.ID, err)
	}

	lastReceived, _ := strconv.ParseInt(event.Clock.UTC, 10, 64)
	info := domain.VehicleTripInfo{
		VehicleInfo:           domain.VehicleInfoRef{ID: vehicle.ID, Label: label},
		TripID:                tripID,
		StopID:                stopID,
		LastReceivedTimestamp: lastReceived,
		DilaxMessage:          &event,
	}
	if err := p.tracker.SetVehicleTripInfo(ctx, info); err != nil {
		return fmt.Errorf("dilaxadapter: persisting trip info for vehicle %s: %w", vehicle.ID, err)
	}

	enriched := EnrichedEvent{
		DilaxMessage: event,
		StopID:       stopID,
		TripID:       tripID,
		StartDate:    allocation.ServiceDate,
		StartTime:    allocation.StartTime,
	}
	payload, err := json.Marshal(enriched)
	if err != nil {
		return fmt.Errorf("dilaxadapter: marshaling enriched event: %w", err)
	}

	if err := publisher.Publish(ctx, OutboundTopic, tripID, payload); err != nil {
		return fmt.Errorf("dilaxadapter: publishing enriched event for vehicle %s: %w", vehicle.ID, err)
	}

	p.log.Info().Str("vehicle_id", vehicle.ID).Str("trip_id", tripID).Str("stop_id", stopID).Msg("dilax event enriched")
	return nil
}

func (p *Processor) resolveStop(ctx context.Context, vehicleID string, event domain.DilaxMessage) (string, error) {
	if event.Waypoint == nil {
		return "", fmt.Errorf("dilaxadapter: event missing waypoint data for vehicle %s", vehicleID)
	}
	lat, err := strconv.ParseFloat(event.Waypoint.Lat, 64)
	if err != nil {
		return "", fmt.Errorf("dilaxadapter: invalid waypoint latitude for vehicle %s: %w", vehicleID, err)
	}
	lon, err := strconv.ParseFloat(event.Waypoint.Lon, 64)
	if err != nil {
		return "", fmt.Errorf("dilaxadapter: invalid waypoint longitude for vehicle %s: %w", vehicleID, err)
	}

	stopID, err := resolveStopID(ctx, lat, lon, p.stops, p.trainStops)
	if err != nil {
		return "", fmt.Errorf("dilaxadapter: resolving stop for vehicle %s: %w", vehicleID, err)
	}
	return stopID, nil
}

func vehicleCapacity(vehicle domain.Vehicle) (seating, total int64, ok bool) {
	if vehicle.Capacity.Seating == nil || vehicle.Capacity.Total == nil {
		return 0, 0, false
	}
	return *vehicle.Capacity.Seating, *vehicle.Capacity.Total, true
}
