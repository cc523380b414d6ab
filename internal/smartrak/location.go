package smartrak

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/clock"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/keylock"
	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
)

var errMissingCoordinates = errors.New("smartrak: missing coordinates for vehicle position")

const (
	tripTrainTTL = 3 * time.Hour
	signOnTTL    = 24 * time.Hour

	tagCAF      = "CAF"
	tagSmartrak = "Smartrak"
)

// FleetResolver is the Fleet adapter surface the location processor needs.
type FleetResolver interface {
	VehicleByIDOrLabel(ctx context.Context, idOrLabel string) (*domain.Vehicle, error)
}

// BlockAllocator is the Block Management adapter surface the location
// processor needs to check a train's current allocation.
type BlockAllocator interface {
	CachedAllocation(ctx context.Context, vehicleID string, timestamp int64) (*domain.BlockInstance, error)
}

// TripInstanceResolver is the exact-match trip lookup the location
// processor needs; satisfied by *internal/tripresolver.Resolver.
type TripInstanceResolver interface {
	TripInstance(ctx context.Context, tripID, serviceDate, startTime string) (*domain.TripInstance, error)
}

// OccupancyLookup reads the occupancy status most recently reported for a
// vehicle on a given trip; satisfied by *internal/apc.Tracker.
type OccupancyLookup interface {
	LookupOccupancy(ctx context.Context, vehicleID, tripID, serviceDate, startTime string) (*domain.OccupancyStatus, error)
}

// LocationProcessor turns a SmarTrak location event into a GTFS-rt-shaped
// vehicle-position or dead-reckoning message. Grounded on
// original_source/crates/smartrak-gtfs/src/processor/location.rs.
type LocationProcessor struct {
	store             kvstore.Store
	locks             *keylock.Locker
	fleet             FleetResolver
	block             BlockAllocator
	trips             TripInstanceResolver
	occupancy         OccupancyLookup
	clock             clock.Clock
	log               zerolog.Logger
	accuracyThreshold float64
	tripDurationBuffer int64
}

func NewLocationProcessor(store kvstore.Store, locks *keylock.Locker, fleet FleetResolver, block BlockAllocator, trips TripInstanceResolver, occupancy OccupancyLookup, clk clock.Clock, log zerolog.Logger, accuracyThreshold float64, tripDurationBuffer int64) *LocationProcessor {
	return &LocationProcessor{
		store:              store,
		locks:              locks,
		fleet:              fleet,
		block:              block,
		trips:              trips,
		occupancy:          occupancy,
		clock:              clk,
		log:                log,
		accuracyThreshold:  accuracyThreshold,
		tripDurationBuffer: tripDurationBuffer,
	}
}

// Output is one message the processor wants published, either a vehicle
// position or a dead-reckoning estimate, keyed for downstream ordering.
type Output struct {
	IsDeadReckoning bool
	Key             string
	VehiclePosition *domain.FeedEntity
	DeadReckoning   *domain.DeadReckoningMessage
}

// Process runs the ten-step algorithm: validity/accuracy gating, vehicle
// resolution, topic-tag gating, train trip assignment, current-trip-window
// expiry, and dead-reckoning vs. vehicle-position emission.
func (p *LocationProcessor) Process(ctx context.Context, topic string, event domain.SmarTrakMessage) ([]Output, error) {
	if !p.isValid(event) {
		return nil, nil
	}

	vehicleIDOrLabel := event.VehicleIDOrLabel()
	vehicle, err := p.fleet.VehicleByIDOrLabel(ctx, vehicleIDOrLabel)
	if err != nil {
		return nil, err
	}
	if vehicle == nil {
		p.log.Info().Str("vehicle", vehicleIDOrLabel).Msg("vehicle not found, skipping")
		return nil, nil
	}

	if strings.Contains(topic, "caf-avl") {
		if !vehicle.MatchesTag(tagCAF) {
			p.log.Info().Str("vehicle_id", vehicle.ID).Msg("CAF tag mismatch, skipping")
			return nil, nil
		}
	} else if !vehicle.MatchesTag(tagSmartrak) && !strings.Contains(topic, "r9k-to-smartrak") {
		p.log.Info().Str("vehicle_id", vehicle.ID).Msg("Smartrak tag mismatch")
		return nil, nil
	}

	return p.processEvent(ctx, event, *vehicle)
}

func (p *LocationProcessor) processEvent(ctx context.Context, event domain.SmarTrakMessage, vehicle domain.Vehicle) ([]Output, error) {
	eventTimestamp := p.clock.Now()
	if event.MessageData.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, event.MessageData.Timestamp); err == nil {
			eventTimestamp = ts
		}
	}
	eventSecs := eventTimestamp.Unix()

	guard := p.locks.Lock(vehicle.ID)
	defer guard.Release()

	if vehicle.IsTrain() {
		blockInstance, err := p.block.CachedAllocation(ctx, vehicle.ID, eventSecs)
		if err != nil {
			return nil, err
		}
		if blockInstance == nil {
			if err := p.clearTrainBinding(ctx, vehicle.ID); err != nil {
				return nil, err
			}
		} else if blockInstance.HasError() {
			p.log.Info().Str("vehicle_id", vehicle.ID).Msg("block allocation error sentinel")
		} else if err := p.assignTrainToTrip(ctx, vehicle, eventSecs, *blockInstance); err != nil {
			return nil, err
		}
	}

	trip, err := p.cachedTripInstance(ctx, vehicle.ID, eventSecs)
	if err != nil {
		return nil, err
	}
	var tripDescriptor *domain.TripDescriptor
	if trip != nil {
		td := trip.ToTripDescriptor()
		tripDescriptor = &td
	}

	var outputs []Output

	if !event.LocationData.HasCoordinates() {
		odometer := event.LocationData.Odometer
		if odometer == nil {
			odometer = event.EventData.Odometer
		}
		if odometer != nil && tripDescriptor != nil {
			dr := &domain.DeadReckoningMessage{
				ID:         uuid.NewString(),
				ReceivedAt: eventSecs,
				Position:   domain.PositionDr{Odometer: *odometer},
				Trip:       *tripDescriptor,
				Vehicle:    domain.VehicleDr{ID: vehicle.ID},
			}
			outputs = append(outputs, Output{IsDeadReckoning: true, Key: vehicle.ID, DeadReckoning: dr})
		}
		return outputs, nil
	}

	entity, err := p.buildFeedEntity(ctx, event, vehicle, tripDescriptor, eventSecs)
	if err != nil {
		return nil, err
	}
	outputs = append(outputs, Output{Key: entity.ID, VehiclePosition: entity})
	return outputs, nil
}

func (p *LocationProcessor) isValid(event domain.SmarTrakMessage) bool {
	if event.RemoteData == nil || event.RemoteData.ExternalID == "" && event.RemoteData.RemoteName == "" {
		return false
	}
	if acc := event.LocationData.GPSAccuracy; acc != nil && *acc < p.accuracyThreshold {
		p.log.Info().Float64("accuracy", *acc).Float64("threshold", p.accuracyThreshold).Msg("rejecting low accuracy")
		return false
	}
	return true
}

func (p *LocationProcessor) assignTrainToTrip(ctx context.Context, vehicle domain.Vehicle, eventTimestamp int64, blockInstance domain.BlockInstance) error {
	tKey := tripKey(vehicle.ID)
	sKey := signOnKey(vehicle.ID)

	if len(blockInstance.VehicleIDs) == 0 || blockInstance.VehicleIDs[0] != vehicle.ID {
		return p.clearTrainBinding(ctx, vehicle.ID)
	}

	if blockInstance.TripID == "" {
		return nil
	}

	if prev, err := p.getCachedTrip(ctx, tKey); err != nil {
		return err
	} else if prev != nil && prev.TripID == blockInstance.TripID &&
		prev.StartTime == blockInstance.StartTime && prev.ServiceDate == blockInstance.ServiceDate {
		return nil
	}

	newTrip, err := p.trips.TripInstance(ctx, blockInstance.TripID, blockInstance.ServiceDate, blockInstance.StartTime)
	if err != nil {
		return err
	}
	if newTrip != nil && newTrip.HasError() {
		newTrip = nil
	}

	if newTrip == nil {
		return p.clearTrainBinding(ctx, vehicle.ID)
	}

	if _, err := p.store.Set(ctx, sKey, []byte(strconv.FormatInt(eventTimestamp, 10)), signOnTTL); err != nil {
		return err
	}
	encoded, err := json.Marshal(newTrip)
	if err != nil {
		return err
	}
	_, err = p.store.Set(ctx, tKey, encoded, tripTrainTTL)
	return err
}

// clearTrainBinding deletes the sign-on timestamp and trip binding cached
// for vehicleID: the current Allocation contradicted them, or no Allocation
// was found at all.
func (p *LocationProcessor) clearTrainBinding(ctx context.Context, vehicleID string) error {
	if err := p.store.Delete(ctx, signOnKey(vehicleID)); err != nil {
		return err
	}
	return p.store.Delete(ctx, tripKey(vehicleID))
}

func (p *LocationProcessor) cachedTripInstance(ctx context.Context, vehicleID string, eventTimestamp int64) (*domain.TripInstance, error) {
	trip, err := p.getCachedTrip(ctx, tripKey(vehicleID))
	if err != nil || trip == nil {
		return nil, err
	}
	if trip.HasError() {
		return nil, nil
	}

	if trip.StartTime != "" && trip.EndTime != "" && trip.ServiceDate != "" {
		signOnRaw, err := p.store.Get(ctx, signOnKey(vehicleID))
		if err != nil {
			return nil, err
		}
		if signOnRaw != nil {
			signOnSecs, parseErr := strconv.ParseInt(string(signOnRaw), 10, 64)
			ok := parseErr == nil
			startUnix, startOK := parseTripTime(p.clock.Location(), trip.ServiceDate, trip.StartTime)
			endUnix, endOK := parseTripTime(p.clock.Location(), trip.ServiceDate, trip.EndTime)
			if ok && startOK && endOK {
				duration := endUnix - startUnix + p.tripDurationBuffer
				if eventTimestamp-duration > signOnSecs {
					p.log.Info().Str("vehicle_id", vehicleID).Msg("event beyond trip duration window")
					if err := p.clearTrainBinding(ctx, vehicleID); err != nil {
						return nil, err
					}
					return nil, nil
				}
			}
		}
	}

	return trip, nil
}

func (p *LocationProcessor) getCachedTrip(ctx context.Context, key string) (*domain.TripInstance, error) {
	raw, err := p.store.Get(ctx, key)
	if err != nil || raw == nil {
		return nil, err
	}
	var trip domain.TripInstance
	if err := json.Unmarshal(raw, &trip); err != nil {
		return nil, nil
	}
	return &trip, nil
}

func (p *LocationProcessor) buildFeedEntity(ctx context.Context, event domain.SmarTrakMessage, vehicle domain.Vehicle, trip *domain.TripDescriptor, eventSecs int64) (*domain.FeedEntity, error) {
	var occupancyStatus *string
	if trip != nil {
		status, err := p.occupancy.LookupOccupancy(ctx, vehicle.ID, trip.TripID, stringOrEmpty(trip.StartDate), stringOrEmpty(trip.StartTime))
		if err != nil {
			return nil, err
		}
		if status != nil {
			s := status.String()
			occupancyStatus = &s
		}
	}

	position := toPosition(event.LocationData)
	if position == nil {
		return nil, errMissingCoordinates
	}

	vp := &domain.VehiclePosition{
		Position:        position,
		Trip:            trip,
		Vehicle:         vehicleDescriptor(vehicle),
		OccupancyStatus: occupancyStatus,
		Timestamp:       eventSecs,
	}
	return &domain.FeedEntity{ID: vehicle.ID, Vehicle: vp}, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func vehicleDescriptor(v domain.Vehicle) *domain.VehicleDescriptor {
	return &domain.VehicleDescriptor{ID: v.ID, Label: v.Label, LicensePlate: v.Registration}
}

func toPosition(location domain.LocationData) *domain.Position {
	if location.Latitude == nil || location.Longitude == nil {
		return nil
	}
	var speed *float64
	if location.Speed != nil {
		s := (*location.Speed * 1000.0) / 3600.0
		speed = &s
	}
	return &domain.Position{
		Latitude:  *location.Latitude,
		Longitude: *location.Longitude,
		Bearing:   location.Heading,
		Speed:     speed,
		Odometer:  location.Odometer,
	}
}

// parseTripTime converts a (serviceDate, "HH:MM:SS") pair into a unix
// timestamp in loc, tolerating GTFS's extended-hours convention (hour
// values >= 24 roll into the following day).
func parseTripTime(loc *time.Location, serviceDate, hms string) (int64, bool) {
	date, err := time.ParseInLocation("20060102", serviceDate, loc)
	if err != nil {
		return 0, false
	}
	parts := strings.Split(hms, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseInt(parts[0], 10, 64)
	m, err2 := strconv.ParseInt(parts[1], 10, 64)
	s, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	totalSeconds := h*3600 + m*60 + s
	days := totalSeconds / 86400
	remaining := totalSeconds % 86400
	if remaining < 0 {
		remaining += 86400
		days--
	}
	date = date.AddDate(0, 0, int(days))
	local := time.Date(date.Year(), date.Month(), date.Day(), int(remaining/3600), int((remaining%3600)/60), int(remaining%60), 0, loc)
	return local.Unix(), true
}
