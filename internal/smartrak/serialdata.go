package smartrak

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/keylock"
	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
)

const (
	tripSerialTTL     = 4 * time.Hour
	signOnSerialTTL   = 24 * time.Hour
	serialTimestampTTL = 24 * time.Hour

	defaultSerialDataFilterThreshold = 900 * time.Second
)

// NearestTripResolver is the nearest-trip lookup the serial-data processor
// needs; satisfied by *internal/tripresolver.Resolver.
type NearestTripResolver interface {
	NearestTripInstance(ctx context.Context, tripID string, eventTS int64) (*domain.TripInstance, error)
}

// SerialDataProcessor binds a vehicle to a trip from driver sign-on/sign-off
// serial data. Grounded on
// original_source/crates/smartrak-gtfs/src/processor/serial_data.rs.
type SerialDataProcessor struct {
	store           kvstore.Store
	locks           *keylock.Locker
	trips           NearestTripResolver
	log             zerolog.Logger
	futureThreshold time.Duration
	now             func() time.Time
}

func NewSerialDataProcessor(store kvstore.Store, locks *keylock.Locker, trips NearestTripResolver, log zerolog.Logger, futureThreshold time.Duration) *SerialDataProcessor {
	if futureThreshold == 0 {
		futureThreshold = defaultSerialDataFilterThreshold
	}
	return &SerialDataProcessor{
		store:           store,
		locks:           locks,
		trips:           trips,
		log:             log,
		futureThreshold: futureThreshold,
		now:             time.Now,
	}
}

// Process validates and applies a serial-data event: a future-dated or
// stale (non-monotonic) event is rejected, an empty trip identifier clears
// any existing binding, an already-matching binding is left untouched, and
// otherwise the nearest trip instance is resolved and persisted (or the
// binding is cleared on resolution failure).
func (p *SerialDataProcessor) Process(ctx context.Context, event domain.SmarTrakMessage) error {
	if event.RemoteData == nil || event.RemoteData.ExternalID == "" {
		return nil
	}
	decoded := event.SerialData.DecodedSerialData
	if decoded == nil {
		return nil
	}

	eventTimestamp, ok := p.parseTimestamp(event)
	if !ok {
		return nil
	}

	if !p.isValid(eventTimestamp) {
		return nil
	}

	vehicleID := event.RemoteData.ExternalID

	guard := p.locks.Lock(vehicleID)
	defer guard.Release()

	stale, err := p.markSerialTimestamp(ctx, vehicleID, eventTimestamp)
	if err != nil {
		return err
	}
	if stale {
		p.log.Warn().Str("vehicle_id", vehicleID).Msg("received older serial data event")
		return nil
	}

	return p.allocateVehicleToTrip(ctx, vehicleID, *decoded, eventTimestamp)
}

func (p *SerialDataProcessor) parseTimestamp(event domain.SmarTrakMessage) (int64, bool) {
	if event.MessageData.Timestamp == "" {
		return 0, false
	}
	ts, err := time.Parse(time.RFC3339, event.MessageData.Timestamp)
	if err != nil {
		return 0, false
	}
	return ts.Unix(), true
}

func (p *SerialDataProcessor) isValid(eventTimestamp int64) bool {
	futureDelta := eventTimestamp - p.now().Unix()
	if time.Duration(futureDelta)*time.Second > p.futureThreshold {
		p.log.Warn().Int64("future_delta", futureDelta).Msg("serial data event rejected because it is from the future")
		return false
	}
	return true
}

// markSerialTimestamp reports whether eventTimestamp is stale (not strictly
// newer than the last recorded timestamp for vehicleID), recording it as
// the new high-water mark when it is not.
func (p *SerialDataProcessor) markSerialTimestamp(ctx context.Context, vehicleID string, eventTimestamp int64) (bool, error) {
	key := serialTimestampKey(vehicleID)
	raw, err := p.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw != nil {
		if previous, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil && previous >= eventTimestamp {
			return true, nil
		}
	}

	_, err = p.store.Set(ctx, key, []byte(strconv.FormatInt(eventTimestamp, 10)), serialTimestampTTL)
	return false, err
}

func (p *SerialDataProcessor) allocateVehicleToTrip(ctx context.Context, vehicleID string, decoded domain.DecodedSerialData, eventTimestamp int64) error {
	tKey := tripKey(vehicleID)
	sKey := signOnKey(vehicleID)
	tsKey := serialTimestampKey(vehicleID)

	tripID := decoded.TripIdentifier()
	if tripID == "" {
		p.log.Debug().Str("vehicle_id", vehicleID).Msg("serial data without trip id, clearing state")
		return p.clearBinding(ctx, sKey, tKey, tsKey)
	}

	if prev, err := p.getCachedTrip(ctx, tKey); err != nil {
		return err
	} else if prev != nil && prev.TripID == tripID {
		return nil
	}

	trip, err := p.trips.NearestTripInstance(ctx, tripID, eventTimestamp)
	if err != nil {
		return err
	}

	if trip == nil || trip.HasError() {
		return p.clearBinding(ctx, sKey, tKey, tsKey)
	}

	return p.persistTrip(ctx, vehicleID, eventTimestamp, *trip)
}

func (p *SerialDataProcessor) persistTrip(ctx context.Context, vehicleID string, eventTimestamp int64, trip domain.TripInstance) error {
	encoded, err := json.Marshal(trip)
	if err != nil {
		return err
	}
	if _, err := p.store.Set(ctx, tripKey(vehicleID), encoded, tripSerialTTL); err != nil {
		return err
	}
	_, err = p.store.Set(ctx, signOnKey(vehicleID), []byte(strconv.FormatInt(eventTimestamp, 10)), signOnSerialTTL)
	return err
}

func (p *SerialDataProcessor) clearBinding(ctx context.Context, sKey, tKey, tsKey string) error {
	if err := p.store.Delete(ctx, sKey); err != nil {
		return err
	}
	if err := p.store.Delete(ctx, tKey); err != nil {
		return err
	}
	return p.store.Delete(ctx, tsKey)
}

func (p *SerialDataProcessor) getCachedTrip(ctx context.Context, key string) (*domain.TripInstance, error) {
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
