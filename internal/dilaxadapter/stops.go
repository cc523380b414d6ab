package dilaxadapter

import (
	"context"
	"errors"

	"github.com/aklnz/realtime-transit-engine/internal/adapters"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

// stopSearchDistanceMeters bounds the CC Static geosearch radius around a
// Dilax waypoint.
const stopSearchDistanceMeters = 150

// StopLocator resolves nearby stops from a coordinate; satisfied by
// *internal/adapters.CCStatic.
type StopLocator interface {
	StopsByLocation(ctx context.Context, lat, lon float64, distanceMeters int) ([]domain.StopInfo, error)
}

// TrainStopLister resolves GTFS Static's train-route-type stop entries;
// satisfied by *internal/adapters.GTFSStatic.
type TrainStopLister interface {
	TrainStopTypes(ctx context.Context) ([]adapters.StopTypeEntry, error)
}

var errStopIDUnavailable = errors.New("dilaxadapter: stop id unavailable")

// resolveStopID locates the GTFS stop id for a waypoint by geosearching CC
// Static and keeping the first hit whose stop code is recognized as a train
// stop by GTFS Static. Grounded on
// original_source/crates/dilax-adapter/src/handlers/processor.rs's stop_id.
func resolveStopID(ctx context.Context, lat, lon float64, stops StopLocator, trainStops TrainStopLister) (string, error) {
	nearby, err := stops.StopsByLocation(ctx, lat, lon, stopSearchDistanceMeters)
	if err != nil {
		return "", err
	}
	if len(nearby) == 0 {
		return "", errStopIDUnavailable
	}

	trainCodes, err := trainStops.TrainStopTypes(ctx)
	if err != nil {
		return "", err
	}
	if len(trainCodes) == 0 {
		return "", errStopIDUnavailable
	}

	for _, stop := range nearby {
		if isTrainStop(trainCodes, stop.StopCode) {
			return stop.StopID, nil
		}
	}
	return "", errStopIDUnavailable
}

func isTrainStop(entries []adapters.StopTypeEntry, stopCode string) bool {
	for _, e := range entries {
		if e.ParentStopCode == stopCode {
			return true
		}
	}
	return false
}
