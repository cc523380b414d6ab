package r9k

import (
	"context"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

// activeStations lists the R9K station ids this service cares about; every
// other station id is silently irrelevant.
var activeStations = map[uint32]bool{0: true, 19: true, 40: true}

// stationStopCode maps an R9K station id onto a CC Static stop code.
var stationStopCode = map[uint32]string{
	0:  "133",
	19: "9218",
	40: "134",
}

// departureOverrides corrects stops that have separate departure and
// arrival locations; the CC Static record reflects the arrival platform, so
// a departing train at these stops is relocated to its departure position.
var departureOverrides = map[string]domain.StopInfo{
	"133":  {StopCode: "133", StopLat: -36.84448, StopLon: 174.76915},
	"134":  {StopCode: "134", StopLat: -37.20299, StopLon: 174.90990},
	"9218": {StopCode: "9218", StopLat: -36.99412, StopLon: 174.8770},
}

// StopResolver looks up a stop's coordinates by CC Static stop code;
// satisfied by *internal/adapters.CCStatic.
type StopResolver interface {
	StopByCode(ctx context.Context, stopCode string) (*domain.StopInfo, error)
}

// stopInfo resolves an R9K station id to a location, returning nil if the
// station is not one this service tracks. isArrival selects between the
// stop's recorded (arrival) position and its departure override.
func stopInfo(ctx context.Context, stops StopResolver, station uint32, isArrival bool) (*domain.StopInfo, error) {
	if !activeStations[station] {
		return nil, nil
	}
	stopCode, ok := stationStopCode[station]
	if !ok {
		return nil, nil
	}

	info, err := stops.StopByCode(ctx, stopCode)
	if err != nil || info == nil {
		return nil, err
	}

	if !isArrival {
		if override, ok := departureOverrides[info.StopCode]; ok {
			return &override, nil
		}
	}
	return info, nil
}
