package adapters

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

// TripMgt fetches trip instances for a trip id on a service date. Grounded
// on original_source/crates/smartrak-gtfs/src/trip.rs's fetch_trips; the
// exact-match and nearest-trip resolution built atop it live in
// internal/tripresolver, which depends only on this adapter's FetchTrips.
type TripMgt struct {
	http httpClient
}

func NewTripMgt(baseURL string, timeout time.Duration, log zerolog.Logger) *TripMgt {
	return &TripMgt{
		http: newHTTPClient(baseURL, timeout, log.With().Str("adapter", "trip_management").Logger(), nil),
	}
}

type tripInstancesRequest struct {
	TripIDs     []string `json:"tripIds"`
	ServiceDate string   `json:"serviceDate"`
}

type tripInstancesEnvelope struct {
	TripInstances []domain.TripInstance `json:"tripInstances"`
	Data          []domain.TripInstance `json:"data"`
}

// FetchTrips returns every trip instance Trip Management reports for tripID
// on serviceDate (YYYYMMDD). A 404 yields no trips and no error. On a
// transport failure or any other non-2xx response it returns a single
// error-marker TripInstance (Error: true), matching the original's
// fail-open error_trip sentinel rather than a Go error, so callers can
// propagate the failure through the same "error marker" path a real decode
// failure would take.
func (t *TripMgt) FetchTrips(ctx context.Context, tripID, serviceDate string) ([]domain.TripInstance, error) {
	req := tripInstancesRequest{TripIDs: []string{tripID}, ServiceDate: serviceDate}

	var env tripInstancesEnvelope
	ok, status, err := t.http.postJSON(ctx, "/tripinstances", "max-age=20, stale-if-error=10", req, &env)
	if err != nil {
		return []domain.TripInstance{{ServiceDate: serviceDate, Error: true}}, nil
	}
	if status == 404 {
		return nil, nil
	}
	if !ok {
		// Any non-2xx, non-404 response is treated as an upstream failure the
		// resolver must propagate, not a genuine "no trips today".
		return []domain.TripInstance{{ServiceDate: serviceDate, Error: true}}, nil
	}
	if len(env.TripInstances) > 0 {
		return env.TripInstances, nil
	}
	return env.Data, nil
}
