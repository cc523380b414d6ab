package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

type ccStopRecord struct {
	StopID   string  `json:"stop_id"`
	StopCode string  `json:"stop_code"`
	StopLat  float64 `json:"stop_lat"`
	StopLon  float64 `json:"stop_lon"`
}

// CCStatic resolves stop coordinates from the CC Static service. Grounded
// on original_source/crates/dilax/src/gtfs.rs's location_stops, generalized
// with a by-code lookup the R9K transformer's station-to-stop resolution
// uses alongside its geosearch.
type CCStatic struct {
	http httpClient
}

func NewCCStatic(baseURL string, timeout time.Duration, log zerolog.Logger) *CCStatic {
	return &CCStatic{
		http: newHTTPClient(baseURL, timeout, log.With().Str("adapter", "cc_static").Logger(), nil),
	}
}

// StopsByLocation returns nearby stops within distance meters of (lat, lon).
func (c *CCStatic) StopsByLocation(ctx context.Context, lat, lon float64, distanceMeters int) ([]domain.StopInfo, error) {
	path := fmt.Sprintf("/gtfs/stops/geosearch?lat=%g&lng=%g&distance=%d", lat, lon, distanceMeters)
	var records []ccStopRecord
	ok, err := c.http.getJSON(ctx, path, "", "", &records)
	if err != nil || !ok {
		return nil, err
	}
	return toStopInfos(records), nil
}

// StopByCode returns the stop matching stopCode, if any.
func (c *CCStatic) StopByCode(ctx context.Context, stopCode string) (*domain.StopInfo, error) {
	path := "/gtfs/stops?stop_code=" + stopCode
	var records []ccStopRecord
	ok, err := c.http.getJSON(ctx, path, "", "", &records)
	if err != nil || !ok || len(records) == 0 {
		return nil, err
	}
	infos := toStopInfos(records)
	return &infos[0], nil
}

func toStopInfos(records []ccStopRecord) []domain.StopInfo {
	infos := make([]domain.StopInfo, len(records))
	for i, r := range records {
		code := r.StopCode
		if code == "" {
			code = r.StopID
		}
		infos[i] = domain.StopInfo{StopID: r.StopID, StopCode: code, StopLat: r.StopLat, StopLon: r.StopLon}
	}
	return infos
}
