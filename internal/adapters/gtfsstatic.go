package adapters

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const routeTypeTrain = 2

// StopTypeEntry is a GTFS Static stop-type record, used to recognize train
// stops by route_type.
type StopTypeEntry struct {
	ParentStopCode string `json:"parent_stop_code"`
	RouteType      *int   `json:"route_type"`
	StopCode       string `json:"stop_code"`
}

// GTFSStatic resolves the set of train stops from the GTFS Static service.
// Grounded on original_source/crates/dilax/src/gtfs.rs's stop_types.
type GTFSStatic struct {
	http httpClient
}

func NewGTFSStatic(baseURL string, timeout time.Duration, log zerolog.Logger) *GTFSStatic {
	return &GTFSStatic{
		http: newHTTPClient(baseURL, timeout, log.With().Str("adapter", "gtfs_static").Logger(), nil),
	}
}

// TrainStopTypes returns every stop-type entry whose route_type marks it as
// a train stop.
func (g *GTFSStatic) TrainStopTypes(ctx context.Context) ([]StopTypeEntry, error) {
	var entries []StopTypeEntry
	ok, err := g.http.getJSON(ctx, "/stopstypes/", "max-age=300", "gtfs:trainStops", &entries)
	if err != nil || !ok {
		return nil, err
	}

	trainStops := make([]StopTypeEntry, 0, len(entries))
	for _, e := range entries {
		if e.RouteType != nil && *e.RouteType == routeTypeTrain {
			trainStops = append(trainStops, e)
		}
	}
	return trainStops, nil
}
