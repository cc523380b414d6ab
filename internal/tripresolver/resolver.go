// Package tripresolver resolves a trip id to the GTFS trip occurrence it
// refers to, given either an exact start_time or a point in time to match
// against. Grounded on original_source/crates/smartrak-gtfs/src/trip.rs.
package tripresolver

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aklnz/realtime-transit-engine/internal/clock"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

// TripFetcher is the minimal adapter surface this package depends on;
// satisfied by *internal/adapters.TripMgt.
type TripFetcher interface {
	FetchTrips(ctx context.Context, tripID, serviceDate string) ([]domain.TripInstance, error)
}

type Resolver struct {
	trips TripFetcher
	clock clock.Clock
}

func New(trips TripFetcher, clk clock.Clock) *Resolver {
	return &Resolver{trips: trips, clock: clk}
}

// TripInstance resolves the trip occurrence matching tripID exactly on
// serviceDate at startTime. If Trip Management's first reported instance is
// an error marker, it is returned immediately; otherwise the first instance
// whose StartTime matches startTime is returned, else nil.
func (r *Resolver) TripInstance(ctx context.Context, tripID, serviceDate, startTime string) (*domain.TripInstance, error) {
	trips, err := r.trips.FetchTrips(ctx, tripID, serviceDate)
	if err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return nil, nil
	}
	if trips[0].HasError() {
		return &trips[0], nil
	}
	for i := range trips {
		if trips[i].StartTime == startTime {
			return &trips[i], nil
		}
	}
	return nil, nil
}

// NearestTripInstance resolves the trip occurrence for tripID closest to
// eventTS. eventTS is converted into the resolver's fixed civil timezone;
// when the local hour is before 04:00, the previous service date's trips
// are also considered (late-night services still belong to the prior day).
// An error marker on either day's first fetched instance is propagated
// immediately without considering the other day.
func (r *Resolver) NearestTripInstance(ctx context.Context, tripID string, eventTS int64) (*domain.TripInstance, error) {
	loc := r.clock.Location()
	eventTime := time.Unix(eventTS, 0).In(loc)
	currentDate := eventTime.Format("20060102")

	trips, err := r.trips.FetchTrips(ctx, tripID, currentDate)
	if err != nil {
		return nil, err
	}
	if len(trips) > 0 && trips[0].HasError() {
		return &trips[0], nil
	}

	if eventTime.Hour() < 4 {
		previousDate := eventTime.AddDate(0, 0, -1).Format("20060102")
		previous, err := r.trips.FetchTrips(ctx, tripID, previousDate)
		if err != nil {
			return nil, err
		}
		if len(previous) > 0 && previous[0].HasError() {
			return &previous[0], nil
		}
		trips = append(trips, previous...)
	}

	if len(trips) == 0 {
		return nil, nil
	}

	sort.SliceStable(trips, func(i, j int) bool {
		return difference(eventTime.Unix(), trips[i], loc) < difference(eventTime.Unix(), trips[j], loc)
	})
	return &trips[0], nil
}

func difference(eventTS int64, trip domain.TripInstance, loc *time.Location) int64 {
	ts, ok := tripTimestamp(trip, loc)
	if !ok {
		ts = eventTS
	}
	d := eventTS - ts
	if d < 0 {
		d = -d
	}
	return d
}

// tripTimestamp converts a trip's (ServiceDate, StartTime) into a unix
// timestamp in loc, handling extended-hours times (e.g. "25:15:00", which
// means 01:15 the following day) by rolling the date forward.
func tripTimestamp(trip domain.TripInstance, loc *time.Location) (int64, bool) {
	date, err := time.ParseInLocation("20060102", trip.ServiceDate, loc)
	if err != nil {
		return 0, false
	}
	totalSeconds, ok := parseTime(trip.StartTime)
	if !ok {
		return 0, false
	}

	days := totalSeconds / 86400
	remaining := totalSeconds % 86400
	if remaining < 0 {
		remaining += 86400
		days--
	}

	hours := remaining / 3600
	minutes := (remaining % 3600) / 60
	seconds := remaining % 60

	date = date.AddDate(0, 0, int(days))
	local := time.Date(date.Year(), date.Month(), date.Day(), int(hours), int(minutes), int(seconds), 0, loc)
	return local.Unix(), true
}

// parseTime parses an "HH:MM:SS" string, tolerating hour values >= 24 as
// GTFS's extended-hours convention requires.
func parseTime(s string) (int64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseInt(parts[0], 10, 64)
	m, err2 := strconv.ParseInt(parts[1], 10, 64)
	sec, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + sec, true
}
