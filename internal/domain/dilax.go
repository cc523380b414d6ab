package domain

// Device identifies the Dilax APC unit that produced an event.
type Device struct {
	Operator string `json:"operator"`
	Site     string `json:"site"`
	Model    string `json:"model"`
	Serial   string `json:"serial"`
}

// DilaxClock carries the monotonic APC token (Utc) alongside the device's
// reported timezone name.
type DilaxClock struct {
	UTC string `json:"utc"`
	TZ  string `json:"tz"`
}

// Waypoint is the optional GPS fix attached to a Dilax event.
type Waypoint struct {
	Sat   string    `json:"sat,omitempty"`
	Lat   string    `json:"lat"`
	Lon   string    `json:"lon"`
	Speed FlexFloat `json:"speed"`
}

// Door carries one door's boarding/alighting counts for a single event.
type Door struct {
	Name           string `json:"name"`
	PassengersIn   int64  `json:"in"`
	PassengersOut  int64  `json:"out"`
	St             string `json:"st"`
	Art            int64  `json:"art"`
	Err            string `json:"err,omitempty"`
}

// DilaxMessage is the raw vehicle-mounted automatic passenger counter event.
type DilaxMessage struct {
	DlxVers           string     `json:"dlx_vers"`
	DlxType           string     `json:"dlx_type"`
	Driving           bool       `json:"driving"`
	AtStop            bool       `json:"atstop"`
	Operational       bool       `json:"operational"`
	DistanceStart     int64      `json:"distance_start"`
	Trigger           string     `json:"trigger"`
	Device            Device     `json:"device"`
	Clock             DilaxClock `json:"clock"`
	Doors             []Door     `json:"doors"`
	ArrivalUTC        string     `json:"arrival_utc,omitempty"`
	DepartureUTC      string     `json:"departure_utc,omitempty"`
	Waypoint          *Waypoint  `json:"wpt,omitempty"`
}

// VehicleTripState is the APC tracker's persisted per-vehicle state, keyed
// apc:vehicleIdState:{vid}.
type VehicleTripState struct {
	RunningCount     int64           `json:"runningCount"`
	LastToken        int64           `json:"lastToken"`
	LastTripID       string          `json:"lastTripId,omitempty"`
	OccupancyStatus  OccupancyStatus `json:"occupancyStatus"`
}

// VehicleInfoRef is the minimal vehicle identity embedded in
// VehicleTripInfo.
type VehicleInfoRef struct {
	ID    string `json:"vehicleId"`
	Label string `json:"label,omitempty"`
}

// VehicleTripInfo is the APC tracker's upkeep record, keyed
// apc:vehicleTripInfo:{vid}; consumed by the lost-connection detector.
type VehicleTripInfo struct {
	VehicleInfo            VehicleInfoRef `json:"vehicleInfo"`
	TripID                  string         `json:"tripId,omitempty"`
	StopID                  string         `json:"stopId,omitempty"`
	LastReceivedTimestamp   int64          `json:"lastReceivedTimestamp,omitempty"`
	DilaxMessage            *DilaxMessage  `json:"dilaxMessage,omitempty"`
}

// PassengerCountEvent is an alternate APC input shape carried on the
// realtime-passenger-count.v1 topic; it feeds the same occupancy tracker.
type PassengerCountEvent struct {
	OccupancyStatus string              `json:"occupancyStatus,omitempty"`
	Vehicle         PassengerVehicle    `json:"vehicle"`
	Trip            PassengerTrip       `json:"trip"`
	Timestamp       int64               `json:"timestamp,omitempty"`
}

type PassengerVehicle struct {
	ID string `json:"id"`
}

type PassengerTrip struct {
	TripID    string `json:"tripId"`
	RouteID   string `json:"routeId"`
	StartDate string `json:"startDate"`
	StartTime string `json:"startTime"`
}
