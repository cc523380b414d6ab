package domain

// Allocation binds a vehicle to a trip for a service date (Block Management).
type Allocation struct {
	OperationalBlockID string `json:"operationalBlockId"`
	TripID              string `json:"tripId"`
	ServiceDate          string `json:"serviceDate"`
	StartTime            string `json:"startTime"`
	VehicleID            string `json:"vehicleId"`
	VehicleLabel         string `json:"vehicleLabel"`
	RouteID              string `json:"routeId"`
	DirectionID          *int   `json:"directionId,omitempty"`
	ReferenceID          string `json:"referenceId"`
	EndTime              string `json:"endTime"`
	Delay                int64  `json:"delay"`
	StartDatetime        int64  `json:"startDatetime"`
	EndDatetime           int64  `json:"endDatetime"`
	IsCanceled           bool   `json:"isCanceled"`
	IsCopied             bool   `json:"isCopied"`
	Timezone             string `json:"timezone"`
	CreationDatetime     string `json:"creationDatetime"`
}

// BlockInstance is a cached allocation snapshot including sibling vehicle ids
// for a trip near a moment in time.
type BlockInstance struct {
	TripID      string   `json:"tripId"`
	ServiceDate string   `json:"serviceDate"`
	StartTime   string   `json:"startTime"`
	VehicleIDs  []string `json:"vehicleIds"`
	Error       bool     `json:"error,omitempty"`
}

// HasError reports whether this instance is an upstream-failure sentinel.
func (b BlockInstance) HasError() bool { return b.Error }

// TripInstance is a resolved GTFS trip occurrence.
type TripInstance struct {
	TripID      string `json:"tripId"`
	RouteID     string `json:"routeId"`
	ServiceDate string `json:"serviceDate"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	DirectionID *int   `json:"directionId,omitempty"`
	IsAddedTrip bool   `json:"isAddedTrip"`
	Error       bool   `json:"error,omitempty"`
}

// HasError reports whether this instance is an "error marker" communicating
// an upstream trip-lookup failure rather than a genuine trip.
func (t TripInstance) HasError() bool { return t.Error }

// ErrorTrip constructs the sentinel TripInstance used to propagate an
// upstream failure through the resolver without an error return.
func ErrorTrip() TripInstance { return TripInstance{Error: true} }

const (
	ScheduleRelationAdded     = "ADDED"
	ScheduleRelationScheduled = "SCHEDULED"
)

// TripDescriptor is the GTFS-rt-shaped reference to a trip carried on
// outbound vehicle-position and dead-reckoning messages.
type TripDescriptor struct {
	TripID                string  `json:"tripId"`
	RouteID               string  `json:"routeId"`
	StartTime             *string `json:"startTime,omitempty"`
	StartDate             *string `json:"startDate,omitempty"`
	DirectionID           *int    `json:"directionId,omitempty"`
	ScheduleRelationship  *string `json:"scheduleRelationship,omitempty"`
}

// ToTripDescriptor projects a resolved TripInstance onto the outbound
// TripDescriptor shape.
func (t TripInstance) ToTripDescriptor() TripDescriptor {
	rel := ScheduleRelationScheduled
	if t.IsAddedTrip {
		rel = ScheduleRelationAdded
	}
	startTime := t.StartTime
	serviceDate := t.ServiceDate
	return TripDescriptor{
		TripID:               t.TripID,
		RouteID:              t.RouteID,
		StartTime:            &startTime,
		StartDate:            &serviceDate,
		DirectionID:          t.DirectionID,
		ScheduleRelationship: &rel,
	}
}

// StopInfo is a CC Static stop record with the coordinates used for R9K
// station-to-location resolution and the identifiers the Dilax enrichment
// path matches against GTFS Static's train stop types.
type StopInfo struct {
	StopID   string  `json:"stopId,omitempty"`
	StopCode string  `json:"stopCode"`
	StopLat  float64 `json:"stopLat"`
	StopLon  float64 `json:"stopLon"`
}
