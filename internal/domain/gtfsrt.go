package domain

// FeedEntity wraps a single GTFS-rt-shaped vehicle position update.
type FeedEntity struct {
	ID      string          `json:"id"`
	Vehicle *VehiclePosition `json:"vehicle,omitempty"`
}

// VehiclePosition is the outbound vehicle-position message body.
type VehiclePosition struct {
	Position         *Position          `json:"position,omitempty"`
	Trip             *TripDescriptor    `json:"trip,omitempty"`
	Vehicle          *VehicleDescriptor `json:"vehicle,omitempty"`
	OccupancyStatus  *string            `json:"occupancyStatus,omitempty"`
	Timestamp        int64              `json:"timestamp"`
}

// Position is the GPS fix projected onto the outbound vehicle-position
// message, with speed converted from km/h to m/s.
type Position struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Bearing   *float64 `json:"bearing,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Odometer  *float64 `json:"odometer,omitempty"`
}

// VehicleDescriptor identifies the vehicle on the outbound message.
type VehicleDescriptor struct {
	ID            string `json:"id"`
	Label         string `json:"label,omitempty"`
	LicensePlate  string `json:"licensePlate,omitempty"`
}

// DeadReckoningMessage is emitted when GPS coordinates are unavailable but
// an odometer reading and current trip descriptor are known.
type DeadReckoningMessage struct {
	ID          string          `json:"id"`
	ReceivedAt  int64           `json:"receivedAt"`
	Position    PositionDr      `json:"position"`
	Trip        TripDescriptor  `json:"trip"`
	Vehicle     VehicleDr       `json:"vehicle"`
}

// PositionDr carries the odometer-only position estimate.
type PositionDr struct {
	Odometer float64 `json:"odometer"`
}

// VehicleDr identifies the vehicle on a dead-reckoning message.
type VehicleDr struct {
	ID string `json:"id"`
}
