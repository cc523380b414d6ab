package domain

// SmarTrakEventType distinguishes a vehicle-location event from a driver
// sign-on/sign-off serial-data event on the shared SmarTrak wire shape.
type SmarTrakEventType string

const (
	SmarTrakEventLocation   SmarTrakEventType = "Location"
	SmarTrakEventSerialData SmarTrakEventType = "SerialData"
)

// SmarTrakMessage is the generic vehicle-tracking feed's wire shape, shared
// by the location processor (§4.8) and the serial-data processor (§4.9).
type SmarTrakMessage struct {
	EventType    SmarTrakEventType `json:"eventType"`
	MessageData  MessageData       `json:"messageData"`
	RemoteData   *RemoteData       `json:"remoteData"`
	EventData    EventData         `json:"eventData"`
	LocationData LocationData      `json:"locationData"`
	SerialData   SerialData        `json:"serialData"`
}

// VehicleIDOrLabel returns the best-effort vehicle identifier carried in
// RemoteData, preferring ExternalID over RemoteName.
func (m SmarTrakMessage) VehicleIDOrLabel() string {
	if m.RemoteData == nil {
		return ""
	}
	if m.RemoteData.ExternalID != "" {
		return m.RemoteData.ExternalID
	}
	return m.RemoteData.RemoteName
}

// MessageData carries the event's wall-clock timestamp as an RFC3339 string;
// decoding occurs in the processor, so a bad timestamp does not fail
// json.Unmarshal: the location processor falls back to the current time and
// the serial-data processor drops the event.
type MessageData struct {
	Timestamp string `json:"timestamp,omitempty"`
	MessageID uint64 `json:"messageId,omitempty"`
}

// RemoteData identifies the reporting vehicle by id or label.
type RemoteData struct {
	RemoteID   uint64 `json:"remoteId,omitempty"`
	RemoteName string `json:"remoteName,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
}

// EventData carries an odometer fallback when LocationData omits one.
type EventData struct {
	Odometer  *float64 `json:"odometer,omitempty"`
	ExtraInfo string   `json:"extraInfo,omitempty"`
}

// LocationData is the GPS fix attached to a Location event.
type LocationData struct {
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Heading     *float64 `json:"heading,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	GPSAccuracy *float64 `json:"gpsAccuracy,omitempty"`
	Odometer    *float64 `json:"odometer,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are present.
func (l LocationData) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// SerialData carries the decoded driver sign-on/sign-off payload attached
// to a SerialData event.
type SerialData struct {
	Source             uint64              `json:"source,omitempty"`
	SerialBytes        string              `json:"serialBytes,omitempty"`
	DecodedSerialData *DecodedSerialData `json:"decodedSerialData,omitempty"`
}

// DecodedSerialData is the driver sign-on/sign-off event payload.
type DecodedSerialData struct {
	LineID            string `json:"lineId,omitempty"`
	TripNumber        string `json:"tripNumber,omitempty"`
	TripID            string `json:"tripId,omitempty"`
	StartAt           string `json:"startAt,omitempty"`
	PassengersNumber  uint32 `json:"passengersNumber,omitempty"`
	DriverID          string `json:"driverId,omitempty"`
	TripActive        bool   `json:"tripActive,omitempty"`
	TripEnded         bool   `json:"tripEnded,omitempty"`
}

// TripIdentifier returns TripID if non-empty, else TripNumber, matching the
// original's trip_identifier() fallback.
func (d DecodedSerialData) TripIdentifier() string {
	if d.TripID != "" {
		return d.TripID
	}
	return d.TripNumber
}
