// Package smartrak implements the two SmarTrak generic vehicle-tracking
// feed processors: location (GPS/dead-reckoning vehicle positions) and
// serial-data (driver sign-on/sign-off trip binding). Grounded on
// original_source/crates/smartrak-gtfs/src/processor/location.rs and
// processor/serial_data.rs.
package smartrak

const (
	tripKeyPrefix            = "smartrakGtfs:trip:vehicle:"
	signOnKeyPrefix          = "smartrakGtfs:vehicle:signOn:"
	serialTimestampKeyPrefix = "smartrakGtfs:serialTimestamp:"
)

func tripKey(vehicleID string) string            { return tripKeyPrefix + vehicleID }
func signOnKey(vehicleID string) string           { return signOnKeyPrefix + vehicleID }
func serialTimestampKey(vehicleID string) string  { return serialTimestampKeyPrefix + vehicleID }
