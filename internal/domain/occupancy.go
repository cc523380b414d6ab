package domain

// OccupancyStatus buckets a vehicle's running passenger count against its
// seating/total capacity. Values mirror GTFS-rt's OccupancyStatus ordinals.
type OccupancyStatus int

const (
	OccupancyEmpty OccupancyStatus = iota
	OccupancyManySeatsAvailable
	OccupancyFewSeatsAvailable
	OccupancyStandingRoomOnly
	OccupancyFull
)

func (s OccupancyStatus) String() string {
	switch s {
	case OccupancyEmpty:
		return "EMPTY"
	case OccupancyManySeatsAvailable:
		return "MANY_SEATS_AVAILABLE"
	case OccupancyFewSeatsAvailable:
		return "FEW_SEATS_AVAILABLE"
	case OccupancyStandingRoomOnly:
		return "STANDING_ROOM_ONLY"
	case OccupancyFull:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// BucketOccupancy applies the §4.5 thresholds: 5%/40%/90% of seating
// capacity, then 90% of total capacity, else Full.
func BucketOccupancy(count, seating, total int64) OccupancyStatus {
	switch {
	case count < seating*5/100:
		return OccupancyEmpty
	case count < seating*40/100:
		return OccupancyManySeatsAvailable
	case count < seating*90/100:
		return OccupancyFewSeatsAvailable
	case count < total*90/100:
		return OccupancyStandingRoomOnly
	default:
		return OccupancyFull
	}
}
