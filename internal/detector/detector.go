// Package detector implements the Dilax lost-connection detector: it scans
// today's vehicle-to-trip block allocations and flags vehicles that should
// be reporting APC telemetry for a running trip but have gone quiet.
// Grounded on original_source/crates/dilax/src/detector.rs
// (refresh_allocations, detect_candidates, detect_for_allocation,
// is_connection_lost, log_detection).
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/clock"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
)

const lostConnectionSetPrefix = "apc:lostConnections"

// BlockMgtProvider is the narrow surface the detector needs from the Block
// Management adapter. Satisfied by *internal/adapters.BlockMgt.
type BlockMgtProvider interface {
	Allocations(ctx context.Context) ([]domain.Allocation, error)
}

// TripInfoProvider is the narrow surface the detector needs from the APC
// tracker. Satisfied by *internal/apc.Tracker.
type TripInfoProvider interface {
	GetVehicleTripInfo(ctx context.Context, vehicleID string) (*domain.VehicleTripInfo, error)
}

// Detection is one lost-connection finding: an allocation that should be
// actively tracked but whose last-known APC telemetry is stale or absent.
type Detection struct {
	DetectionTime   int64                `json:"detectionTime"`
	Allocation      domain.Allocation    `json:"allocation"`
	VehicleTripInfo domain.VehicleTripInfo `json:"vehicleTripInfo"`
}

// Detector runs the two-phase workflow: RefreshAllocations caches today's
// running allocations, Detect evaluates them against last-known APC state
// and deduplicates findings already emitted today.
type Detector struct {
	store     kvstore.Store
	block     BlockMgtProvider
	trips     TripInfoProvider
	clock     clock.Clock
	log       zerolog.Logger
	threshold time.Duration
	retention time.Duration

	mu          sync.RWMutex
	allocations []domain.Allocation
}

func New(store kvstore.Store, block BlockMgtProvider, trips TripInfoProvider, clk clock.Clock, log zerolog.Logger, threshold, retention time.Duration) *Detector {
	return &Detector{
		store:     store,
		block:     block,
		trips:     trips,
		clock:     clk,
		log:       log,
		threshold: threshold,
		retention: retention,
	}
}

// RefreshAllocations loads every current block allocation and caches the
// subset running today for a non-diesel vehicle with a known vehicle id.
func (d *Detector) RefreshAllocations(ctx context.Context) error {
	all, err := d.block.Allocations(ctx)
	if err != nil {
		return err
	}

	serviceDate := d.clock.Today()
	filtered := make([]domain.Allocation, 0, len(all))
	for _, a := range all {
		if a.ServiceDate != serviceDate {
			continue
		}
		if a.VehicleID == "" {
			continue
		}
		if strings.HasPrefix(a.VehicleLabel, domain.DieselTrainPrefix) {
			continue
		}
		filtered = append(filtered, a)
	}

	d.mu.Lock()
	d.allocations = filtered
	d.mu.Unlock()

	d.log.Info().Str("service_date", serviceDate).Int("cached", len(filtered)).Msg("cached Dilax allocations for today")
	return nil
}

// Detect evaluates the cached allocations and returns the detections that
// have not already been emitted today; each new detection is recorded in a
// per-day set so re-running Detect is idempotent.
func (d *Detector) Detect(ctx context.Context) ([]Detection, error) {
	candidates, err := d.detectCandidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	setKey := lostConnectionSetPrefix + d.clock.Today()
	existingList, err := d.store.SetMembers(ctx, setKey)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(existingList))
	for _, m := range existingList {
		existing[m] = true
	}

	newDetections := make([]Detection, 0, len(candidates))
	for _, candidate := range candidates {
		vehicleTripKey := fmt.Sprintf("%s|%s", candidate.VehicleTripInfo.VehicleInfo.ID, candidate.Allocation.TripID)
		if existing[vehicleTripKey] {
			continue
		}

		d.logDetection(candidate)

		detailKey := setKey + ":" + vehicleTripKey
		payload, err := json.Marshal(candidate)
		if err != nil {
			return nil, err
		}
		if err := d.store.AddToSet(ctx, setKey, vehicleTripKey, d.retention); err != nil {
			return nil, err
		}
		if err := d.store.SetExpiry(ctx, setKey, d.retention); err != nil {
			return nil, err
		}
		if _, err := d.store.Set(ctx, detailKey, payload, d.retention); err != nil {
			return nil, err
		}

		existing[vehicleTripKey] = true
		newDetections = append(newDetections, candidate)
	}

	d.log.Info().Int("count", len(newDetections)).Msg("Dilax lost connection detections recorded")
	return newDetections, nil
}

func (d *Detector) detectCandidates(ctx context.Context) ([]Detection, error) {
	now := d.clock.Now().Unix()

	d.mu.RLock()
	allocations := make([]domain.Allocation, len(d.allocations))
	copy(allocations, d.allocations)
	d.mu.RUnlock()

	running := make([]domain.Allocation, 0, len(allocations))
	for _, a := range allocations {
		if a.StartDatetime <= now && a.EndDatetime >= now {
			running = append(running, a)
		}
	}

	detections := make([]Detection, 0)
	for _, allocation := range running {
		info, err := d.trips.GetVehicleTripInfo(ctx, allocation.VehicleID)
		if err != nil {
			return nil, err
		}

		if info != nil && info.TripID == allocation.TripID {
			if info.LastReceivedTimestamp != 0 && d.isConnectionLost(now, info.LastReceivedTimestamp) {
				detections = append(detections, Detection{DetectionTime: now, Allocation: allocation, VehicleTripInfo: *info})
			}
			continue
		}

		if detection := d.detectForAllocation(now, allocation, info); detection != nil {
			detections = append(detections, *detection)
		}
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Allocation.VehicleID < detections[j].Allocation.VehicleID
	})
	return detections, nil
}

func (d *Detector) detectForAllocation(now int64, allocation domain.Allocation, existing *domain.VehicleTripInfo) *Detection {
	if !d.isConnectionLost(now, allocation.StartDatetime) {
		return nil
	}

	info := domain.VehicleTripInfo{
		VehicleInfo: domain.VehicleInfoRef{ID: allocation.VehicleID, Label: allocation.VehicleLabel},
		TripID:      allocation.TripID,
	}
	if existing != nil {
		info = *existing
	}

	return &Detection{DetectionTime: now, Allocation: allocation, VehicleTripInfo: info}
}

func (d *Detector) isConnectionLost(now, timestamp int64) bool {
	return timestamp+int64(d.threshold/time.Second) <= now
}

func (d *Detector) logDetection(detection Detection) {
	info := detection.VehicleTripInfo
	var vehicleLabel string
	if info.DilaxMessage != nil && info.DilaxMessage.Device.Site != "" {
		vehicleLabel = info.DilaxMessage.Device.Site + " - "
	}
	vehicleLabel += info.VehicleInfo.Label

	timestampStr := "Never received a Dilax message"
	if info.LastReceivedTimestamp != 0 {
		timestampStr = time.Unix(info.LastReceivedTimestamp, 0).In(d.clock.Location()).Format("2006-01-02 15:04:05 MST")
	}

	coordinates := "No GPS Position available"
	if info.DilaxMessage != nil && info.DilaxMessage.Waypoint != nil {
		wpt := info.DilaxMessage.Waypoint
		var parts []string
		if wpt.Lat != "" {
			parts = append(parts, "Latitude: "+wpt.Lat)
		}
		if wpt.Lon != "" {
			parts = append(parts, "Longitude: "+wpt.Lon)
		}
		if len(parts) > 0 {
			coordinates = "Last Coordinates: " + strings.Join(parts, "; ")
		}
	}

	d.log.Warn().
		Str("vehicle", vehicleLabel+info.VehicleInfo.ID).
		Str("trip_id", detection.Allocation.TripID).
		Str("timestamp", timestampStr).
		Str("coordinates", coordinates).
		Msg("Dilax connection lost")
}
