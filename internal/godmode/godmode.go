// Package godmode implements the optional per-vehicle trip-id override
// applied to SmarTrak serial-data events before normal trip resolution,
// used by operators to correct a misreporting vehicle's sign-on data.
// Grounded on original_source/crates/smartrak-gtfs/src/god_mode.rs.
package godmode

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

// clearSentinel is the override value that clears a vehicle's trip
// identifier outright, rather than substituting one.
const clearSentinel = "empty"

// Registry holds the process-wide override table. Unlike the original's
// lazily-initialised singleton, this is an injectable value constructed
// once in cmd/engine/main.go, so tests can build an independent instance.
type Registry struct {
	mu        sync.RWMutex
	overrides map[string]string
	enabled   bool
}

// New constructs a Registry; enabled gates Preprocess to a no-op when the
// feature flag is off, matching the original's god_mode() returning None.
func New(enabled bool) *Registry {
	return &Registry{overrides: make(map[string]string), enabled: enabled}
}

// Enabled reports whether the feature flag was set at construction.
func (r *Registry) Enabled() bool { return r.enabled }

// ResetAll clears every override.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides = make(map[string]string)
}

// ResetVehicle clears the override for a single vehicle.
func (r *Registry) ResetVehicle(vehicleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, vehicleID)
}

// SetVehicleToTrip sets vehicleID's trip-id override to tripID; passing
// "empty" clears the vehicle's trip identifier rather than substituting one.
func (r *Registry) SetVehicleToTrip(vehicleID, tripID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[vehicleID] = tripID
}

// Describe returns the current override table as JSON, for the operator
// `/god-mode` inspection endpoint.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pairs := make([][2]string, 0, len(r.overrides))
	for vehicleID, tripID := range r.overrides {
		pairs = append(pairs, [2]string{vehicleID, tripID})
	}
	encoded, err := json.Marshal(pairs)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// Preprocess applies any override for event's vehicle to its decoded
// serial-data payload, ahead of normal trip resolution. A no-op unless the
// registry is enabled, the event is a SerialData event carrying a decoded
// payload, and an override exists for its vehicle.
func (r *Registry) Preprocess(event *domain.SmarTrakMessage) {
	if !r.enabled || event.EventType != domain.SmarTrakEventSerialData {
		return
	}
	if event.RemoteData == nil || event.RemoteData.ExternalID == "" {
		return
	}
	decoded := event.SerialData.DecodedSerialData
	if decoded == nil {
		return
	}

	r.mu.RLock()
	override, ok := r.overrides[event.RemoteData.ExternalID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	decoded.LineID = ""
	if override == clearSentinel {
		decoded.TripID = ""
		decoded.TripNumber = ""
		return
	}
	decoded.TripID = override
	decoded.TripNumber = override
}

// EnvTruthy reports whether the named environment variable holds one of
// "1", "true", "yes", or "on" (case-insensitive, trimmed).
func EnvTruthy(key string) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
