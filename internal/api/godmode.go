package api

import (
	"net/http"

	"github.com/aklnz/realtime-transit-engine/internal/apperr"
	"github.com/aklnz/realtime-transit-engine/internal/godmode"
)

// resetAllVehicleID is the sentinel path value that resets every vehicle's
// override rather than a single one, matching GET /god-mode/reset/all.
const resetAllVehicleID = "all"

// okResponse is the generic acknowledgement body GodMode endpoints reply
// with on success.
type okResponse struct {
	Message string `json:"message"`
}

// GodModeHandler exposes the operator-only per-vehicle trip-id override
// table. Every route replies 404 when the registry was constructed
// disabled, matching the feature flag's all-or-nothing gating.
type GodModeHandler struct {
	registry *godmode.Registry
}

func NewGodModeHandler(registry *godmode.Registry) *GodModeHandler {
	return &GodModeHandler{registry: registry}
}

func (h *GodModeHandler) SetTrip(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Enabled() {
		WriteAPIError(w, apperr.NotFound("god mode is disabled"))
		return
	}

	vehicleID, err := PathString(r, "vehicle_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	tripID, err := PathString(r, "trip_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.registry.SetVehicleToTrip(vehicleID, tripID)
	WriteJSON(w, http.StatusOK, okResponse{Message: "Ok"})
}

func (h *GodModeHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Enabled() {
		WriteAPIError(w, apperr.NotFound("god mode is disabled"))
		return
	}

	vehicleID, err := PathString(r, "vehicle_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if vehicleID == resetAllVehicleID {
		h.registry.ResetAll()
	} else {
		h.registry.ResetVehicle(vehicleID)
	}
	WriteJSON(w, http.StatusOK, okResponse{Message: "Ok"})
}

func (h *GodModeHandler) Describe(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Enabled() {
		WriteAPIError(w, apperr.NotFound("god mode is disabled"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.registry.Describe()))
}
