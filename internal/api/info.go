package api

import (
	"context"
	"net/http"

	"github.com/aklnz/realtime-transit-engine/internal/smartrak"
)

// VehicleInfoReader reads a vehicle's current trip binding, sign-on, and
// fleet record; satisfied by *internal/smartrak.Info.
type VehicleInfoReader interface {
	VehicleInfo(ctx context.Context, vehicleID string) (smartrak.VehicleInfo, error)
}

// InfoHandler exposes the cached SmarTrak vehicle binding for operator and
// downstream-service inspection.
type InfoHandler struct {
	info VehicleInfoReader
}

func NewInfoHandler(info VehicleInfoReader) *InfoHandler {
	return &InfoHandler{info: info}
}

func (h *InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := PathString(r, "vehicle_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.info.VehicleInfo(r.Context(), vehicleID)
	if err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, info)
}
