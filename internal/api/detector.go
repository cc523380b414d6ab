package api

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/aklnz/realtime-transit-engine/internal/detector"
)

// DetectionRunner triggers an on-demand detector pass; satisfied by
// *internal/detector.Detector.
type DetectionRunner interface {
	Detect(ctx context.Context) ([]detector.Detection, error)
}

// DetectorHandler exposes the lost-connection detector as an operator-
// triggered job, for use alongside (or in place of) its scheduled ticker.
type DetectorHandler struct {
	runner DetectionRunner
}

func NewDetectorHandler(runner DetectionRunner) *DetectorHandler {
	return &DetectorHandler{runner: runner}
}

func (h *DetectorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	detections, err := h.runner.Detect(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("detector run failed")
		WriteAPIError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detections)
}
