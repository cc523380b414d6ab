package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aklnz/realtime-transit-engine/internal/detector"
)

type fakeDetectionRunner struct {
	detections []detector.Detection
	err        error
}

func (f *fakeDetectionRunner) Detect(context.Context) ([]detector.Detection, error) {
	return f.detections, f.err
}

func TestDetectorHandlerReturnsDetections(t *testing.T) {
	runner := &fakeDetectionRunner{detections: []detector.Detection{{DetectionTime: 1}}}
	h := NewDetectorHandler(runner)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/detector", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDetectorHandlerPropagatesError(t *testing.T) {
	runner := &fakeDetectionRunner{err: errors.New("boom")}
	h := NewDetectorHandler(runner)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/detector", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
