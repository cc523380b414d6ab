package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/aklnz/realtime-transit-engine/internal/godmode"
)

func withParams(method, path string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGodModeHandlerSetTripWhenEnabled(t *testing.T) {
	registry := godmode.New(true)
	h := NewGodModeHandler(registry)

	req := withParams(http.MethodGet, "/god-mode/set-trip/1234/5678", map[string]string{
		"vehicle_id": "1234",
		"trip_id":    "5678",
	})
	rec := httptest.NewRecorder()
	h.SetTrip(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGodModeHandlerNotFoundWhenDisabled(t *testing.T) {
	registry := godmode.New(false)
	h := NewGodModeHandler(registry)

	req := withParams(http.MethodGet, "/god-mode/reset/1234", map[string]string{"vehicle_id": "1234"})
	rec := httptest.NewRecorder()
	h.Reset(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGodModeHandlerResetAllSentinel(t *testing.T) {
	registry := godmode.New(true)
	registry.SetVehicleToTrip("1234", "5678")
	h := NewGodModeHandler(registry)

	req := withParams(http.MethodGet, "/god-mode/reset/all", map[string]string{"vehicle_id": "all"})
	rec := httptest.NewRecorder()
	h.Reset(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if registry.Describe() != "[]" {
		t.Errorf("describe = %q, want empty array after reset-all", registry.Describe())
	}
}
