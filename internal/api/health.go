package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
)

const healthProbeKey = "healthz:probe"

// MQTTStatus reports whether the broker connection is currently up;
// satisfied by *internal/messaging.Client.
type MQTTStatus interface {
	IsConnected() bool
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Checks        map[string]string `json:"checks"`
}

// HealthHandler reports the engine's connectivity to its two hard
// dependencies: the KV store and the MQTT broker.
type HealthHandler struct {
	store     kvstore.Store
	mqtt      MQTTStatus
	version   string
	startTime time.Time
}

func NewHealthHandler(store kvstore.Store, mqtt MQTTStatus, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{store: store, mqtt: mqtt, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, 2)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.checkStore(r.Context()); err != nil {
		checks["kvstore"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["kvstore"] = "ok"
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}

func (h *HealthHandler) checkStore(ctx context.Context) error {
	_, err := h.store.Get(ctx, healthProbeKey)
	return err
}
