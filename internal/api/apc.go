package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

// dilaxAPCTopic is the un-prefixed topic Dilax APC payloads are republished
// to for downstream enrichment.
const dilaxAPCTopic = "realtime-dilax-apc.v2"

// undefinedDilaxKey is the partition key used when an inbound Dilax event
// carries no device/site identifier. Grounded on
// original_source/crates/dilax-apc-connector/src/handler.rs's handling of a
// missing device.
const undefinedDilaxKey = "undefined"

// DilaxHandler is the APC ingress bridge: it decodes the inbound JSON event
// (only to derive its partition key), republishes the re-serialized event
// to realtime-dilax-apc.v2, and replies with a plain "OK". Enrichment
// (vehicle/trip/stop resolution) happens downstream in
// internal/dilaxadapter, consuming the republished message — this handler
// never calls into that package directly.
type DilaxHandler struct {
	publisher Publisher
}

func NewDilaxHandler(publisher Publisher) *DilaxHandler {
	return &DilaxHandler{publisher: publisher}
}

func (h *DilaxHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var event domain.DilaxMessage
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid dilax message: "+err.Error())
		return
	}

	key := event.Device.Site
	if key == "" {
		key = undefinedDilaxKey
	}

	payload, err := json.Marshal(event)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to encode dilax message")
		return
	}

	if err := h.publisher.Publish(r.Context(), dilaxAPCTopic, key, payload); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to publish dilax message")
		WriteError(w, http.StatusInternalServerError, "failed to forward dilax message")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, "OK")
}
