package api

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
)

// r9kTopic is the un-prefixed topic R9K SOAP payloads are republished to
// for downstream parsing and transformation.
const r9kTopic = "realtime-r9k.v1"

// r9kTrainUpdateMarker is the element every genuine train update carries;
// its absence means the envelope is malformed or irrelevant.
const r9kTrainUpdateMarker = "<ActualizarDatosTren>"

// soapEnvelope is the R9K SOAP request shape: only the nested AXMLMessage
// payload matters to this bridge. Grounded on
// original_source/crates/r9k-connector/src/handler.rs's R9kRequest/Body/
// ReceiveMessage.
type soapEnvelope struct {
	Body struct {
		ReceiveMessage struct {
			AXMLMessage string `xml:"AXMLMessage"`
		} `xml:"ReceiveMessage"`
	} `xml:"Body"`
}

const (
	soapOKReply    = `<Return>OK</Return>`
	soapFaultReply = `<Fault><StatusCode>500</StatusCode><Response><Message>Internal Server Error</Message></Response></Fault>`
)

// SOAPHandler is the R9K ingress bridge: it decodes the SOAP envelope,
// validates the embedded train-update XML is present and well-formed
// enough to be worth forwarding, republishes it verbatim, and replies with
// the feed's canned SOAP response. All parsing/transformation of the train
// update itself happens downstream, where the republished message is
// consumed off realtime-r9k.v1 — this handler never calls into the r9k
// package directly. Grounded on the same handler.rs file's handle().
type SOAPHandler struct {
	publisher Publisher
}

func NewSOAPHandler(publisher Publisher) *SOAPHandler {
	return &SOAPHandler{publisher: publisher}
}

func (h *SOAPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.reply(w, r, http.StatusBadRequest, soapFaultReply)
		return
	}

	var envelope soapEnvelope
	if err := xml.Unmarshal(raw, &envelope); err != nil {
		h.reply(w, r, http.StatusBadRequest, soapFaultReply)
		return
	}

	message := envelope.Body.ReceiveMessage.AXMLMessage
	if message == "" || !strings.Contains(message, r9kTrainUpdateMarker) {
		h.reply(w, r, http.StatusBadRequest, soapFaultReply)
		return
	}

	if err := h.publisher.Publish(r.Context(), r9kTopic, "", []byte(message)); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to publish r9k message")
		h.reply(w, r, http.StatusInternalServerError, soapFaultReply)
		return
	}

	h.reply(w, r, http.StatusOK, soapOKReply)
}

func (h *SOAPHandler) reply(w http.ResponseWriter, _ *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// Publisher publishes an outbound payload under topic, keyed for
// downstream partition affinity; satisfied by the messaging client.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}
