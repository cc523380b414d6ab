package r9k

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/clock"
	"github.com/aklnz/realtime-transit-engine/internal/domain"
)

// OutboundTopic is the un-prefixed topic name SmarTrak location events
// derived from an R9K update are published to; the dispatch layer adds the
// `{ENV}-` prefix.
const OutboundTopic = "realtime-r9k-to-smartrak.v1"

// defaultPublishGap is the delay between the first and second publish round.
const defaultPublishGap = 5 * time.Second

// AllocationLookup resolves the vehicles currently allocated to a train,
// keyed by its externalRefId; satisfied by *internal/adapters.BlockMgt.
type AllocationLookup interface {
	AllocatedTrains(ctx context.Context, externalRefID string) ([]string, error)
}

// Publisher publishes an outbound payload under topic, keyed for
// downstream partition affinity; satisfied by the messaging client.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Transformer expands a validated R9K train update into SmarTrak location
// events, one per vehicle currently allocated to the reporting train, and
// double-publishes them 5 seconds apart. Grounded on
// original_source/crates/r9k-position/src/handler.rs's into_events.
type Transformer struct {
	stops       StopResolver
	allocations AllocationLookup
	clock       clock.Clock
	log         zerolog.Logger
	publishGap  time.Duration
}

func New(stops StopResolver, allocations AllocationLookup, clk clock.Clock, log zerolog.Logger) *Transformer {
	return &Transformer{stops: stops, allocations: allocations, clock: clk, log: log, publishGap: defaultPublishGap}
}

// WithPublishGap overrides the delay between publish rounds; tests use this
// to avoid a real 5-second sleep.
func (tr *Transformer) WithPublishGap(gap time.Duration) *Transformer {
	tr.publishGap = gap
	return tr
}

// Events expands update into the SmarTrak location events it implies.
// Returns an empty slice (not an error) when the leading change is
// irrelevant to trip progress, or its station is not one this service
// tracks — both are ordinary, expected outcomes, not failures.
func (tr *Transformer) Events(ctx context.Context, update TrainUpdate) ([]domain.SmarTrakMessage, error) {
	change := update.Changes[0]

	if !change.Type.IsRelevant() {
		tr.log.Info().Str("change_type", change.Type.String()).Msg("irrelevant change type")
		return nil, nil
	}

	stop, err := stopInfo(ctx, tr.stops, change.Station, change.Type.IsArrival())
	if err != nil {
		return nil, err
	}
	if stop == nil {
		tr.log.Info().Uint32("station", change.Station).Msg("irrelevant station")
		return nil, nil
	}

	trains, err := tr.allocations.AllocatedTrains(ctx, update.TrainID())
	if err != nil {
		return nil, err
	}

	events := make([]domain.SmarTrakMessage, 0, len(trains))
	for _, train := range trains {
		externalID := strings.ReplaceAll(train, " ", "")
		events = append(events, domain.SmarTrakMessage{
			EventType:  domain.SmarTrakEventLocation,
			RemoteData: &domain.RemoteData{ExternalID: externalID},
			LocationData: domain.LocationData{
				Latitude:  &stop.StopLat,
				Longitude: &stop.StopLon,
			},
		})
	}
	return events, nil
}

// Publish stamps events with the current time and publishes them, then
// sleeps publishGap and republishes the same events with a fresh
// timestamp — the feed's deliberate double-publish, preserved verbatim
// because downstream consumers rely on seeing the update twice.
func (tr *Transformer) Publish(ctx context.Context, events []domain.SmarTrakMessage, publisher Publisher) error {
	if len(events) == 0 {
		return nil
	}

	if err := tr.publishRound(ctx, events, publisher); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(tr.publishGap):
	}

	return tr.publishRound(ctx, events, publisher)
}

func (tr *Transformer) publishRound(ctx context.Context, events []domain.SmarTrakMessage, publisher Publisher) error {
	timestamp := tr.clock.Now().Format("2006-01-02T15:04:05.000Z07:00")
	for _, event := range events {
		event.MessageData = domain.MessageData{Timestamp: timestamp}

		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if err := publisher.Publish(ctx, OutboundTopic, event.RemoteData.ExternalID, payload); err != nil {
			return err
		}
	}
	return nil
}
