// Package r9k validates and transforms KiwiRail's R9K train-signalling XML
// feed into SmarTrak location events fanned out to every vehicle currently
// allocated to the reporting train. Grounded on
// original_source/crates/r9k-position/src/r9k.rs (R9kMessage, TrainUpdate,
// Change, ChangeType, validate) and handler.rs (into_events).
package r9k

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/aklnz/realtime-transit-engine/internal/apperr"
	"github.com/aklnz/realtime-transit-engine/internal/clock"
)

// MaxDelaySecs is how far behind "now" a message's event time may be before
// it is considered Outdated.
const MaxDelaySecs int64 = 60

// MinDelaySecs is how far ahead of "now" a message's event time may be
// before it is considered WrongTime (the message is from the future).
const MinDelaySecs int64 = -30

// r9kDateLayout is the `dd/mm/yyyy` layout KiwiRail sends createdDate as.
const r9kDateLayout = "02/01/2006"

// Parse decodes raw R9K XML into a TrainUpdate. The root element carries
// both the envelope and payload fields, matching the original's flattened
// `ActualizarDatosTren` struct.
func Parse(raw []byte) (TrainUpdate, error) {
	var update TrainUpdate
	if err := xml.Unmarshal(raw, &update); err != nil {
		return TrainUpdate{}, apperr.InvalidMessage(fmt.Sprintf("failed to deserialize message: %v", err))
	}
	return update, nil
}

// TrainUpdate is the R9K train update, in the field names KiwiRail uses
// (Spanish), as received from the R9000 provider.
type TrainUpdate struct {
	XMLName xml.Name `xml:"ActualizarDatosTren"`

	// EvenTrainID is the train id for even-numbered trains.
	EvenTrainID string `xml:"trenPar"`

	// OddTrainID is the train id for odd-numbered trains.
	OddTrainID string `xml:"trenImpar"`

	// CreatedDate is the update's creation date, `dd/mm/yyyy`.
	CreatedDate string `xml:"fechaCreacion"`

	RegistrationNumber string `xml:"numeroRegistro"`
	TrainType          string `xml:"operadorComercial"`
	TrainTypeCode      string `xml:"codigoOperadorComercial"`
	FullTrain          string `xml:"trenCompleto"`
	Source             string `xml:"origenActualizaTren"`

	// Changes lists one entry per station. Only the first entry reflects
	// an actual update; the remainder is schedule-only.
	Changes []Change `xml:"pasoTren"`
}

// TrainID returns the train id, preferring even over odd.
func (t TrainUpdate) TrainID() string {
	if t.EvenTrainID != "" {
		return t.EvenTrainID
	}
	return t.OddTrainID
}

// Change is a single station entry within a train update.
type Change struct {
	Type    ChangeType `xml:"tipoCambio"`
	Station uint32     `xml:"estacion"`
	EntryID string     `xml:"idPaso"`

	// ArrivalTime is the scheduled arrival, in seconds from CreatedDate at
	// midnight.
	ArrivalTime int32 `xml:"horaEntrada"`

	// ActualArrivalTime is the actual (or estimated) arrival, in seconds
	// from CreatedDate at midnight; -1 if unavailable.
	ActualArrivalTime int32 `xml:"horaEntradaReal"`
	HasArrived        bool  `xml:"haEntrado"`
	ArrivalDelay      int32 `xml:"retrasoEntrada"`

	// DepartureTime is the scheduled departure, in seconds from
	// CreatedDate at midnight.
	DepartureTime int32 `xml:"horaSalida"`

	// ActualDepartureTime is the actual (or estimated) departure, in
	// seconds from CreatedDate at midnight; -1 if unavailable.
	ActualDepartureTime int32 `xml:"horaSalidaReal"`
	HasDeparted         bool  `xml:"haSalido"`
	DepartureDelay      int32 `xml:"retrasoSalida"`

	DetentionTime     int32  `xml:"horaInicioDetencion"`
	DetentionDuration int32  `xml:"duracionDetencion"`
	Platform          string `xml:"viaEntradaMallas"`
	ExitLine          string `xml:"viaCirculacionMallas"`
	TrainDirection    int8   `xml:"sentido"`
	StopType          int8   `xml:"tipoParada"`
	Parity            string `xml:"paridad"`
}

// ChangeType is the type of change that triggered the update message.
type ChangeType uint8

const (
	ExitedFirstStation           ChangeType = 1
	ReachedFinalDestination      ChangeType = 2
	ArrivedAtStation             ChangeType = 3
	ExitedStation                ChangeType = 4
	PassedStationWithoutStopping ChangeType = 5
	DetainedInPark               ChangeType = 6
	DetainedAtStation            ChangeType = 7
	StationNoLongerPartOfTheRun  ChangeType = 8
	PlatformChange               ChangeType = 9
	ExitLineChange               ChangeType = 10
	ScheduleChange               ChangeType = 11
)

func (c ChangeType) String() string {
	switch c {
	case ReachedFinalDestination:
		return "ReachedFinalDestination"
	case ArrivedAtStation:
		return "ArrivedAtStation"
	case ExitedFirstStation:
		return "ExitedFirstStation"
	case ExitedStation:
		return "ExitedStation"
	case PassedStationWithoutStopping:
		return "PassedStationWithoutStopping"
	case DetainedInPark:
		return "DetainedInPark"
	case DetainedAtStation:
		return "DetainedAtStation"
	case StationNoLongerPartOfTheRun:
		return "StationNoLongerPartOfTheRun"
	case PlatformChange:
		return "PlatformChange"
	case ExitLineChange:
		return "ExitLineChange"
	case ScheduleChange:
		return "ScheduleChange"
	default:
		return fmt.Sprintf("ChangeType(%d)", uint8(c))
	}
}

// IsRelevant reports whether this change type reflects trip progress worth
// acting on, as opposed to a platform/schedule housekeeping update.
func (c ChangeType) IsRelevant() bool {
	switch c {
	case ReachedFinalDestination, ArrivedAtStation, ExitedFirstStation, ExitedStation,
		PassedStationWithoutStopping, ScheduleChange:
		return true
	default:
		return false
	}
}

// IsArrival reports whether this change type represents the train arriving
// at (or reaching the final destination of) a station, as opposed to
// departing it.
func (c ChangeType) IsArrival() bool {
	return c == ArrivedAtStation || c == ReachedFinalDestination
}

// Validate checks the update carries a genuine, timely change. It returns
// NoUpdate if there are no changes, NoActualUpdate if the arrival/departure
// time is non-positive, Outdated if the message is too old, and WrongTime
// if the message is from the future or its creation date cannot be
// resolved.
func (t TrainUpdate) Validate(clk clock.Clock) error {
	if len(t.Changes) == 0 {
		return apperr.NoUpdate()
	}

	change := t.Changes[0]
	var fromMidnight int32
	switch {
	case change.HasDeparted:
		fromMidnight = change.ActualDepartureTime
	case change.HasArrived:
		fromMidnight = change.ActualArrivalTime
	default:
		return apperr.NoActualUpdate()
	}
	if fromMidnight <= 0 {
		return apperr.NoActualUpdate()
	}

	createdDate, err := time.ParseInLocation(r9kDateLayout, t.CreatedDate, clk.Location())
	if err != nil {
		return apperr.WrongTime(fmt.Sprintf("invalid created date %q: %v", t.CreatedDate, err))
	}

	midnight := time.Date(createdDate.Year(), createdDate.Month(), createdDate.Day(), 0, 0, 0, 0, clk.Location())
	eventTime := midnight.Add(time.Duration(fromMidnight) * time.Second)
	delaySecs := clk.Now().Unix() - eventTime.Unix()

	if delaySecs > MaxDelaySecs {
		return apperr.Outdated(fmt.Sprintf("message delayed by %d seconds", delaySecs))
	}
	if delaySecs < MinDelaySecs {
		return apperr.WrongTime(fmt.Sprintf("message ahead by %d seconds", delaySecs))
	}
	return nil
}
