package godmode_test

import (
	"testing"

	"github.com/aklnz/realtime-transit-engine/internal/domain"
	"github.com/aklnz/realtime-transit-engine/internal/godmode"
)

func serialEvent(decoded *domain.DecodedSerialData) domain.SmarTrakMessage {
	return domain.SmarTrakMessage{
		EventType:  domain.SmarTrakEventSerialData,
		RemoteData: &domain.RemoteData{ExternalID: "veh-1"},
		SerialData: domain.SerialData{DecodedSerialData: decoded},
	}
}

func TestPreprocessIsNoOpWhenDisabled(t *testing.T) {
	r := godmode.New(false)
	r.SetVehicleToTrip("veh-1", "trip-override")

	event := serialEvent(&domain.DecodedSerialData{TripID: "trip-original"})
	r.Preprocess(&event)

	if event.SerialData.DecodedSerialData.TripID != "trip-original" {
		t.Fatalf("TripID = %q, want unchanged (registry disabled)", event.SerialData.DecodedSerialData.TripID)
	}
}

func TestPreprocessSubstitutesTripID(t *testing.T) {
	r := godmode.New(true)
	r.SetVehicleToTrip("veh-1", "trip-override")

	decoded := &domain.DecodedSerialData{TripID: "trip-original", LineID: "line-1"}
	event := serialEvent(decoded)
	r.Preprocess(&event)

	if decoded.TripID != "trip-override" || decoded.TripNumber != "trip-override" {
		t.Fatalf("decoded = %+v, want trip-override substituted", decoded)
	}
	if decoded.LineID != "" {
		t.Fatalf("LineID = %q, want cleared", decoded.LineID)
	}
}

func TestPreprocessClearsTripIDOnEmptySentinel(t *testing.T) {
	r := godmode.New(true)
	r.SetVehicleToTrip("veh-1", "empty")

	decoded := &domain.DecodedSerialData{TripID: "trip-original", TripNumber: "42"}
	event := serialEvent(decoded)
	r.Preprocess(&event)

	if decoded.TripID != "" || decoded.TripNumber != "" {
		t.Fatalf("decoded = %+v, want both cleared", decoded)
	}
}

func TestPreprocessIgnoresVehicleWithoutOverride(t *testing.T) {
	r := godmode.New(true)
	r.SetVehicleToTrip("other-vehicle", "trip-override")

	decoded := &domain.DecodedSerialData{TripID: "trip-original"}
	event := serialEvent(decoded)
	r.Preprocess(&event)

	if decoded.TripID != "trip-original" {
		t.Fatalf("TripID = %q, want unchanged (no override for this vehicle)", decoded.TripID)
	}
}

func TestResetVehicleAndResetAll(t *testing.T) {
	r := godmode.New(true)
	r.SetVehicleToTrip("veh-1", "trip-a")
	r.SetVehicleToTrip("veh-2", "trip-b")

	r.ResetVehicle("veh-1")
	decoded := &domain.DecodedSerialData{TripID: "unchanged"}
	event := serialEvent(decoded)
	r.Preprocess(&event)
	if decoded.TripID != "unchanged" {
		t.Fatalf("TripID = %q, want unchanged after ResetVehicle", decoded.TripID)
	}

	r.ResetAll()
	if r.Describe() != "[]" {
		t.Fatalf("Describe() = %q, want empty table after ResetAll", r.Describe())
	}
}

func TestPreprocessIgnoresNonSerialDataEvent(t *testing.T) {
	r := godmode.New(true)
	r.SetVehicleToTrip("veh-1", "trip-override")

	event := domain.SmarTrakMessage{
		EventType:  domain.SmarTrakEventLocation,
		RemoteData: &domain.RemoteData{ExternalID: "veh-1"},
	}
	r.Preprocess(&event)
}
