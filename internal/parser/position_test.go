package parser

import (
	"errors"
	"math"
	"testing"
	"time"
)

const ggaSentence = "$GPGGA,090110,2104.431759,N,10546.62665,E,1,28,1.1,.00,M,-13.46,M,43,*66"

func TestParse_GGASentence(t *testing.T) {
	now := time.Now()
	fix, err := Parse([]byte(ggaSentence), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(fix.Latitude-21.07386265) > 1e-6 {
		t.Errorf("expected lat ~21.07386, got %f", fix.Latitude)
	}
	if math.Abs(fix.Longitude-105.77711083) > 1e-6 {
		t.Errorf("expected lon ~105.77711, got %f", fix.Longitude)
	}
	if !fix.HasElevation() {
		t.Fatal("expected elevation present")
	}
	if *fix.Elevation != 0 {
		t.Errorf("expected elevation 0 (field \".00\"), got %f", *fix.Elevation)
	}
	if !fix.ReceivedAt.Equal(now) {
		t.Errorf("expected receivedAt %v, got %v", now, fix.ReceivedAt)
	}
}

func TestParse_GGATalkerPrefixes(t *testing.T) {
	variants := []string{
		"$GNGGA,090110,2104.431759,N,10546.62665,E,1,28,1.1,.00,M,-13.46,M,43,*66",
		"$GLGGA,090110,2104.431759,N,10546.62665,E,1,28,1.1,.00,M,-13.46,M,43,*66",
		"$BDGGA,090110,2104.431759,N,10546.62665,E,1,28,1.1,.00,M,-13.46,M,43,*66",
	}

	want, err := Parse([]byte(ggaSentence), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, sentence := range variants {
		fix, err := Parse([]byte(sentence), time.Time{})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", sentence[:6], err)
		}
		if fix.Latitude != want.Latitude || fix.Longitude != want.Longitude {
			t.Errorf("%s: expected same coordinates as $GPGGA, got %f,%f",
				sentence[:6], fix.Latitude, fix.Longitude)
		}
	}
}

func TestParse_GGASouthWestHemispheres(t *testing.T) {
	sentence := "$GPGGA,090110,2104.431759,S,10546.62665,W,1,28,1.1,12.5,M,-13.46,M,43,*66"
	fix, err := Parse([]byte(sentence), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.Latitude >= 0 {
		t.Errorf("expected negative latitude, got %f", fix.Latitude)
	}
	if fix.Longitude >= 0 {
		t.Errorf("expected negative longitude, got %f", fix.Longitude)
	}
	if *fix.Elevation != 12.5 {
		t.Errorf("expected elevation 12.5, got %f", *fix.Elevation)
	}
}

func TestParse_GGATooFewFields(t *testing.T) {
	_, err := Parse([]byte("$GPGGA,090110,2104.431759,N,10546.62665,E"), time.Time{})
	if !errors.Is(err, ErrNoPosition) {
		t.Errorf("expected ErrNoPosition, got %v", err)
	}
}

func TestParse_GGAMissingCoordinate(t *testing.T) {
	sentence := "$GPGGA,090110,,N,10546.62665,E,1,28,1.1,.00,M,-13.46,M,43,*66"
	_, err := Parse([]byte(sentence), time.Time{})
	if !errors.Is(err, ErrNoPosition) {
		t.Errorf("expected ErrNoPosition for empty latitude field, got %v", err)
	}
}

func TestParse_StructuredFlatAndNestedAgree(t *testing.T) {
	flat, err := Parse([]byte(`{"latitude": 21.03, "longitude": 105.85}`), time.Time{})
	if err != nil {
		t.Fatalf("flat: unexpected error: %v", err)
	}
	nested, err := Parse([]byte(`{"gps": {"lat": 21.03, "lon": 105.85}}`), time.Time{})
	if err != nil {
		t.Fatalf("nested: unexpected error: %v", err)
	}

	if flat.Latitude != nested.Latitude || flat.Longitude != nested.Longitude {
		t.Errorf("expected identical fixes, got %+v and %+v", flat, nested)
	}
	if flat.HasElevation() || nested.HasElevation() {
		t.Error("expected no elevation for either layout")
	}
}

func TestParse_StructuredAliasPrecedence(t *testing.T) {
	fix, err := Parse([]byte(`{"lat": 1, "latitude": 2, "lon": 3, "longitude": 4}`), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.Latitude != 1 || fix.Longitude != 3 {
		t.Errorf("expected first alias to win (1, 3), got (%f, %f)", fix.Latitude, fix.Longitude)
	}
}

func TestParse_StructuredNestedFallbackOrder(t *testing.T) {
	// "location" is only consulted when the top level and "gps" yield nothing.
	fix, err := Parse([]byte(`{"location": {"lat": 10.5, "lon": 20.25, "alt": 3}}`), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.Latitude != 10.5 || fix.Longitude != 20.25 {
		t.Errorf("expected 10.5,20.25, got %f,%f", fix.Latitude, fix.Longitude)
	}
	if !fix.HasElevation() || *fix.Elevation != 3 {
		t.Errorf("expected elevation 3, got %+v", fix.Elevation)
	}

	fix, err = Parse([]byte(`{"gnss": {"latitude": "-33.5", "longitude": "151.2"}}`), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.Latitude != -33.5 || fix.Longitude != 151.2 {
		t.Errorf("expected numeric strings accepted, got %f,%f", fix.Latitude, fix.Longitude)
	}
}

func TestParse_StructuredGpsFieldKeys(t *testing.T) {
	fix, err := Parse([]byte(`{"gps_lat": 21.03, "gps_lon": 105.85, "gps_elevation": 7.5}`), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.Latitude != 21.03 || fix.Longitude != 105.85 {
		t.Errorf("expected 21.03,105.85, got %f,%f", fix.Latitude, fix.Longitude)
	}
	if !fix.HasElevation() || *fix.Elevation != 7.5 {
		t.Errorf("expected elevation 7.5, got %+v", fix.Elevation)
	}
}

func TestParse_NoPosition(t *testing.T) {
	cases := [][]byte{
		[]byte(`{"foo": "bar"}`),
		[]byte(`{"lat": 21.03}`),
		[]byte(`{"gps": "not an object"}`),
		[]byte("not json at all"),
		[]byte(""),
		[]byte(`[1, 2, 3]`),
	}
	for _, payload := range cases {
		if _, err := Parse(payload, time.Time{}); !errors.Is(err, ErrNoPosition) {
			t.Errorf("payload %q: expected ErrNoPosition, got %v", payload, err)
		}
	}
}
