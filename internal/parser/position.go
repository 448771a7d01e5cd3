// Package parser decodes inbound position messages. Two wire forms are
// accepted: an NMEA GGA sentence (any talker prefix) and a JSON object in one
// of several known key layouts.
package parser

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/wintech-vn/drilltrack/internal/model"
)

// ErrNoPosition is returned when a message carries no usable coordinates.
// It marks a droppable message, not a fault.
var ErrNoPosition = errors.New("no position found in message")

// extractRule describes one accepted JSON layout: an object path to descend
// into (empty for the top level) and the key aliases for each coordinate.
// Rules are evaluated in order and the first one yielding both latitude and
// longitude wins; elevation is taken from the same rule if present. Adding a
// new accepted schema is a table edit.
type extractRule struct {
	path     []string
	latKeys  []string
	lonKeys  []string
	elevKeys []string
}

var extractRules = []extractRule{
	{
		path:     nil,
		latKeys:  []string{"lat", "latitude", "gps_lat"},
		lonKeys:  []string{"lon", "longitude", "gps_lon"},
		elevKeys: []string{"elevation", "alt", "gps_elevation"},
	},
	{
		path:     []string{"gps"},
		latKeys:  []string{"lat", "latitude"},
		lonKeys:  []string{"lon", "longitude"},
		elevKeys: []string{"elevation", "alt"},
	},
	{
		path:     []string{"location"},
		latKeys:  []string{"lat", "latitude"},
		lonKeys:  []string{"lon", "longitude"},
		elevKeys: []string{"elevation", "alt"},
	},
	{
		path:     []string{"gnss"},
		latKeys:  []string{"lat", "latitude"},
		lonKeys:  []string{"lon", "longitude"},
		elevKeys: []string{"elevation", "alt"},
	},
}

// Parse decodes a raw payload into a position fix. The sentence form is tried
// first, then the structured form. ErrNoPosition is returned when neither
// yields both coordinates.
func Parse(payload []byte, receivedAt time.Time) (model.PositionFix, error) {
	text := strings.TrimSpace(string(payload))

	if strings.HasPrefix(text, "$") {
		if fix, ok := parseGGA(text, receivedAt); ok {
			return fix, nil
		}
	}

	if fix, ok := parseStructured(payload, receivedAt); ok {
		return fix, nil
	}

	return model.PositionFix{}, ErrNoPosition
}

// parseGGA parses an NMEA GGA positioning sentence. Any three-letter talker
// prefix is accepted as long as "GGA" appears within the first 7 characters,
// e.g. $GPGGA, $GNGGA, $GLGGA, $GAGGA, $BDGGA.
//
// Field layout:
//
//	$xxGGA,time,lat,NS,lon,EW,quality,numSV,HDOP,alt,altUnit,sep,sepUnit,diffAge,diffStation*cs
func parseGGA(sentence string, receivedAt time.Time) (model.PositionFix, bool) {
	head := sentence
	if len(head) > 7 {
		head = head[:7]
	}
	if !strings.HasPrefix(sentence, "$") || !strings.Contains(head, "GGA") {
		return model.PositionFix{}, false
	}

	fields := strings.Split(sentence, ",")
	if len(fields) < 10 {
		return model.PositionFix{}, false
	}

	lat, ok := parseCoordinate(fields[2], fields[3], "S")
	if !ok {
		return model.PositionFix{}, false
	}
	lon, ok := parseCoordinate(fields[4], fields[5], "W")
	if !ok {
		return model.PositionFix{}, false
	}

	// Altitude defaults to 0 when unparseable; the fix is still usable.
	alt, err := strconv.ParseFloat(fields[9], 64)
	if err != nil {
		alt = 0
	}

	return model.PositionFix{
		Latitude:   lat,
		Longitude:  lon,
		Elevation:  &alt,
		ReceivedAt: receivedAt,
	}, true
}

// parseCoordinate converts an NMEA DDMM.MMMMM (or DDDMM.MMMMM) magnitude plus
// hemisphere letter into signed decimal degrees. The whole-degree part ends
// exactly two digits before the decimal point; the rest is minutes.
func parseCoordinate(raw, hemisphere, negative string) (float64, bool) {
	if raw == "" || hemisphere == "" {
		return 0, false
	}
	dot := strings.IndexByte(raw, '.')
	if dot < 2 {
		return 0, false
	}

	degrees, err := strconv.ParseFloat(raw[:dot-2], 64)
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(raw[dot-2:], 64)
	if err != nil {
		return 0, false
	}

	value := degrees + minutes/60
	if hemisphere == negative {
		value = -value
	}
	return value, true
}

// parseStructured decodes a JSON object and walks the extraction-rule table.
func parseStructured(payload []byte, receivedAt time.Time) (model.PositionFix, bool) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return model.PositionFix{}, false
	}

	for _, rule := range extractRules {
		target := obj
		ok := true
		for _, seg := range rule.path {
			nested, found := target[seg].(map[string]any)
			if !found {
				ok = false
				break
			}
			target = nested
		}
		if !ok {
			continue
		}

		lat, latOK := firstNumber(target, rule.latKeys)
		lon, lonOK := firstNumber(target, rule.lonKeys)
		if !latOK || !lonOK {
			continue
		}

		fix := model.PositionFix{
			Latitude:   lat,
			Longitude:  lon,
			ReceivedAt: receivedAt,
		}
		if elev, elevOK := firstNumber(target, rule.elevKeys); elevOK {
			fix.Elevation = &elev
		}
		return fix, true
	}

	return model.PositionFix{}, false
}

// firstNumber returns the value of the first alias present in the object, in
// listed order. Values may be JSON numbers or numeric strings.
func firstNumber(obj map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		v, present := obj[key]
		if !present {
			continue
		}
		if f, ok := asFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
