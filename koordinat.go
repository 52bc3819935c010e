package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// koordinatNotSetLabel is what list and detail payloads show for households
// without a usable position.
const koordinatNotSetLabel = "Belum diatur"

// Koordinat is a resolved geographic position. A household stores its position
// either as discrete latitude/longitude columns or as a single "lat,lng" lokasi
// string; Koordinat hides which of the two shapes the row used.
type Koordinat struct {
	Lat      float64
	Lng      float64
	Resolved bool
}

// ResolveKoordinat decides whether a household has a usable position.
// Precedence: the discrete pair wins when both values parse to finite numbers;
// otherwise the combined lokasi string is tried; otherwise the position is
// unresolved. 0,0 is a legitimate coordinate, not "unset".
func ResolveKoordinat(latitude, longitude, lokasi *string) Koordinat {
	if lat, ok := parseFiniteFloat(latitude); ok {
		if lng, ok := parseFiniteFloat(longitude); ok {
			return Koordinat{Lat: lat, Lng: lng, Resolved: true}
		}
	}
	return resolveLokasiString(lokasi)
}

// ResolveKoordinatPair resolves from already-numeric nullable columns, falling
// back to the lokasi string like ResolveKoordinat.
func ResolveKoordinatPair(latitude, longitude *float64, lokasi *string) Koordinat {
	if latitude != nil && longitude != nil && isFinite(*latitude) && isFinite(*longitude) {
		return Koordinat{Lat: *latitude, Lng: *longitude, Resolved: true}
	}
	return resolveLokasiString(lokasi)
}

func resolveLokasiString(lokasi *string) Koordinat {
	if lokasi == nil {
		return Koordinat{}
	}
	trimmed := strings.TrimSpace(*lokasi)
	if strings.Count(trimmed, ",") != 1 {
		return Koordinat{}
	}
	parts := strings.SplitN(trimmed, ",", 2)
	lat, okLat := parseFiniteFloatValue(parts[0])
	lng, okLng := parseFiniteFloatValue(parts[1])
	if !okLat || !okLng {
		return Koordinat{}
	}
	return Koordinat{Lat: lat, Lng: lng, Resolved: true}
}

func parseFiniteFloat(value *string) (float64, bool) {
	if value == nil {
		return 0, false
	}
	return parseFiniteFloatValue(*value)
}

func parseFiniteFloatValue(raw string) (float64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || !isFinite(parsed) {
		return 0, false
	}
	return parsed, true
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// IsResolvable reports whether the household has a usable position.
func (k Koordinat) IsResolvable() bool {
	return k.Resolved
}

// Format renders the position with six decimal places, or the "not set"
// sentinel when unresolved.
func (k Koordinat) Format() string {
	if !k.Resolved {
		return koordinatNotSetLabel
	}
	return fmt.Sprintf("%.6f, %.6f", k.Lat, k.Lng)
}

// GoogleMapsURL returns the external map deep link, or "" when unresolved.
// The query uses the shortest decimal form, matching what the map service
// itself produces.
func (k Koordinat) GoogleMapsURL() string {
	if !k.Resolved {
		return ""
	}
	lat := strconv.FormatFloat(k.Lat, 'f', -1, 64)
	lng := strconv.FormatFloat(k.Lng, 'f', -1, 64)
	return "https://www.google.com/maps?q=" + lat + "," + lng
}
