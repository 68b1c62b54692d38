package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// cacheKeyPrecision is the number of decimal places kept when quantizing a
// coordinate into a CacheKey.
const cacheKeyPrecision = 4

// Coordinate is a validated WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CacheKey identifies a quantized coordinate in the resolution cache.
type CacheKey string

// ValidateCoordinate checks that lat and lon are finite and within range.
func ValidateCoordinate(lat, lon float64) (Coordinate, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return Coordinate{}, &InvalidCoordinateError{Field: "lat", Value: strconv.FormatFloat(lat, 'g', -1, 64), Reason: "not a finite number"}
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return Coordinate{}, &InvalidCoordinateError{Field: "lon", Value: strconv.FormatFloat(lon, 'g', -1, 64), Reason: "not a finite number"}
	}
	if lat < -90 || lat > 90 {
		return Coordinate{}, &InvalidCoordinateError{Field: "lat", Value: strconv.FormatFloat(lat, 'g', -1, 64), Reason: "out of range [-90, 90]"}
	}
	if lon < -180 || lon > 180 {
		return Coordinate{}, &InvalidCoordinateError{Field: "lon", Value: strconv.FormatFloat(lon, 'g', -1, 64), Reason: "out of range [-180, 180]"}
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// RequireCoordinate validates a decoded pair whose fields may be absent.
// A nil field is reported as missing rather than read as zero.
func RequireCoordinate(lat, lon *float64) (Coordinate, error) {
	if lat == nil {
		return Coordinate{}, &InvalidCoordinateError{Field: "lat", Reason: "missing"}
	}
	if lon == nil {
		return Coordinate{}, &InvalidCoordinateError{Field: "lon", Reason: "missing"}
	}
	return ValidateCoordinate(*lat, *lon)
}

// ParseCoordinate parses textual latitude and longitude (query parameters,
// CLI arguments) and validates the result.
func ParseCoordinate(lat, lon string) (Coordinate, error) {
	latVal, err := parseComponent("lat", lat)
	if err != nil {
		return Coordinate{}, err
	}
	lonVal, err := parseComponent("lon", lon)
	if err != nil {
		return Coordinate{}, err
	}
	return ValidateCoordinate(latVal, lonVal)
}

func parseComponent(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &InvalidCoordinateError{Field: field, Reason: "missing"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &InvalidCoordinateError{Field: field, Value: raw, Reason: "not a number"}
	}
	return v, nil
}

// Key quantizes the coordinate to cacheKeyPrecision decimal places.
func (c Coordinate) Key() CacheKey {
	return CacheKey(fmt.Sprintf("%.*f,%.*f", cacheKeyPrecision, quantize(c.Lat), cacheKeyPrecision, quantize(c.Lon)))
}

// quantize rounds v to cacheKeyPrecision places and folds -0 into 0 so both
// sides of the equator and the meridian share keys near zero.
func quantize(v float64) float64 {
	scale := math.Pow10(cacheKeyPrecision)
	q := math.Round(v*scale) / scale
	if q == 0 {
		return 0
	}
	return q
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}
