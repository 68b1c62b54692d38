package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/couchcryptid/pinmap-service/internal/domain"
)

const userAgent = "pinmap-service (+https://github.com/couchcryptid/pinmap-service)"

// Default provider endpoints.
const (
	BigDataCloudURL  = "https://api.bigdatacloud.net/data/reverse-geocode-client"
	GeocodeMapsCoURL = "https://geocode.maps.co/reverse"
	LocationIQURL    = "https://eu1.locationiq.com/v1/reverse"
	MapboxURL        = "https://api.mapbox.com/geocoding/v5/mapbox.places"
)

var errNoLocation = errors.New("response has neither city nor country")

// Provider describes one reverse-geocoding service: how to ask it and how to
// read its answer. Providers are values; the chain holds them in priority order.
type Provider struct {
	Name         string
	BuildRequest func(ctx context.Context, c domain.Coordinate) (*http.Request, error)
	Extract      func(body []byte) (domain.RawLocation, error)
}

// ProviderConfig selects and configures the default provider list.
type ProviderConfig struct {
	Language      string // BigDataCloud localityLanguage, e.g. "en" or "fr"
	LocationIQKey string // LocationIQ is skipped when empty
	MapboxToken   string // Mapbox is skipped when empty
}

// DefaultProviders returns the production chain in priority order.
func DefaultProviders(cfg ProviderConfig) []Provider {
	providers := []Provider{
		BigDataCloud(BigDataCloudURL, cfg.Language),
		GeocodeMapsCo(GeocodeMapsCoURL),
	}
	if cfg.LocationIQKey != "" {
		providers = append(providers, LocationIQ(LocationIQURL, cfg.LocationIQKey))
	}
	if cfg.MapboxToken != "" {
		providers = append(providers, Mapbox(MapboxURL, cfg.MapboxToken))
	}
	return providers
}

// BigDataCloud uses the keyless client-side reverse geocoding endpoint.
func BigDataCloud(baseURL, language string) Provider {
	if language == "" {
		language = "en"
	}
	return Provider{
		Name: "BigDataCloud",
		BuildRequest: func(ctx context.Context, c domain.Coordinate) (*http.Request, error) {
			return newGet(ctx, baseURL, url.Values{
				"latitude":         {formatDegrees(c.Lat)},
				"longitude":        {formatDegrees(c.Lon)},
				"localityLanguage": {language},
			})
		},
		Extract: func(body []byte) (domain.RawLocation, error) {
			m, err := decodeObject(body)
			if err != nil {
				return domain.RawLocation{}, err
			}
			return located(domain.RawLocation{
				City:    firstString(m, "city", "locality", "principalSubdivision"),
				Country: firstString(m, "countryName"),
			})
		},
	}
}

// GeocodeMapsCo uses the Nominatim-compatible geocode.maps.co API.
func GeocodeMapsCo(baseURL string) Provider {
	return Provider{
		Name: "Geocode.maps.co",
		BuildRequest: func(ctx context.Context, c domain.Coordinate) (*http.Request, error) {
			return newGet(ctx, baseURL, url.Values{
				"lat":    {formatDegrees(c.Lat)},
				"lon":    {formatDegrees(c.Lon)},
				"format": {"json"},
			})
		},
		Extract: extractNominatim,
	}
}

// LocationIQ uses the LocationIQ reverse endpoint, which answers in Nominatim format.
func LocationIQ(baseURL, key string) Provider {
	return Provider{
		Name: "LocationIQ",
		BuildRequest: func(ctx context.Context, c domain.Coordinate) (*http.Request, error) {
			return newGet(ctx, baseURL, url.Values{
				"key":    {key},
				"lat":    {formatDegrees(c.Lat)},
				"lon":    {formatDegrees(c.Lon)},
				"format": {"json"},
			})
		},
		Extract: extractNominatim,
	}
}

// extractNominatim reads the address block shared by Nominatim-style APIs.
func extractNominatim(body []byte) (domain.RawLocation, error) {
	m, err := decodeObject(body)
	if err != nil {
		return domain.RawLocation{}, err
	}
	if msg := firstString(m, "error"); msg != "" {
		return domain.RawLocation{}, fmt.Errorf("provider error: %s", msg)
	}
	addr, _ := m["address"].(map[string]any)
	return located(domain.RawLocation{
		City:    firstString(addr, "city", "town", "village", "county"),
		Country: firstString(addr, "country"),
	})
}

// newGet builds a JSON GET request for baseURL with the given query.
func newGet(ctx context.Context, baseURL string, params url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if m == nil {
		return nil, errors.New("decode response: not a JSON object")
	}
	return m, nil
}

// firstString returns the first key whose value is a non-blank string.
// Missing keys, nulls and non-string values are skipped.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// located rejects a result that carries no location at all so the chain
// moves on instead of caching "Unknown, Unknown".
func located(loc domain.RawLocation) (domain.RawLocation, error) {
	if loc.City == "" && loc.Country == "" {
		return domain.RawLocation{}, errNoLocation
	}
	return loc, nil
}

func formatDegrees(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
