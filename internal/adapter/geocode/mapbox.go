package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"

	"github.com/couchcryptid/pinmap-service/internal/domain"
)

// Mapbox uses the Mapbox Geocoding v5 API, restricted to place and country features.
func Mapbox(baseURL, token string) Provider {
	return Provider{
		Name: "Mapbox",
		BuildRequest: func(ctx context.Context, c domain.Coordinate) (*http.Request, error) {
			// Mapbox uses lon,lat order.
			coord := fmt.Sprintf("%.6f,%.6f", c.Lon, c.Lat)
			return newGet(ctx, fmt.Sprintf("%s/%s.json", baseURL, coord), url.Values{
				"access_token": {token},
				"types":        {"place,country"},
			})
		},
		Extract: extractMapbox,
	}
}

func extractMapbox(body []byte) (domain.RawLocation, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawLocation{}, fmt.Errorf("decode response: %w", err)
	}

	var loc domain.RawLocation
	for _, f := range resp.Features {
		switch {
		case loc.City == "" && f.hasType("place"):
			loc.City = f.Text
		case loc.Country == "" && f.hasType("country"):
			loc.Country = f.Text
		}
		// A place feature carries its country in the context list.
		for _, c := range f.Context {
			if loc.Country == "" && c.isType("country") {
				loc.Country = c.Text
			}
		}
	}
	return located(loc)
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	PlaceType []string         `json:"place_type"`
	Text      string           `json:"text"`
	PlaceName string           `json:"place_name"`
	Context   []featureContext `json:"context"`
}

func (f feature) hasType(t string) bool {
	for _, pt := range f.PlaceType {
		if pt == t {
			return true
		}
	}
	return false
}

type featureContext struct {
	ID   string `json:"id"` // "<type>.<id>", e.g. "country.8780"
	Text string `json:"text"`
}

func (c featureContext) isType(t string) bool {
	return len(c.ID) > len(t) && c.ID[:len(t)] == t && c.ID[len(t)] == '.'
}
