package httpadapter

import (
	"errors"
	"net/http"

	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/geocoding"
)

type geocodeResponse struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	City     string  `json:"city,omitempty"`
	Country  string  `json:"country,omitempty"`
	Label    string  `json:"label"`
	Resolved bool    `json:"resolved"`
}

// handleGeocode resolves ?lat=&lon=. Exhausted providers still answer 200
// with the neutral label, mirroring what the map shows.
func (a *API) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	coord, err := domain.ParseCoordinate(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loc, err := a.cfg.Geocoder.Resolve(r.Context(), coord.Lat, coord.Lon)
	switch {
	case err == nil:
		st := geocoding.State{Status: geocoding.StatusResolved, Location: loc}
		writeJSON(w, http.StatusOK, geocodeResponse{
			Lat: coord.Lat, Lon: coord.Lon,
			City: loc.City, Country: loc.Country,
			Label: geocoding.Label(st), Resolved: true,
		})
	case errors.Is(err, domain.ErrAllProvidersExhausted):
		st := geocoding.State{Status: geocoding.StatusFailed, Err: err}
		writeJSON(w, http.StatusOK, geocodeResponse{
			Lat: coord.Lat, Lon: coord.Lon,
			Label: geocoding.Label(st),
		})
	case domain.IsInvalidCoordinate(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case r.Context().Err() != nil:
		// Client went away; nothing useful to write.
	default:
		a.logger.Error("geocode failed", "lat", coord.Lat, "lon", coord.Lon, "error", err)
		writeError(w, http.StatusServiceUnavailable, geocoding.LabelUnavailable)
	}
}
