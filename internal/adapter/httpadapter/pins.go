package httpadapter

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/geocoding"
)

// DeletePasswordHeader carries the shared deletion secret.
const DeletePasswordHeader = "X-Delete-Password"

const maxPinBodyBytes = 64 << 10

// pinView adds the cached location label to a stored pin.
type pinView struct {
	domain.Pin
	Label string `json:"label"`
}

func (a *API) view(p domain.Pin) pinView {
	st := geocoding.State{Status: geocoding.StatusLoading}
	if loc, ok := a.cfg.Geocoder.Cached(p.Position.Lat, p.Position.Lon); ok {
		st = geocoding.State{Status: geocoding.StatusResolved, Location: loc}
	}
	return pinView{Pin: p, Label: geocoding.Label(st)}
}

func (a *API) handleListPins(w http.ResponseWriter, r *http.Request) {
	pins, err := a.cfg.Pins.List(r.Context())
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	out := make([]pinView, len(pins))
	for i, p := range pins {
		out[i] = a.view(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetPin(w http.ResponseWriter, r *http.Request) {
	pin, err := a.cfg.Pins.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.view(pin))
}

func (a *API) handleCreatePin(w http.ResponseWriter, r *http.Request) {
	var in domain.NewPinInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPinBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pin body")
		return
	}
	if strings.TrimSpace(in.PlaceName) == "" || strings.TrimSpace(in.AddedBy) == "" {
		writeError(w, http.StatusBadRequest, "location and addedBy are required")
		return
	}
	pin, err := a.cfg.Pins.Create(r.Context(), in)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.view(pin))
}

func (a *API) handleDeletePin(w http.ResponseWriter, r *http.Request) {
	err := a.cfg.Pins.Delete(r.Context(), chi.URLParam(r, "id"), r.Header.Get(DeletePasswordHeader))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type authorizeRequest struct {
	Password string `json:"password"`
}

// handleAuthorize lets the UI check the deletion secret before showing
// delete controls.
func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPinBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := a.cfg.Pins.Authorize(req.Password); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
