package httpadapter

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/pinmap-service/internal/adapter/memory"
	"github.com/couchcryptid/pinmap-service/internal/pins"
)

type uploadResponse struct {
	URL string `json:"url"`
}

// handleUploadImage accepts a multipart "file" field.
func (a *API) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	url, err := a.cfg.Pins.UploadImage(r.Context(), header.Filename, contentType, file)
	if err != nil {
		if errors.Is(err, pins.ErrUnsupportedImage) {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{URL: url})
}

func (a *API) handleGetImage(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Images == nil {
		http.NotFound(w, r)
		return
	}
	img, err := a.cfg.Images.Open(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, memory.ErrImageNotFound) {
			http.NotFound(w, r)
			return
		}
		a.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(img.Data)
}
