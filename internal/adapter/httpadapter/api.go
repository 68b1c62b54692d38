// Package httpadapter exposes the pin map over HTTP: the geocoding and pin
// APIs, the map gesture WebSocket, and health and metrics endpoints.
package httpadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/pinmap-service/internal/adapter/memory"
	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/geocoding"
	"github.com/couchcryptid/pinmap-service/internal/observability"
)

// Geocoder resolves coordinates to locations.
type Geocoder interface {
	Resolve(ctx context.Context, lat, lon float64) (domain.ResolvedLocation, error)
	Watch(lat, lon float64) *geocoding.Subscription
	Cached(lat, lon float64) (domain.ResolvedLocation, bool)
}

// PinService manages pins and their photos.
type PinService interface {
	List(ctx context.Context) ([]domain.Pin, error)
	Get(ctx context.Context, id string) (domain.Pin, error)
	Create(ctx context.Context, in domain.NewPinInput) (domain.Pin, error)
	Delete(ctx context.Context, id, password string) error
	Authorize(password string) error
	UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// ImageOpener serves locally stored images. Only the in-memory store has one.
type ImageOpener interface {
	Open(name string) (memory.Image, error)
}

// Config wires the API to its collaborators.
type Config struct {
	Geocoder Geocoder
	Pins     PinService
	Images   ImageOpener // optional
	Ready    sharedobs.ReadinessChecker
	Metrics  *observability.Metrics
	Logger   *slog.Logger

	// RateLimitPerMinute caps geocode requests per client IP; zero disables it.
	RateLimitPerMinute int
	GestureThreshold   float64
	MaxUploadBytes     int64
	AllowedOrigins     []string
}

// API is the HTTP handler for the service.
type API struct {
	cfg     Config
	router  chi.Router
	logger  *slog.Logger
	metrics *observability.Metrics

	base     context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

// NewAPI builds the router.
func NewAPI(cfg Config) *API {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	base, cancel := context.WithCancel(context.Background())
	a := &API{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		base:    base,
		cancel:  cancel,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(a.requestLogger)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(cfg.Ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(a.rateLimit()).Get("/geocode", a.handleGeocode)

		r.Get("/pins", a.handleListPins)
		r.Post("/pins", a.handleCreatePin)
		r.Get("/pins/{id}", a.handleGetPin)
		r.Delete("/pins/{id}", a.handleDeletePin)
		r.Post("/session", a.handleAuthorize)

		r.Post("/images", a.handleUploadImage)
		r.Get("/images/{name}", a.handleGetImage)
	})
	r.Get("/ws/map", a.handleMapSocket)

	a.router = r
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Close ends every open map session and waits for them to finish.
func (a *API) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.cancel()
	a.sessions.Wait()
}

func (a *API) rateLimit() func(http.Handler) http.Handler {
	if a.cfg.RateLimitPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		a.cfg.RateLimitPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain errors to status codes; anything unexpected is
// logged and reported as a 500 without detail.
func (a *API) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsInvalidCoordinate(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPinNotFound):
		writeError(w, http.StatusNotFound, "pin not found")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
