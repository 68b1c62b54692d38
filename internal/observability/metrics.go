package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pinmap"

// Metrics holds the Prometheus counters, histograms, and gauges for the pin map service.
type Metrics struct {
	// Geocoding metrics.
	GeocodeRequests     *prometheus.CounterVec   // labels: provider, outcome={success,http_error,timeout,parse_error,rejected}
	GeocodeCache        *prometheus.CounterVec   // labels: result={hit,miss}
	GeocodeAPIDuration  *prometheus.HistogramVec // labels: provider
	GeocodeResolutions  *prometheus.CounterVec   // labels: outcome={resolved,failed,invalid,abandoned}
	LimiterInFlight     prometheus.Gauge
	LimiterBackoffs     prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec // labels: provider; 0=closed, 1=half-open, 2=open

	// Map interaction metrics.
	GesturePlacements prometheus.Counter
	GestureSessions   prometheus.Gauge

	// Pin lifecycle metrics.
	PinsCreated    prometheus.Counter
	PinsDeleted    prometheus.Counter
	PinEventErrors prometheus.Counter
	WarmupPins     prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeResolutions,
		m.LimiterInFlight,
		m.LimiterBackoffs,
		m.CircuitBreakerState,
		m.GesturePlacements,
		m.GestureSessions,
		m.PinsCreated,
		m.PinsDeleted,
		m.PinEventErrors,
		m.WarmupPins,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding provider attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Resolution cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		GeocodeResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_resolutions_total",
			Help:      "Completed location resolutions by outcome.",
		}, []string{"outcome"}),
		LimiterInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_limiter_in_flight",
			Help:      "Geocoding chain walks currently holding a limiter slot.",
		}),
		LimiterBackoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_limiter_backoffs_total",
			Help:      "Times a resolution found the limiter saturated and backed off.",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_circuit_breaker_state",
			Help:      "Provider circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"provider"}),
		GesturePlacements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gesture_placements_total",
			Help:      "Pin placement requests emitted by the gesture disambiguator.",
		}),
		GestureSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gesture_sessions",
			Help:      "Open map input sessions.",
		}),
		PinsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pins_created_total",
			Help:      "Pins created.",
		}),
		PinsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pins_deleted_total",
			Help:      "Pins deleted.",
		}),
		PinEventErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pin_event_publish_errors_total",
			Help:      "Pin lifecycle events that could not be published.",
		}),
		WarmupPins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warmup_pins_total",
			Help:      "Stored pins whose locations were resolved during cache warmup.",
		}),
	}
}
