package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_atlas"

// Metrics holds the Prometheus counters, histograms, and gauges for the atlas service.
type Metrics struct {
	SimulationsRequested prometheus.Counter
	SimulationsApplied   *prometheus.CounterVec // labels: source={remote,fallback}
	SimulationsDiscarded prometheus.Counter
	RiseOverrides        prometheus.Counter
	LastRiseMeters       prometheus.Gauge

	// Narrative service metrics.
	NarrativeRequests *prometheus.CounterVec   // labels: operation={climate,headlines,chat}, outcome={success,error}
	NarrativeDuration *prometheus.HistogramVec // labels: operation
	Fallbacks         *prometheus.CounterVec   // labels: operation

	// Panel metrics.
	ChatMessages      *prometheus.CounterVec // labels: role={user,model}
	HeadlineRefreshes *prometheus.CounterVec // labels: source={remote,fallback}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge

	// Scene event publishing.
	ScenesPublished    prometheus.Counter
	ScenePublishErrors prometheus.Counter
	ScenesDropped      prometheus.Counter
	PublisherRunning   prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.SimulationsRequested,
		m.SimulationsApplied,
		m.SimulationsDiscarded,
		m.RiseOverrides,
		m.LastRiseMeters,
		m.NarrativeRequests,
		m.NarrativeDuration,
		m.Fallbacks,
		m.ChatMessages,
		m.HeadlineRefreshes,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
		m.ScenesPublished,
		m.ScenePublishErrors,
		m.ScenesDropped,
		m.PublisherRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics with no registration to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		SimulationsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_requested_total",
			Help:      help("Simulation requests issued after debounce or explicit trigger."),
		}),
		SimulationsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_applied_total",
			Help:      help("Snapshots applied by source of the climate narrative."),
		}, []string{"source"}),
		SimulationsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_discarded_total",
			Help:      help("Results dropped because a newer request was issued."),
		}),
		RiseOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rise_overrides_total",
			Help:      help("Remote flood altitudes replaced by the local projection."),
		}),
		LastRiseMeters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_rise_meters",
			Help:      help("Flood altitude of the most recently applied snapshot."),
		}),
		NarrativeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrative_requests_total",
			Help:      help("Narrative service requests by operation and outcome."),
		}, []string{"operation", "outcome"}),
		NarrativeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "narrative_request_duration_seconds",
			Help:      help("Narrative service request duration in seconds."),
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"operation"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      help("Deterministic fallback content served by operation."),
		}, []string{"operation"}),
		ChatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      help("Chat messages appended by role."),
		}, []string{"role"}),
		HeadlineRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "headline_refreshes_total",
			Help:      help("Headline ticker replacements by source."),
		}, []string{"source"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Geocoding API requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      help("1 when geocoding is enabled, 0 otherwise."),
		}),
		ScenesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenes_published_total",
			Help:      help("Scene snapshots written to Kafka."),
		}),
		ScenePublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scene_publish_errors_total",
			Help:      help("Failed Kafka write attempts."),
		}),
		ScenesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenes_dropped_total",
			Help:      help("Scene snapshots dropped because the queue was full or retries ran out."),
		}),
		PublisherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publisher_running",
			Help:      help("1 while the scene publisher loop is running."),
		}),
	}
}
