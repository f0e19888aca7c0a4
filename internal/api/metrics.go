package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes playback counters as Prometheus metrics.
//
// It implements show.Metrics; the controller calls the increment
// methods from the control loop, so they must stay cheap.
type Metrics struct {
	registry *prometheus.Registry

	showsPlayed     prometheus.Counter
	showsStopped    prometheus.Counter
	updatesApplied  prometheus.Counter
	updatesDropped  prometheus.Counter
	activeInstances prometheus.Gauge
}

// NewMetrics creates the Prometheus registry and playback collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		showsPlayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tiltlogic_shows_played_total",
			Help: "Total number of show instances started.",
		}),
		showsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "tiltlogic_shows_stopped_total",
			Help: "Total number of show instances stopped.",
		}),
		updatesApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "tiltlogic_device_updates_applied_total",
			Help: "Total device updates written to outputs.",
		}),
		updatesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "tiltlogic_device_updates_dropped_total",
			Help: "Total device updates dropped by priority arbitration.",
		}),
		activeInstances: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tiltlogic_active_show_instances",
			Help: "Show instances currently running.",
		}),
	}
}

// ShowPlayed increments the played counter.
func (m *Metrics) ShowPlayed() { m.showsPlayed.Inc() }

// ShowStopped increments the stopped counter.
func (m *Metrics) ShowStopped() { m.showsStopped.Inc() }

// UpdatesApplied adds n to the applied counter.
func (m *Metrics) UpdatesApplied(n int) { m.updatesApplied.Add(float64(n)) }

// UpdatesDropped adds n to the dropped counter.
func (m *Metrics) UpdatesDropped(n int) { m.updatesDropped.Add(float64(n)) }

// ActiveInstances sets the running-instances gauge.
func (m *Metrics) ActiveInstances(n int) { m.activeInstances.Set(float64(n)) }

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
