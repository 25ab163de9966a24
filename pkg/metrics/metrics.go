// Package metrics holds the prometheus collectors shared by the
// router, the filesystem watchers, and the courier daemon. Each
// Collectors instance owns a private registry so tests can construct
// as many as they like without colliding on prometheus's global
// default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups every runtime counter/histogram this module
// exposes.
type Collectors struct {
	registry *prometheus.Registry

	RouterEventsReceived *prometheus.CounterVec
	RouterEventsRouted   *prometheus.CounterVec
	RouterActionResults  *prometheus.CounterVec

	WatcherScans   *prometheus.CounterVec
	WatcherChanges *prometheus.CounterVec

	CourierMessages *prometheus.CounterVec
	CourierLockAge  prometheus.Histogram
}

// New constructs a Collectors bound to a fresh, private registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	fac := promauto.With(reg)

	return &Collectors{
		registry: reg,

		RouterEventsReceived: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabric",
			Subsystem: "router",
			Name:      "events_received_total",
			Help:      "Events delivered to a router instance, by router name.",
		}, []string{"router"}),

		RouterEventsRouted: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabric",
			Subsystem: "router",
			Name:      "events_routed_total",
			Help:      "Routing-rule matches (one per matched rule per event), by router name.",
		}, []string{"router"}),

		RouterActionResults: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabric",
			Subsystem: "router",
			Name:      "action_results_total",
			Help:      "Action invocation outcomes, by router name and status.",
		}, []string{"router", "status"}),

		WatcherScans: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabric",
			Subsystem: "watcher",
			Name:      "scans_total",
			Help:      "Filesystem polling scans performed, by watcher name.",
		}, []string{"watcher"}),

		WatcherChanges: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabric",
			Subsystem: "watcher",
			Name:      "changes_total",
			Help:      "Filesystem changes detected, by watcher name and change kind.",
		}, []string{"watcher", "kind"}),

		CourierMessages: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabric",
			Subsystem: "courier",
			Name:      "messages_total",
			Help:      "Mailbox messages reaching a terminal status.",
		}, []string{"status"}),

		CourierLockAge: fac.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fabric",
			Subsystem: "courier",
			Name:      "lock_claim_seconds",
			Help:      "Time a message spent claimed before completing or failing.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler serves this Collectors' registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
