// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway counters. One instance is shared by the hub,
// the authorizer and the broadcast router.
type Metrics struct {
	ActiveConnections    prometheus.Gauge
	SubscribesAuthorized prometheus.Counter
	SubscribesRejected   *prometheus.CounterVec
	UpdatesPublished     prometheus.Counter
	UpdatesSuppressed    *prometheus.CounterVec
	UpdatesDropped       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hearthbeat_ws_active_connections",
			Help: "Number of live WebSocket connections.",
		}),
		SubscribesAuthorized: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearthbeat_subscribes_authorized_total",
			Help: "Subscribe requests approved by the authorizer.",
		}),
		SubscribesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearthbeat_subscribes_rejected_total",
			Help: "Subscribe requests rejected by the authorizer.",
		}, []string{"reason"}),
		UpdatesPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearthbeat_location_updates_published_total",
			Help: "Location updates fanned out to a household topic.",
		}),
		UpdatesSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearthbeat_location_updates_suppressed_total",
			Help: "Valid location updates suppressed before publishing.",
		}, []string{"reason"}),
		UpdatesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearthbeat_location_updates_dropped_total",
			Help: "Location updates dropped as malformed or unroutable.",
		}, []string{"reason"}),
	}
}
