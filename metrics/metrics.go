// Package metrics exports server monitoring events as Prometheus metrics.
package metrics

import (
	"github.com/ikmak/mongo-topology/event"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "topology"

// Collector holds the metrics fed by the callbacks of ServerMonitor.
type Collector struct {
	Heartbeats         *prometheus.CounterVec
	HeartbeatFailures  *prometheus.CounterVec
	HeartbeatDuration  *prometheus.HistogramVec
	DescriptionChanges *prometheus.CounterVec
	ServerKind         *prometheus.GaugeVec
	OpenServers        prometheus.Gauge
	HostsChanges       *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Heartbeats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "heartbeats_total",
				Help:      "Total number of health probes started",
			},
			[]string{"server"},
		),

		HeartbeatFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "heartbeat_failures_total",
				Help:      "Total number of failed health probes",
			},
			[]string{"server"},
		),

		HeartbeatDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "heartbeat_duration_seconds",
				Help:      "Duration of health probes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"server", "outcome"},
		),

		DescriptionChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "description_changes_total",
				Help:      "Total number of server description changes",
			},
			[]string{"server"},
		),

		// Set to 1 for the current kind of each server
		ServerKind: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "server_kind",
				Help:      "Kind reported by the latest description of each server",
			},
			[]string{"server", "kind"},
		),

		OpenServers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_servers",
				Help:      "Number of servers being monitored",
			},
		),

		HostsChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hosts_changes_total",
				Help:      "Total number of member list changes reported by servers",
			},
			[]string{"source"},
		),
	}

	reg.MustRegister(
		c.Heartbeats,
		c.HeartbeatFailures,
		c.HeartbeatDuration,
		c.DescriptionChanges,
		c.ServerKind,
		c.OpenServers,
		c.HostsChanges,
	)

	return c
}

// ServerMonitor returns callbacks that update the metrics. Merge them with
// other callbacks through event.ServerMonitor.Merge.
func (c *Collector) ServerMonitor() *event.ServerMonitor {
	return &event.ServerMonitor{
		ServerOpening: func(*event.ServerOpeningEvent) {
			c.OpenServers.Inc()
		},
		ServerClosed: func(e *event.ServerClosedEvent) {
			c.OpenServers.Dec()
			c.ServerKind.DeletePartialMatch(prometheus.Labels{"server": e.Address.String()})
		},
		ServerHeartbeatStarted: func(e *event.ServerHeartbeatStartedEvent) {
			c.Heartbeats.WithLabelValues(e.Address.String()).Inc()
		},
		ServerHeartbeatSucceeded: func(e *event.ServerHeartbeatSucceededEvent) {
			c.HeartbeatDuration.WithLabelValues(e.Address.String(), "success").Observe(e.Duration.Seconds())
		},
		ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
			server := e.Address.String()
			c.HeartbeatFailures.WithLabelValues(server).Inc()
			c.HeartbeatDuration.WithLabelValues(server, "failure").Observe(e.Duration.Seconds())
		},
		ServerDescriptionChanged: func(e *event.ServerDescriptionChangedEvent) {
			server := e.Address.String()
			c.DescriptionChanges.WithLabelValues(server).Inc()
			c.ServerKind.DeletePartialMatch(prometheus.Labels{"server": server})
			c.ServerKind.WithLabelValues(server, e.NewDescription.Kind.String()).Set(1)
		},
		TopologyHostsChanged: func(e *event.TopologyHostsChangedEvent) {
			c.HostsChanges.WithLabelValues(e.Source.String()).Inc()
		},
	}
}
