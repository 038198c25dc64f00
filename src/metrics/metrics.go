package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters and gauges of the distribution path.
type Metrics struct {
	RejectedTicks     *prometheus.CounterVec
	MalformedMessages *prometheus.CounterVec
	DroppedTicks      *prometheus.CounterVec
	DeliveredMessages *prometheus.CounterVec
	ConnectedClients  prometheus.Gauge
	Subscriptions     prometheus.Gauge
	PackageAssemblies *prometheus.CounterVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RejectedTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rangemeter_ticks_rejected_total",
			Help: "Ticks dropped by validation, by reason.",
		}, []string{"reason"}),
		MalformedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rangemeter_messages_malformed_total",
			Help: "Inbound messages that could not be decoded, by origin.",
		}, []string{"origin"}),
		DroppedTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rangemeter_ticks_dropped_total",
			Help: "Ticks dropped because a downstream queue was full, by stage.",
		}, []string{"stage"}),
		DeliveredMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rangemeter_messages_delivered_total",
			Help: "Messages handed to client connections, by type.",
		}, []string{"type"}),
		ConnectedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "rangemeter_ws_clients",
			Help: "Current number of WebSocket clients.",
		}),
		Subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Name: "rangemeter_subscriptions",
			Help: "Current number of (client, symbol) subscriptions.",
		}),
		PackageAssemblies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rangemeter_package_assemblies_total",
			Help: "Daily range package assemblies, by source (history or ticks).",
		}, []string{"source"}),
	}
}

// NewUnregistered is a convenience for tests and tools that never expose /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
