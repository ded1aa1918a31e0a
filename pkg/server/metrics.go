package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus collectors for one server instance.
type metrics struct {
	connectedClients   prometheus.Gauge
	handshakesTotal    *prometheus.CounterVec
	commandsTotal      *prometheus.CounterVec
	commandRejects     *prometheus.CounterVec
	broadcastDuration  prometheus.Histogram
	bytesSent          prometheus.Counter
	bytesReceived      prometheus.Counter
	assetsServed       prometheus.Counter
	assetsReceived     prometheus.Counter
	assetBytesStreamed prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		connectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mapforge",
			Name:      "connected_clients",
			Help:      "Number of clients currently connected",
		}),

		handshakesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapforge",
			Name:      "handshakes_total",
			Help:      "Handshake attempts by outcome",
		}, []string{"status"}),

		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapforge",
			Name:      "commands_total",
			Help:      "Commands processed by kind",
		}, []string{"kind"}),

		commandRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapforge",
			Name:      "command_rejects_total",
			Help:      "Commands rejected by kind and reason",
		}, []string{"kind", "reason"}),

		broadcastDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mapforge",
			Name:      "broadcast_duration_seconds",
			Help:      "Time to enqueue a command to all connected clients",
			Buckets:   prometheus.DefBuckets,
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mapforge",
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to clients",
		}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mapforge",
			Name:      "bytes_received_total",
			Help:      "Total bytes read from clients",
		}),

		assetsServed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mapforge",
			Name:      "assets_served_total",
			Help:      "Asset transfers queued to clients",
		}),

		assetsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mapforge",
			Name:      "assets_received_total",
			Help:      "Asset transfers completed from clients",
		}),

		assetBytesStreamed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mapforge",
			Name:      "asset_bytes_streamed_total",
			Help:      "Asset payload bytes written to clients",
		}),
	}
}
