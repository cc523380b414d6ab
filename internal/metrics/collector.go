package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineStats gives the metrics collector access to live process state that
// doesn't fit a simple counter/histogram (queue depth, connection status).
type EngineStats interface {
	QueueDepth() int
	MQTTConnected() bool
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	stats EngineStats

	queueDepth    *prometheus.Desc
	mqttConnected *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// stats may be nil before the dispatcher has started (metrics report 0).
func NewCollector(stats EngineStats) *Collector {
	return &Collector{
		stats: stats,
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dispatch", "queue_depth"),
			"Current number of jobs buffered in the dispatch worker pool.",
			nil, nil,
		),
		mqttConnected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "mqtt", "connected"),
			"Whether the MQTT broker connection is currently up (1) or down (0).",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.mqttConnected
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats == nil {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.mqttConnected, prometheus.GaugeValue, 0)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(c.stats.QueueDepth()))
	connected := 0.0
	if c.stats.MQTTConnected() {
		connected = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.mqttConnected, prometheus.GaugeValue, connected)
}
