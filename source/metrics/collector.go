package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a Recorder's counters and derived statistics as
// Prometheus metrics, grounded on the runZeroInc/sockstats exporter's
// Describe/Collect pattern (pkg/exporter/exporter.go in the pack):
// descriptors are fixed at construction, Collect reads a fresh Snapshot
// on every scrape rather than caching.
type Collector struct {
	recorder *Recorder

	received      *prometheus.Desc
	success       *prometheus.Desc
	duplicates    *prometheus.Desc
	outOfOrder    *prometheus.Desc
	timeouts      *prometheus.Desc
	bytesReceived *prometheus.Desc
	avgLatency    *prometheus.Desc
	jitter        *prometheus.Desc
	deliveryRatio *prometheus.Desc
	throughput    *prometheus.Desc
}

// NewCollector wraps recorder for Prometheus registration.
func NewCollector(recorder *Recorder) *Collector {
	labels := []string{"channel"}
	return &Collector{
		recorder:      recorder,
		received:      prometheus.NewDesc("rudp_packets_received_total", "Packets received.", labels, nil),
		success:       prometheus.NewDesc("rudp_packets_success_total", "Distinct in-window new arrivals (delivery-ratio numerator).", labels, nil),
		duplicates:    prometheus.NewDesc("rudp_packets_duplicate_total", "Duplicate packets detected.", labels, nil),
		outOfOrder:    prometheus.NewDesc("rudp_packets_out_of_order_total", "Packets that arrived ahead of the delivery cursor.", labels, nil),
		timeouts:      prometheus.NewDesc("rudp_gap_timeouts_total", "Gap-timeout skips.", labels, nil),
		bytesReceived: prometheus.NewDesc("rudp_bytes_received_total", "Bytes received.", labels, nil),
		avgLatency:    prometheus.NewDesc("rudp_latency_avg_ms", "Mean one-way latency sample.", labels, nil),
		jitter:        prometheus.NewDesc("rudp_reliable_jitter_ms", "RFC 3550 smoothed inter-arrival jitter, reliable channel.", nil, nil),
		deliveryRatio: prometheus.NewDesc("rudp_reliable_delivery_ratio_percent", "Reliable channel delivery ratio.", nil, nil),
		throughput:    prometheus.NewDesc("rudp_throughput_bytes_per_second", "Aggregate byte throughput since first arrival.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.received
	descs <- c.success
	descs <- c.duplicates
	descs <- c.outOfOrder
	descs <- c.timeouts
	descs <- c.bytesReceived
	descs <- c.avgLatency
	descs <- c.jitter
	descs <- c.deliveryRatio
	descs <- c.throughput
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	s := c.recorder.Snapshot()

	emit := func(label string, cc ChannelCounters) {
		metrics <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(cc.Received), label)
		metrics <- prometheus.MustNewConstMetric(c.success, prometheus.CounterValue, float64(cc.Success), label)
		metrics <- prometheus.MustNewConstMetric(c.duplicates, prometheus.CounterValue, float64(cc.Duplicates), label)
		metrics <- prometheus.MustNewConstMetric(c.outOfOrder, prometheus.CounterValue, float64(cc.OutOfOrder), label)
		metrics <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(cc.Timeouts), label)
		metrics <- prometheus.MustNewConstMetric(c.bytesReceived, prometheus.CounterValue, float64(cc.BytesReceived), label)
		metrics <- prometheus.MustNewConstMetric(c.avgLatency, prometheus.GaugeValue, cc.AverageLatencyMs(), label)
	}
	emit("reliable", s.Reliable)
	emit("unreliable", s.Unreliable)

	metrics <- prometheus.MustNewConstMetric(c.jitter, prometheus.GaugeValue, s.Jitter)
	metrics <- prometheus.MustNewConstMetric(c.deliveryRatio, prometheus.GaugeValue, s.DeliveryRatio())
	metrics <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, s.Throughput())
}
