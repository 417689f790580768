package grid

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters. Each Metrics owns its registry so
// tests and concurrent builders never collide on registration.
type Metrics struct {
	BuildsTotal      *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	RecordsDropped   *prometheus.CounterVec
	Buses            prometheus.Gauge
	Lines            prometheus.Gauge
	Connectors       *prometheus.GaugeVec
	InvalidSplits    prometheus.Counter
	SelfLoopsDropped prometheus.Counter
	RepairRounds     prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates a metrics set with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}
	f := promauto.With(reg)

	m.BuildsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridmesh_builds_total",
			Help: "Network builds by outcome",
		},
		[]string{"status"},
	)
	m.StageDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridmesh_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"stage"},
	)
	m.RecordsDropped = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridmesh_records_dropped_total",
			Help: "Survey records dropped by the normalizer, by reason",
		},
		[]string{"reason"},
	)
	m.Buses = f.NewGauge(prometheus.GaugeOpts{
		Name: "gridmesh_buses",
		Help: "Buses in the last built network",
	})
	m.Lines = f.NewGauge(prometheus.GaugeOpts{
		Name: "gridmesh_lines",
		Help: "Lines in the last built network",
	})
	m.Connectors = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridmesh_connectors",
			Help: "Synthetic connectors in the last built network, by kind",
		},
		[]string{"kind"},
	)
	m.InvalidSplits = f.NewCounter(prometheus.CounterOpts{
		Name: "gridmesh_invalid_splits_total",
		Help: "Line splits skipped because no valid cut was found",
	})
	m.SelfLoopsDropped = f.NewCounter(prometheus.CounterOpts{
		Name: "gridmesh_self_loops_dropped_total",
		Help: "Lines dropped because both ends snapped to the same bus",
	})
	m.RepairRounds = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridmesh_repair_rounds",
		Help:    "Connectivity repair scans per build",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})
	return m
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordResult updates the gauges and counters from a finished build.
// res may be nil when the build failed before producing a network.
func (m *Metrics) RecordResult(res *Result, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.BuildsTotal.WithLabelValues(status).Inc()
	if res == nil {
		return
	}

	d := res.Diagnostics
	m.RecordsDropped.WithLabelValues("missing_voltage").Add(float64(d.Normalization.MissingVoltage))
	m.RecordsDropped.WithLabelValues("below_threshold").Add(float64(d.Normalization.BelowThreshold))
	m.RecordsDropped.WithLabelValues("invalid_geometry").Add(float64(d.Normalization.InvalidGeometry))
	m.InvalidSplits.Add(float64(d.InvalidSplits))
	m.SelfLoopsDropped.Add(float64(d.SelfLoopsDropped))
	m.RepairRounds.Observe(float64(len(d.RepairRounds)))

	m.Buses.Set(float64(len(res.Network.Nodes)))
	m.Lines.Set(float64(len(res.Network.Edges)))
	m.Connectors.WithLabelValues(string(EdgeIsolatedConnector)).Set(float64(len(d.IsolatedConnectors)))
	m.Connectors.WithLabelValues(string(EdgeSubgraphConnector)).Set(float64(len(d.SubgraphConnectors)))
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
