package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	phoneauth "github.com/stayhq/phoneauth"
	"github.com/stayhq/phoneauth/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() phoneauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter reads engine snapshots on every scrape. It holds no state of
// its own, so a single instance can back multiple registries.
type Exporter struct {
	source        metricsSource
	counterDescs  map[phoneauth.MetricID]*prometheus.Desc
	histDescs     map[phoneauth.MetricID]*prometheus.Desc
	auditDropDesc *prometheus.Desc
}

var _ prometheus.Collector = (*Exporter)(nil)

// NewExporter builds a collector reading from engine.
func NewExporter(engine *phoneauth.Engine) *Exporter {
	return NewExporterFromSource(engine)
}

// NewExporterFromSource builds a collector reading from a custom source.
func NewExporterFromSource(source metricsSource) *Exporter {
	e := &Exporter{
		source:       source,
		counterDescs: make(map[phoneauth.MetricID]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histDescs:    make(map[phoneauth.MetricID]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		auditDropDesc: prometheus.NewDesc(
			"phoneauth_audit_dropped_total",
			"Dropped audit events due to dispatcher backpressure.",
			nil, nil,
		),
	}

	for _, def := range internaldefs.CounterDefs {
		e.counterDescs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for _, def := range internaldefs.HistogramDefs {
		e.histDescs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}

	return e
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range e.counterDescs {
		ch <- desc
	}
	for _, desc := range e.histDescs {
		ch <- desc
	}
	ch <- e.auditDropDesc
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e == nil || e.source == nil {
		return
	}

	snapshot := e.source.MetricsSnapshot()

	for _, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(
			e.counterDescs[def.ID],
			prometheus.CounterValue,
			float64(snapshot.Counters[def.ID]),
		)
	}

	for _, def := range internaldefs.HistogramDefs {
		nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
		cumulative := internaldefs.CumulativeBuckets(nonCumulative)

		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, bound := range internaldefs.HistogramUpperBounds {
			buckets[bound] = cumulative[i]
		}
		count := cumulative[len(cumulative)-1]

		// Sum is not tracked by the engine; 0 keeps the series shape
		// stable.
		ch <- prometheus.MustNewConstHistogram(e.histDescs[def.ID], count, 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(
		e.auditDropDesc,
		prometheus.CounterValue,
		float64(e.source.AuditDropped()),
	)
}
