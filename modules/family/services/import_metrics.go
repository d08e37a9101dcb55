package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts import outcomes on a private registry so one process can run
// several imports and report each separately.
type Metrics struct {
	registry *prometheus.Registry

	rowsTotal    *prometheus.CounterVec
	membersTotal *prometheus.CounterVec
	linksTotal   *prometheus.CounterVec

	lastRunSeconds prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		rowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "family_import",
			Name:      "rows_total",
			Help:      "Spreadsheet rows handled by the importer.",
		}, []string{"result"}),
		membersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "family_import",
			Name:      "members_total",
			Help:      "Members written by the importer.",
		}, []string{"action"}),
		linksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "family_import",
			Name:      "links_total",
			Help:      "Relationship links written by the importer.",
		}, []string{"kind"}),
		lastRunSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "family_import",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last import run.",
		}),
	}
}

// WriteTextfile writes the metrics in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) row(result string) {
	m.rowsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) member(action string) {
	m.membersTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) link(kind string, n int) {
	m.linksTotal.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) observeRun(d time.Duration) {
	m.lastRunSeconds.Set(d.Seconds())
}
