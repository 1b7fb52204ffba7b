// Package metrics records run gauges and writes them in the Prometheus text
// format for the node_exporter textfile collector.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "panel_journey"

// Run holds the gauges of one batch run on a private registry.
type Run struct {
	registry *prometheus.Registry

	rows        *prometheus.GaugeVec
	coverage    *prometheus.GaugeVec
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewRun creates the gauges, labelled with the run id.
func NewRun(runID string) *Run {
	constLabels := prometheus.Labels{"run_id": runID}
	r := &Run{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "rows",
			Help:        "Row counts of the run by table.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		coverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "coverage_percent",
			Help:        "Panel coverage of the latest quarter by category.",
			ConstLabels: constLabels,
		}, []string{"quarter", "category"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "duration_seconds",
			Help:        "Wall time of the reconciliation.",
			ConstLabels: constLabels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
	r.registry.MustRegister(r.rows, r.coverage, r.duration, r.lastSuccess)
	return r
}

// SetRows records the row count of a table.
func (r *Run) SetRows(table string, n int) {
	r.rows.WithLabelValues(table).Set(float64(n))
}

// SetCoverage records a coverage percentage.
func (r *Run) SetCoverage(quarter, category string, pct float64) {
	r.coverage.WithLabelValues(quarter, category).Set(pct)
}

// Finish records duration and completion time.
func (r *Run) Finish(d time.Duration, at time.Time) {
	r.duration.Set(d.Seconds())
	r.lastSuccess.Set(float64(at.Unix()))
}

// WriteFile writes the gauges atomically to path, creating its directory.
func (r *Run) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
