// Package metrics exports run aggregates in the Prometheus text format so a
// node_exporter textfile collector can pick them up.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalnine/benchforge/internal/result"
)

const namespace = "benchforge"

// Exporter holds the gauges for one run summary.
type Exporter struct {
	registry *prometheus.Registry

	metricMean  *prometheus.GaugeVec
	metricMin   *prometheus.GaugeVec
	metricMax   *prometheus.GaugeVec
	metricStdev *prometheus.GaugeVec
	metricCV    *prometheus.GaugeVec
	samples     *prometheus.GaugeVec
	passRate    *prometheus.GaugeVec
	runs        *prometheus.GaugeVec
	passed      *prometheus.GaugeVec
	status      *prometheus.GaugeVec
}

// NewExporter registers the gauges on a private registry.
func NewExporter() (*Exporter, error) {
	metricLabels := []string{"target", "metric", "units"}
	runLabels := []string{"target"}
	gauge := func(name, help string, labels []string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	e := &Exporter{
		registry:    prometheus.NewRegistry(),
		metricMean:  gauge("metric_mean", "Mean of a parsed numeric metric across measured runs.", metricLabels),
		metricMin:   gauge("metric_min", "Minimum of a parsed numeric metric.", metricLabels),
		metricMax:   gauge("metric_max", "Maximum of a parsed numeric metric.", metricLabels),
		metricStdev: gauge("metric_stdev", "Sample standard deviation of a parsed numeric metric.", metricLabels),
		metricCV:    gauge("metric_cv", "Coefficient of variation of a parsed numeric metric.", metricLabels),
		samples:     gauge("metric_samples", "Number of runs that reported the metric.", metricLabels),
		passRate:    gauge("pass_rate", "Fraction of measured runs that passed.", runLabels),
		runs:        gauge("runs", "Measured runs in the latest run of the target.", runLabels),
		passed:      gauge("runs_passed", "Measured runs that passed.", runLabels),
		status:      gauge("status_pass", "1 when the latest run of the target passed, else 0.", runLabels),
	}
	for _, c := range []prometheus.Collector{
		e.metricMean, e.metricMin, e.metricMax, e.metricStdev, e.metricCV,
		e.samples, e.passRate, e.runs, e.passed, e.status,
	} {
		if err := e.registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return e, nil
}

// Observe records a summary's totals and numeric aggregates.
func (e *Exporter) Observe(s *result.Summary) {
	target := s.Target
	e.passRate.WithLabelValues(target).Set(s.Summary.PassRate)
	e.runs.WithLabelValues(target).Set(float64(s.Summary.TotalRuns))
	e.passed.WithLabelValues(target).Set(float64(s.Summary.Passed))
	pass := 0.0
	if s.Summary.Status == result.StatusPass {
		pass = 1
	}
	e.status.WithLabelValues(target).Set(pass)

	names := make([]string, 0, len(s.Aggregates.Numeric))
	for name := range s.Aggregates.Numeric {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := s.Aggregates.Numeric[name]
		labels := []string{target, name, st.Units}
		e.metricMean.WithLabelValues(labels...).Set(st.Mean)
		e.metricMin.WithLabelValues(labels...).Set(st.Min)
		e.metricMax.WithLabelValues(labels...).Set(st.Max)
		e.metricStdev.WithLabelValues(labels...).Set(st.Stdev)
		e.samples.WithLabelValues(labels...).Set(float64(st.N))
		if st.CV != nil {
			e.metricCV.WithLabelValues(labels...).Set(*st.CV)
		}
	}
}

// Registry exposes the gatherer.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// WriteTextfile writes the gathered metrics to path atomically.
func (e *Exporter) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}

// Export writes one summary as a textfile.
func Export(path string, s *result.Summary) error {
	e, err := NewExporter()
	if err != nil {
		return err
	}
	e.Observe(s)
	return e.WriteTextfile(path)
}
