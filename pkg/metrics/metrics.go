// Package metrics exports aggregation cycle statistics in the Prometheus
// text format for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethpandaops/resultoor/pkg/aggregator"
)

const namespace = "resultoor"

// Collector holds the gauges describing one aggregation cycle.
type Collector struct {
	registry *prometheus.Registry

	artifacts    *prometheus.GaugeVec
	history      *prometheus.GaugeVec
	results      *prometheus.GaugeVec
	runs         prometheus.Gauge
	retained     prometheus.Gauge
	environments prometheus.Gauge
	pruned       prometheus.Gauge
	pruneErrors  prometheus.Gauge
	collisions   prometheus.Gauge
	degradations prometheus.Gauge
	lastSuccess  prometheus.Gauge
	info         *prometheus.GaugeVec
}

// NewCollector creates a collector on its own registry.
func NewCollector() *Collector {
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		})
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		artifacts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "artifact_files",
			Help:      "Artifact files seen in the last cycle by outcome",
		}, []string{"outcome"}),
		history: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "history_files",
			Help:      "Historical run files seen in the last cycle by outcome",
		}, []string{"outcome"}),
		results: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "environment_results",
			Help:      "Environment results in the rendered report by status",
		}, []string{"status"}),
		runs:         gauge("report", "runs", "Runs in the rendered report"),
		retained:     gauge("cycle", "retained_runs", "Historical runs inside the retention window"),
		environments: gauge("report", "environments", "Environment results in the rendered report"),
		pruned:       gauge("cycle", "pruned_files", "Run files deleted from the store"),
		pruneErrors:  gauge("cycle", "prune_failures", "Run files that could not be deleted"),
		collisions:   gauge("cycle", "write_collisions", "Run file names that needed a sequence suffix"),
		degradations: gauge("report", "degradations", "Placeholders rendered for missing details"),
		lastSuccess:  gauge("cycle", "last_success_timestamp_seconds", "Unix time of the last successful cycle"),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "info",
			Help:      "Static information about the last cycle",
		}, []string{"mode", "run_id"}),
	}

	c.registry.MustRegister(
		c.artifacts, c.history, c.results, c.runs, c.retained, c.environments,
		c.pruned, c.pruneErrors, c.collisions, c.degradations, c.lastSuccess, c.info,
	)

	return c
}

// Observe records the statistics of a completed cycle.
func (c *Collector) Observe(mode, runID string, stats aggregator.Stats, finished time.Time) {
	c.artifacts.WithLabelValues("loaded").Set(float64(stats.ArtifactsLoaded))
	c.artifacts.WithLabelValues("skipped").Set(float64(stats.ArtifactsSkipped))
	c.history.WithLabelValues("loaded").Set(float64(stats.HistoryLoaded))
	c.history.WithLabelValues("skipped").Set(float64(stats.HistorySkipped))

	c.results.WithLabelValues("passed").Set(float64(stats.Counts.Passed))
	c.results.WithLabelValues("failed").Set(float64(stats.Counts.Failed))
	c.results.WithLabelValues("errored").Set(float64(stats.Counts.Errored))

	c.runs.Set(float64(stats.Runs))
	c.retained.Set(float64(stats.Retained))
	c.environments.Set(float64(stats.Environments))
	c.pruned.Set(float64(stats.Pruned))
	c.pruneErrors.Set(float64(stats.PruneFailures))
	c.collisions.Set(float64(stats.Collisions))
	c.degradations.Set(float64(stats.Degradations))
	c.lastSuccess.Set(float64(finished.Unix()))

	c.info.Reset()
	c.info.WithLabelValues(mode, runID).Set(1)
}

// WriteTextfile atomically writes the collected metrics to path.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}

	return nil
}

// WriteTextfile records stats on a fresh collector and writes it to path.
func WriteTextfile(path, mode, runID string, stats aggregator.Stats, finished time.Time) error {
	c := NewCollector()
	c.Observe(mode, runID, stats, finished)

	return c.WriteTextfile(path)
}
