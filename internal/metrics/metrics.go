// Package metrics counts reconciliation outcomes and exports them as a
// node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/g960059/persterm/internal/model"
)

type Metrics struct {
	registry *prometheus.Registry

	PassesTotal       prometheus.Counter
	ConfigErrors      prometheus.Counter
	Sessions          *prometheus.CounterVec
	Commands          *prometheus.CounterVec
	ExecutionsSkipped prometheus.Counter
	PassDuration      prometheus.Histogram
	LastPass          prometheus.Gauge
	AuditDropped      prometheus.Gauge
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &Metrics{
		registry: reg,
		PassesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "persterm_passes_total",
			Help: "Reconciliation passes that ran past validation",
		}),
		ConfigErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "persterm_config_errors_total",
			Help: "Passes rejected by configuration validation",
		}),
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "persterm_sessions_total",
			Help: "Terminal sessions by reconcile action",
		}, []string{"action"}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "persterm_commands_total",
			Help: "Configured commands by outcome",
		}, []string{"status"}),
		ExecutionsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "persterm_execution_skipped_total",
			Help: "Terminals whose commands had already run in this process",
		}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "persterm_pass_duration_seconds",
			Help:    "Wall time of a reconciliation pass",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		LastPass: factory.NewGauge(prometheus.GaugeOpts{
			Name: "persterm_last_pass_timestamp_seconds",
			Help: "Unix time the last pass finished",
		}),
		AuditDropped: factory.NewGauge(prometheus.GaugeOpts{
			Name: "persterm_audit_dropped_events",
			Help: "Audit events dropped because the queue was full",
		}),
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObservePass records the outcome of one reconciliation pass.
func (m *Metrics) ObservePass(result model.ReconcileResult, took time.Duration, finished time.Time) {
	m.PassesTotal.Inc()
	m.Sessions.WithLabelValues(string(model.SessionCreated)).Add(float64(result.Created))
	m.Sessions.WithLabelValues(string(model.SessionReused)).Add(float64(result.Reused))
	m.Sessions.WithLabelValues(string(model.SessionCreateFailed)).Add(float64(result.Failed))
	for _, status := range []model.CommandStatus{model.CommandSent, model.CommandSkippedRestricted, model.CommandSendFailed} {
		m.Commands.WithLabelValues(string(status)).Add(float64(result.Count(status)))
	}
	m.ExecutionsSkipped.Add(float64(result.SkippedExecutions()))
	m.PassDuration.Observe(took.Seconds())
	m.LastPass.Set(float64(finished.Unix()))
}

func (m *Metrics) ObserveConfigError() {
	m.ConfigErrors.Inc()
}

func (m *Metrics) SetAuditDropped(n int64) {
	m.AuditDropped.Set(float64(n))
}

// WriteTextfile atomically replaces path with the current values. An empty
// path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
