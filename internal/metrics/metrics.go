// Package metrics counts agent runs and approval decisions for batch
// scraping through the node exporter textfile collector.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cortexdesk"

type Metrics struct {
	registry *prometheus.Registry

	Runs      *prometheus.CounterVec
	Approvals *prometheus.CounterVec
	Rounds    prometheus.Histogram
	ToolCalls *prometheus.CounterVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Agent runs by final status.",
		}, []string{"status"}),
		Approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Resolved approval requests by decision and mode.",
		}, []string{"decision", "mode"}),
		Rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_rounds",
			Help:      "Executor rounds needed per run.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls announced by the model.",
		}, []string{"tool"}),
	}
	m.registry.MustRegister(m.Runs, m.Approvals, m.Rounds, m.ToolCalls)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRun(status string, rounds int) {
	m.Runs.WithLabelValues(status).Inc()
	m.Rounds.Observe(float64(rounds))
}

func (m *Metrics) ObserveApproval(decision, mode string) {
	m.Approvals.WithLabelValues(decision, mode).Inc()
}

func (m *Metrics) ObserveToolCall(name string) {
	m.ToolCalls.WithLabelValues(name).Inc()
}

// WriteTextfile writes every metric in text exposition format to path.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("metrics file path is required")
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
