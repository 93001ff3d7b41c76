package services

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PerformanceMonitor tracks per-agent execution counts and latencies, both
// as Prometheus collectors and as an in-process snapshot for the execution
// summary.
type PerformanceMonitor struct {
	executions *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	caseTotal  prometheus.Counter

	mu    sync.Mutex
	stats map[string]*AgentSnapshot
}

// AgentSnapshot is the in-process view of one agent's metrics.
type AgentSnapshot struct {
	Executions    int           `json:"executions"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"totalDuration"`
}

// NewPerformanceMonitor builds the monitor and registers its collectors.
// reg may be nil to skip registration (tests).
func NewPerformanceMonitor(reg prometheus.Registerer) *PerformanceMonitor {
	m := &PerformanceMonitor{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opnote",
			Name:      "agent_executions_total",
			Help:      "Agent executions by agent and outcome.",
		}, []string{"agent", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opnote",
			Name:      "agent_failures_total",
			Help:      "Agent failures by agent.",
		}, []string{"agent"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opnote",
			Name:      "agent_duration_seconds",
			Help:      "Agent execution latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"agent"}),
		caseTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "opnote",
			Name:      "cases_processed_total",
			Help:      "Cases run through the pipeline.",
		}),
		stats: make(map[string]*AgentSnapshot),
	}
	if reg != nil {
		reg.MustRegister(m.executions, m.failures, m.duration, m.caseTotal)
	}
	return m
}

// ObserveAgent records one agent execution.
func (m *PerformanceMonitor) ObserveAgent(agent string, d time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
		m.failures.WithLabelValues(agent).Inc()
	}
	m.executions.WithLabelValues(agent, outcome).Inc()
	m.duration.WithLabelValues(agent).Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[agent]
	if !ok {
		st = &AgentSnapshot{}
		m.stats[agent] = st
	}
	st.Executions++
	st.TotalDuration += d
	if !success {
		st.Failures++
	}
}

// ObserveCase counts one completed pipeline run.
func (m *PerformanceMonitor) ObserveCase() {
	m.caseTotal.Inc()
}

// Snapshot returns a copy of the per-agent stats.
func (m *PerformanceMonitor) Snapshot() map[string]AgentSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]AgentSnapshot, len(m.stats))
	for k, v := range m.stats {
		out[k] = *v
	}
	return out
}
