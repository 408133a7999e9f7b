// Package metrics exposes Prometheus collectors for tool calls and stored jobs.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sumire/recursiveflow/internal/domain"
)

const namespace = "recursiveflow"

// Outcome labels for tool calls.
const (
	OutcomeOK        = "ok"
	OutcomeToolError = "tool_error"
	OutcomeInvalid   = "invalid"
	OutcomeUnknown   = "unknown"
)

// JobLister is the read side of the job store consumed by the jobs collector.
type JobLister interface {
	List(ctx context.Context) []domain.JobContext
}

// Metrics records tool call counts and latencies.
type Metrics struct {
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. When jobs is non-nil a gauge of
// stored jobs by status is registered as well.
func New(reg prometheus.Registerer, jobs JobLister) *Metrics {
	m := &Metrics{
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"tool"}),
	}
	reg.MustRegister(m.toolCalls, m.toolDuration)
	if jobs != nil {
		reg.MustRegister(newJobsCollector(jobs))
	}
	return m
}

// ObserveToolCall records one tool invocation. A nil receiver is a no-op.
func (m *Metrics) ObserveToolCall(tool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

type jobsCollector struct {
	jobs JobLister
	desc *prometheus.Desc
}

func newJobsCollector(jobs JobLister) *jobsCollector {
	return &jobsCollector{
		jobs: jobs,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "jobs"),
			"Jobs held in memory by status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *jobsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *jobsCollector) Collect(ch chan<- prometheus.Metric) {
	counts := CountByStatus(c.jobs.List(context.Background()))
	for _, status := range []domain.JobStatus{
		domain.JobStatusPlanning,
		domain.JobStatusExecuting,
		domain.JobStatusComplete,
	} {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[status]), string(status))
	}
}

// CountByStatus tallies jobs per status.
func CountByStatus(jobs []domain.JobContext) map[domain.JobStatus]int {
	counts := make(map[domain.JobStatus]int, 3)
	for _, job := range jobs {
		counts[job.Status]++
	}
	return counts
}
