package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for the pipeline: model turns, dynamic
// tool builds, and webhook invocations.
type Metrics struct {
	// TurnCounter counts model turns processed by the middleware.
	// Labels: status (success|error)
	TurnCounter *prometheus.CounterVec

	// ToolBuildCounter counts dynamic tool builds.
	// Labels: status (success|error)
	ToolBuildCounter *prometheus.CounterVec

	// ToolInvocationCounter counts webhook tool invocations.
	// Labels: tool, status (ok|error)
	ToolInvocationCounter *prometheus.CounterVec

	// ToolInvocationDuration measures webhook round-trip time in seconds.
	// Labels: tool
	ToolInvocationDuration *prometheus.HistogramVec
}

// NewMetrics creates pipeline metrics registered on reg. A nil registerer
// leaves the metrics unregistered, which keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TurnCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dragonchat_turns_total",
			Help: "Model turns processed by the middleware.",
		}, []string{"status"}),
		ToolBuildCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dragonchat_tool_builds_total",
			Help: "Dynamic tool build attempts.",
		}, []string{"status"}),
		ToolInvocationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dragonchat_tool_invocations_total",
			Help: "Webhook tool invocations.",
		}, []string{"tool", "status"}),
		ToolInvocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dragonchat_tool_invocation_seconds",
			Help:    "Webhook tool round-trip time in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"tool"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.TurnCounter,
			m.ToolBuildCounter,
			m.ToolInvocationCounter,
			m.ToolInvocationDuration,
		)
	}
	return m
}
