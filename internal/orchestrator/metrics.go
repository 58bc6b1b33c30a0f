package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the chat loop: how many turns ran, how many LLM calls
// each one spent, how long a turn took, and how often the budget ran out.
type Metrics struct {
	// TurnsTotal counts completed turns by result_type (success|budget_exceeded|error).
	TurnsTotal *prometheus.CounterVec

	// LLMCallsTotal counts LLM calls spent across all turns, by agent_name.
	LLMCallsTotal *prometheus.CounterVec

	// TurnDuration measures wall-clock turn processing time in seconds.
	TurnDuration *prometheus.HistogramVec

	// BudgetExceededTotal counts turns that ran out of LLM call budget,
	// by agent_name.
	BudgetExceededTotal *prometheus.CounterVec
}

// NewMetrics registers the orchestrator's metrics against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with metrics
// registered by other packages under the same process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentfsm_turns_total",
				Help: "Total number of chat turns processed, by result type.",
			},
			[]string{"agent_name", "result_type"},
		),
		LLMCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentfsm_llm_calls_total",
				Help: "Total number of LLM calls spent by the chat loop.",
			},
			[]string{"agent_name"},
		),
		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentfsm_turn_duration_seconds",
				Help:    "Wall-clock duration of a chat turn in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"agent_name"},
		),
		BudgetExceededTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentfsm_budget_exceeded_total",
				Help: "Total number of turns that exhausted the LLM call budget.",
			},
			[]string{"agent_name"},
		),
	}
}
