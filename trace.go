package prism

import (
	"math"
	"time"
)

// Pipeline phase names, used in traces and metrics.
const (
	PhaseFastPath       = "fast_path"
	PhaseInterpretation = "interpretation"
	PhaseDecomposition  = "decomposition"
	PhaseRouting        = "routing"
	PhaseExecution      = "execution"
	PhaseAggregation    = "aggregation"
	PhaseSynthesis      = "synthesis"
	PhaseEvaluation     = "evaluation"
)

// Decision is the orchestrator's final classification of how an answer was
// produced. Closed enumeration; the orchestrator matches it exhaustively.
type Decision string

const (
	DecisionChitchat    Decision = "chitchat"
	DecisionFastPath    Decision = "fast_path"
	DecisionDirect      Decision = "direct"
	DecisionSynthesized Decision = "synthesized"
	DecisionFallback    Decision = "fallback"
	DecisionError       Decision = "error"
)

// PhaseTrace records one pipeline stage: its duration in seconds (3 decimal
// places), a phase-specific data map, and whether it succeeded.
type PhaseTrace struct {
	Phase    string         `json:"phase"`
	Duration float64        `json:"duration"`
	Data     map[string]any `json:"data"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
}

// ExecutionResult is the serialized outcome of one RouteQuery call.
type ExecutionResult struct {
	Answer        string       `json:"answer"`
	Traces        []PhaseTrace `json:"traces"`
	TotalTime     float64      `json:"total_time"`
	FinalDecision Decision     `json:"final_decision"`
	AgentsUsed    []string     `json:"agents_used"`
	Success       bool         `json:"success"`
	// OriginalAnswer preserves the pre-fallback answer for debugging.
	// Present only when FinalDecision is DecisionFallback.
	OriginalAnswer string `json:"original_answer,omitempty"`
}

// phaseTimer is the scoped timing construct for pipeline stages: it starts
// on creation and appends exactly one PhaseTrace to its sink on End, even
// when the phase fails. Callers defer End immediately after startPhase.
type phaseTimer struct {
	phase   string
	start   time.Time
	data    map[string]any
	err     error
	sink    *[]PhaseTrace
	metrics *PerformanceMetrics
	span    Span // optional; ended with the phase
	ended   bool
}

// startPhase begins timing a phase whose trace will be appended to sink.
// metrics may be nil.
func startPhase(sink *[]PhaseTrace, metrics *PerformanceMetrics, phase string) *phaseTimer {
	return &phaseTimer{
		phase:   phase,
		start:   time.Now(),
		data:    make(map[string]any),
		sink:    sink,
		metrics: metrics,
	}
}

// Set records a phase-specific data point (intent, counts, scores, ...).
func (t *phaseTimer) Set(key string, value any) {
	t.data[key] = value
}

// Fail marks the phase as failed. The trace is still appended on End.
func (t *phaseTimer) Fail(err error) {
	t.err = err
}

// End stops the timer and appends the trace. Idempotent: only the first call
// appends, so a deferred End after an explicit one is safe.
func (t *phaseTimer) End() {
	if t.ended {
		return
	}
	t.ended = true
	elapsed := time.Since(t.start)
	trace := PhaseTrace{
		Phase:    t.phase,
		Duration: roundSeconds(elapsed),
		Data:     t.data,
		Success:  t.err == nil,
	}
	if t.err != nil {
		trace.Error = t.err.Error()
	}
	*t.sink = append(*t.sink, trace)
	if t.metrics != nil {
		t.metrics.Record(t.phase, elapsed)
	}
	if t.span != nil {
		if t.err != nil {
			t.span.Error(t.err)
		}
		t.span.End()
	}
}

// roundSeconds converts a duration to seconds at 3 decimal places.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
