package prism

// QueryComplexity classifies how much orchestration a query needs.
type QueryComplexity string

const (
	// ComplexitySimple means one specialist agent can answer directly.
	ComplexitySimple QueryComplexity = "SIMPLE"
	// ComplexityModerate means the query touches multiple domains but may
	// still resolve without decomposition.
	ComplexityModerate QueryComplexity = "MODERATE"
	// ComplexityComplex means the query must be decomposed into subqueries.
	ComplexityComplex QueryComplexity = "COMPLEX"
)

// valid reports whether c is one of the three known complexity levels.
func (c QueryComplexity) valid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	}
	return false
}

// RoutingPattern describes how a subquery's agent is expected to behave.
// Delegation expects the agent to answer and return; handoff expects the
// agent to take over an iterative interaction. Dispatch treats both
// uniformly; the distinction is retained for downstream semantics.
type RoutingPattern string

const (
	Delegation RoutingPattern = "DELEGATION"
	Handoff    RoutingPattern = "HANDOFF"
)

// QueryIntent is the Interpreter's classification of a user query.
type QueryIntent struct {
	// OriginalQuery is the raw user text.
	OriginalQuery string `json:"original_query"`
	// Complexity drives the simple/complex split in the orchestrator.
	Complexity QueryComplexity `json:"complexity"`
	// Domains is an ordered list of domain tags (e.g. "finance",
	// "local_business", "geocoding"). Never empty: a parse that yields no
	// domains substitutes ["search"].
	Domains []string `json:"domains"`
	// RequiresSynthesis marks queries whose answers must be merged from
	// multiple agents.
	RequiresSynthesis bool `json:"requires_synthesis"`
	// Metadata carries opaque provenance, including fast-path markers.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsChitchat reports whether the intent is pure social content
// (conversation/social domains), which skips quality evaluation.
func (qi QueryIntent) IsChitchat() bool {
	for _, d := range qi.Domains {
		if d == "conversation" || d == "social" {
			return true
		}
	}
	return false
}

// Subquery is an atomic, independently routable unit of a decomposition.
type Subquery struct {
	// ID is unique within one decomposition batch.
	ID string `json:"id"`
	// Text is the natural language subquery.
	Text string `json:"text"`
	// CapabilityRequired is the capability tag used for routing
	// (e.g. "geocoding", "stocks").
	CapabilityRequired string `json:"capability_required"`
	// Dependencies lists subquery ids that must complete before this one.
	Dependencies []string `json:"dependencies,omitempty"`
	// RoutingPattern defaults to Delegation when unset.
	RoutingPattern RoutingPattern `json:"routing_pattern,omitempty"`
}

// AgentResponse is the result of dispatching one subquery to one agent.
// It is owned by the Dispatcher until handed to the Aggregator and is
// immutable thereafter.
type AgentResponse struct {
	SubqueryID string `json:"subquery_id"`
	AgentID    string `json:"agent_id"`
	Content    string `json:"content"`
	Success    bool   `json:"success"`
	// Error is non-empty exactly when Success is false.
	Error string `json:"error,omitempty"`
	// Metadata carries execution_time (seconds), attempts, agent_name,
	// routing_pattern, and optional usage counters.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SynthesizedResult is the merged answer produced from multiple agent
// responses.
type SynthesizedResult struct {
	Answer string `json:"answer"`
	// Sources is the set of distinct agent ids that contributed.
	Sources []string `json:"sources"`
	// Confidence is clamped to [0,1].
	Confidence        float64        `json:"confidence"`
	ConflictsResolved []string       `json:"conflicts_resolved,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// EvaluationResult is the Judge's quality verdict on a candidate answer.
type EvaluationResult struct {
	IsHighQuality bool    `json:"is_high_quality"`
	Completeness  float64 `json:"completeness"`
	Accuracy      float64 `json:"accuracy"`
	Clarity       float64 `json:"clarity"`
	Issues        []string `json:"issues,omitempty"`
	// ShouldFallback is the inverse of IsHighQuality: when set, the
	// orchestrator replaces the answer with the configured fallback message.
	ShouldFallback bool           `json:"should_fallback"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Usage tracks token counts reported by a provider or agent call.
type Usage struct {
	TotalTokens      int `json:"total_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Add accumulates counts from another Usage.
func (u *Usage) Add(other Usage) {
	u.TotalTokens += other.TotalTokens
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// IsZero reports whether no tokens were recorded.
func (u Usage) IsZero() bool {
	return u.TotalTokens == 0 && u.PromptTokens == 0 && u.CompletionTokens == 0
}
