package prism

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testSettings() Settings {
	s := DefaultSettings()
	s.Timeout = time.Second
	s.Retries = 0
	return s
}

func phaseNames(traces []PhaseTrace) []string {
	names := make([]string, len(traces))
	for i, tr := range traces {
		names[i] = tr.Phase
	}
	return names
}

func hasPhase(traces []PhaseTrace, phase string) bool {
	for _, tr := range traces {
		if tr.Phase == phase {
			return true
		}
	}
	return false
}

func TestRouteQueryChitchatFastPath(t *testing.T) {
	ResetShared()
	t.Cleanup(ResetShared)

	p := scriptProvider() // no provider call is expected at all
	o := NewOrchestrator(p, map[string][]string{
		"conversation_agent": {"conversation"},
		"search_agent":       {"search"},
	},
		WithAgents(
			&stubAgent{name: "conversation_agent", output: "Hey! How can I help?"},
			&stubAgent{name: "search_agent", output: "unused"},
		),
		WithSettings(testSettings()))

	result := o.RouteQuery(context.Background(), "hello!", nil)
	if !result.Success {
		t.Fatalf("Success = false: %+v", result)
	}
	if result.FinalDecision != DecisionChitchat {
		t.Errorf("decision = %s, want chitchat", result.FinalDecision)
	}
	if result.Answer != "Hey! How can I help?" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.AgentsUsed) != 1 || result.AgentsUsed[0] != "conversation_agent" {
		t.Errorf("AgentsUsed = %v", result.AgentsUsed)
	}
	if p.callCount() != 0 {
		t.Errorf("provider calls = %d, want 0 on the fast path", p.callCount())
	}

	got := phaseNames(result.Traces)
	want := []string{PhaseFastPath, PhaseRouting, PhaseExecution}
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phases[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRouteQuerySimpleDirect(t *testing.T) {
	ResetShared()
	t.Cleanup(ResetShared)

	p := scriptProvider(
		stubReply{text: `{"complexity": "SIMPLE", "domains": ["weather"], "requires_synthesis": false}`},
		stubReply{text: `{"completeness": 0.9, "accuracy": 0.9, "clarity": 0.9}`},
	)
	o := NewOrchestrator(p, map[string][]string{
		"search_agent": {"search"},
	},
		WithAgents(&stubAgent{name: "search_agent", output: "Sunny, 24C in Tokyo."}),
		WithSettings(testSettings()))

	result := o.RouteQuery(context.Background(), "what's the weather in Tokyo?", nil)
	if !result.Success {
		t.Fatalf("Success = false: %+v", result)
	}
	if result.FinalDecision != DecisionDirect {
		t.Errorf("decision = %s, want direct", result.FinalDecision)
	}
	if result.Answer != "Sunny, 24C in Tokyo." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.AgentsUsed) != 1 || result.AgentsUsed[0] != "search_agent" {
		t.Errorf("AgentsUsed = %v", result.AgentsUsed)
	}
	if result.OriginalAnswer != "" {
		t.Errorf("OriginalAnswer = %q, want empty outside fallback", result.OriginalAnswer)
	}
	for _, phase := range []string{PhaseFastPath, PhaseInterpretation, PhaseRouting, PhaseExecution, PhaseEvaluation} {
		if !hasPhase(result.Traces, phase) {
			t.Errorf("missing %s trace: %v", phase, phaseNames(result.Traces))
		}
	}
}

func TestRouteQueryComplexSynthesized(t *testing.T) {
	ResetShared()
	t.Cleanup(ResetShared)

	p := scriptProvider(
		stubReply{text: `{"complexity": "COMPLEX", "domains": ["geocoding", "finance"], "requires_synthesis": true}`},
		stubReply{text: `[
			{"id": "sq1", "text": "where is Apple HQ", "capability_required": "geocoding"},
			{"id": "sq2", "text": "AAPL price", "capability_required": "stocks"}
		]`},
		stubReply{text: `{"answer": "Apple HQ is in Cupertino; AAPL trades at $230.", "confidence": 0.9}`},
		stubReply{text: `{"completeness": 0.9, "accuracy": 0.9, "clarity": 0.9}`},
	)
	o := NewOrchestrator(p, map[string][]string{
		"geo_agent":   {"geocoding"},
		"stock_agent": {"stocks"},
	},
		WithAgents(
			&stubAgent{name: "geo_agent", output: "Cupertino, CA"},
			&stubAgent{name: "stock_agent", output: "AAPL: $230"},
		),
		WithSettings(testSettings()))

	result := o.RouteQuery(context.Background(), "where is Apple HQ and what does AAPL trade at?", nil)
	if !result.Success {
		t.Fatalf("Success = false: %+v", result)
	}
	if result.FinalDecision != DecisionSynthesized {
		t.Errorf("decision = %s, want synthesized", result.FinalDecision)
	}
	if result.Answer != "Apple HQ is in Cupertino; AAPL trades at $230." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.AgentsUsed) != 2 || result.AgentsUsed[0] != "geo_agent" || result.AgentsUsed[1] != "stock_agent" {
		t.Errorf("AgentsUsed = %v, want [geo_agent stock_agent]", result.AgentsUsed)
	}
	for _, phase := range []string{PhaseDecomposition, PhaseAggregation, PhaseSynthesis, PhaseEvaluation} {
		if !hasPhase(result.Traces, phase) {
			t.Errorf("missing %s trace: %v", phase, phaseNames(result.Traces))
		}
	}
}

func TestRouteQueryQualityFallbackPreservesOriginal(t *testing.T) {
	ResetShared()
	t.Cleanup(ResetShared)

	p := scriptProvider(
		stubReply{text: `{"complexity": "SIMPLE", "domains": ["search"]}`},
		stubReply{text: `{"completeness": 0.2, "accuracy": 0.3, "clarity": 0.4}`},
	)
	settings := testSettings()
	o := NewOrchestrator(p, map[string][]string{"search_agent": {"search"}},
		WithAgents(&stubAgent{name: "search_agent", output: "vague non-answer"}),
		WithSettings(settings))

	result := o.RouteQuery(context.Background(), "explain quantum entanglement", nil)
	if !result.Success {
		t.Fatalf("Success = false: %+v", result)
	}
	if result.FinalDecision != DecisionFallback {
		t.Errorf("decision = %s, want fallback", result.FinalDecision)
	}
	if result.Answer != settings.FallbackMessage {
		t.Errorf("Answer = %q, want fallback message", result.Answer)
	}
	if result.OriginalAnswer != "vague non-answer" {
		t.Errorf("OriginalAnswer = %q, want the pre-fallback answer", result.OriginalAnswer)
	}
}

func TestRouteQueryDispatchFailureIsErrorDecision(t *testing.T) {
	ResetShared()
	t.Cleanup(ResetShared)

	p := scriptProvider(
		stubReply{text: `{"complexity": "SIMPLE", "domains": ["search"]}`},
	)
	settings := testSettings()
	o := NewOrchestrator(p, map[string][]string{"search_agent": {"search"}},
		WithAgents(&stubAgent{name: "search_agent", err: errors.New("backend down")}),
		WithSettings(settings))

	result := o.RouteQuery(context.Background(), "anything at all?", nil)
	if result.Success {
		t.Fatal("Success = true for a failed pipeline")
	}
	if result.FinalDecision != DecisionError {
		t.Errorf("decision = %s, want error", result.FinalDecision)
	}
	if result.Answer != settings.FallbackMessage {
		t.Errorf("Answer = %q, want fallback message", result.Answer)
	}
}

func TestRouteQueryEmptyDecompositionDegradesToSimple(t *testing.T) {
	ResetShared()
	t.Cleanup(ResetShared)

	p := scriptProvider(
		stubReply{text: `{"complexity": "COMPLEX", "domains": ["search"], "requires_synthesis": true}`},
		stubReply{text: `[]`},
		stubReply{text: `{"completeness": 0.9, "accuracy": 0.9, "clarity": 0.9}`},
	)
	o := NewOrchestrator(p, map[string][]string{"search_agent": {"search"}},
		WithAgents(&stubAgent{name: "search_agent", output: "direct answer"}),
		WithSettings(testSettings()))

	result := o.RouteQuery(context.Background(), "something the decomposer could not split", nil)
	if !result.Success {
		t.Fatalf("Success = false: %+v", result)
	}
	if result.FinalDecision != DecisionDirect {
		t.Errorf("decision = %s, want direct after degradation", result.FinalDecision)
	}
	if result.Answer != "direct answer" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.AgentsUsed) != 1 {
		t.Errorf("AgentsUsed = %v, want single agent", result.AgentsUsed)
	}
}

func TestRouteQueryAllSubqueriesFailed(t *testing.T) {
	ResetShared()
	t.Cleanup(ResetShared)

	p := scriptProvider(
		stubReply{text: `{"complexity": "COMPLEX", "domains": ["geocoding", "finance"], "requires_synthesis": true}`},
		stubReply{text: `[
			{"id": "sq1", "text": "a", "capability_required": "geocoding"},
			{"id": "sq2", "text": "b", "capability_required": "stocks"}
		]`},
		stubReply{text: `{"completeness": 0, "accuracy": 0, "clarity": 0}`},
	)
	settings := testSettings()
	o := NewOrchestrator(p, map[string][]string{
		"geo_agent":   {"geocoding"},
		"stock_agent": {"stocks"},
	},
		WithAgents(
			&stubAgent{name: "geo_agent", err: errors.New("down")},
			&stubAgent{name: "stock_agent", err: errors.New("down")},
		),
		WithSettings(settings))

	result := o.RouteQuery(context.Background(), "two-part question", nil)
	if !result.Success {
		t.Fatalf("Success = false: %+v", result)
	}
	if result.FinalDecision != DecisionFallback {
		t.Errorf("decision = %s, want fallback", result.FinalDecision)
	}
	if result.Answer != settings.FallbackMessage {
		t.Errorf("Answer = %q, want fallback message", result.Answer)
	}
	if len(result.AgentsUsed) != 2 {
		t.Errorf("AgentsUsed = %v, want both attempted agents", result.AgentsUsed)
	}
}

// memStore is an in-memory Store for session recording assertions.
type memStore struct {
	messages []Message
}

func (m *memStore) Init(context.Context) error { return nil }

func (m *memStore) AppendMessage(_ context.Context, msg Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memStore) Messages(_ context.Context, sessionID string, limit int) ([]Message, error) {
	var out []Message
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func TestRouteQueryRecordsSession(t *testing.T) {
	ResetShared()
	t.Cleanup(ResetShared)

	store := &memStore{}
	session := NewSession(store)
	o := NewOrchestrator(scriptProvider(), map[string][]string{
		"conversation_agent": {"conversation"},
	},
		WithAgents(&stubAgent{name: "conversation_agent", output: "Hi there!"}),
		WithSettings(testSettings()),
		WithSession(session))

	o.RouteQuery(context.Background(), "hello", nil)

	roles := make([]string, len(store.messages))
	for i, msg := range store.messages {
		roles[i] = msg.Role
	}
	want := []string{"user", "conversation_agent", "assistant"}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Errorf("roles[%d] = %q, want %q", i, roles[i], want[i])
		}
	}
	if store.messages[2].Content != "Hi there!" {
		t.Errorf("assistant content = %q", store.messages[2].Content)
	}
}

func TestDomainsByPriority(t *testing.T) {
	got := domainsByPriority([]string{"search", "weather", "finance", "weather"})
	want := []string{"weather", "finance", "search"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", s.Timeout)
	}
	if s.Retries != 2 {
		t.Errorf("Retries = %d, want 2", s.Retries)
	}
	if s.QualityThreshold != 0.7 {
		t.Errorf("QualityThreshold = %g, want 0.7", s.QualityThreshold)
	}
	if s.MaxSubqueries != 10 {
		t.Errorf("MaxSubqueries = %d, want 10", s.MaxSubqueries)
	}
	if s.FallbackMessage == "" {
		t.Error("FallbackMessage is empty")
	}
}
