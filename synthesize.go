package prism

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// synthesizePrompt instructs the provider to merge per-agent answers into one
// coherent response.
const synthesizePrompt = `You merge answers from multiple specialist agents
into one coherent response to the user's original query. Resolve conflicts
between agents explicitly and note what you resolved. Return ONLY a JSON
object:

{"answer": string, "conflicts_resolved": [string], "confidence": number, "notes": string}

confidence is your 0 to 1 estimate that the merged answer is correct and
complete.`

// parseFallbackConfidence is assigned when the provider's synthesis response
// is not parseable JSON and its raw text is used as the answer instead.
const parseFallbackConfidence = 0.7

// Synthesizer merges successful agent responses into a single answer.
type Synthesizer struct {
	provider Provider
	model    ModelParams
	session  *Session
	logger   *slog.Logger
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithSynthesizerLogger sets a structured logger for degradation events.
func WithSynthesizerLogger(l *slog.Logger) SynthesizerOption {
	return func(s *Synthesizer) { s.logger = l }
}

// WithSynthesizerSession attaches the shared conversation session to
// provider calls.
func WithSynthesizerSession(sess *Session) SynthesizerOption {
	return func(s *Synthesizer) { s.session = sess }
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(provider Provider, model ModelParams, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{provider: provider, model: model, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize merges responses into one answer for the original query.
// Empty input raises ErrSynthesis. A single response bypasses the provider
// and is returned verbatim with confidence 1.0. Multiple responses go
// through the provider; if its JSON cannot be parsed, the raw text is used
// as the answer with lowered confidence rather than failing.
func (s *Synthesizer) Synthesize(ctx context.Context, responses map[string]AgentResponse, originalQuery string) (SynthesizedResult, error) {
	if len(responses) == 0 {
		return SynthesizedResult{}, &ErrSynthesis{Reason: "no responses to synthesize"}
	}

	sources := distinctAgents(responses)

	if len(responses) == 1 {
		for _, resp := range responses {
			return SynthesizedResult{
				Answer:     resp.Content,
				Sources:    sources,
				Confidence: 1.0,
				Metadata:   map[string]any{"single_response": true},
			}, nil
		}
	}

	input := buildSynthesisInput(responses, originalQuery)
	resp, err := s.provider.Complete(ctx, CompletionRequest{
		System:      synthesizePrompt,
		Input:       input,
		Model:       s.model.Name,
		Temperature: s.model.Temperature,
		MaxTokens:   s.model.MaxTokens,
		Session:     s.session,
	})
	if err != nil {
		return SynthesizedResult{}, fmt.Errorf("synthesize: %w", err)
	}

	result, err := parseSynthesis(resp.Text)
	if err != nil {
		s.logger.Warn("synthesis parse failed, using raw text", "error", err)
		return SynthesizedResult{
			Answer:     strings.TrimSpace(resp.Text),
			Sources:    sources,
			Confidence: parseFallbackConfidence,
			Metadata:   map[string]any{"parse_fallback": true},
		}, nil
	}
	result.Sources = sources
	return result, nil
}

// buildSynthesisInput renders the original query plus one section per agent
// response, ordered by subquery id for determinism.
func buildSynthesisInput(responses map[string]AgentResponse, originalQuery string) string {
	ids := make([]string, 0, len(responses))
	for id := range responses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("Original query: ")
	b.WriteString(originalQuery)
	b.WriteString("\n\n")
	for _, id := range ids {
		resp := responses[id]
		fmt.Fprintf(&b, "--- %s (agent: %s) ---\n%s\n\n", id, resp.AgentID, resp.Content)
	}
	return b.String()
}

// parseSynthesis decodes the provider's synthesis JSON, clamping confidence.
func parseSynthesis(response string) (SynthesizedResult, error) {
	raw, err := ExtractJSON(response)
	if err != nil {
		return SynthesizedResult{}, err
	}
	var parsed struct {
		Answer            string   `json:"answer"`
		ConflictsResolved []string `json:"conflicts_resolved"`
		Confidence        float64  `json:"confidence"`
		Notes             string   `json:"notes"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return SynthesizedResult{}, err
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return SynthesizedResult{}, fmt.Errorf("synthesis response missing answer")
	}
	result := SynthesizedResult{
		Answer:            parsed.Answer,
		Confidence:        clamp01(parsed.Confidence),
		ConflictsResolved: parsed.ConflictsResolved,
	}
	if parsed.Notes != "" {
		result.Metadata = map[string]any{"notes": parsed.Notes}
	}
	return result, nil
}

// distinctAgents returns the sorted set of distinct agent ids across
// responses.
func distinctAgents(responses map[string]AgentResponse) []string {
	seen := make(map[string]bool)
	var agents []string
	for _, resp := range responses {
		if !seen[resp.AgentID] {
			seen[resp.AgentID] = true
			agents = append(agents, resp.AgentID)
		}
	}
	sort.Strings(agents)
	return agents
}
