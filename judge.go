package prism

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// judgePrompt instructs the provider to score a candidate answer.
const judgePrompt = `You evaluate whether a candidate answer properly
addresses the user's query. Score each dimension from 0 to 1 and return ONLY
a JSON object:

{"completeness": number, "accuracy": number, "clarity": number,
 "relevance": number, "coherence": number, "conciseness": number,
 "issues": [string], "reasoning": string}

Evaluation criteria: %s.`

// Judge gates the pipeline's answer on a quality evaluation. The gate passes
// only when completeness, accuracy, and clarity all meet the threshold; the
// remaining scores are carried as diagnostics. A provider or parse failure
// yields a conservative should-fallback verdict instead of an error, so the
// orchestrator always receives a decision.
type Judge struct {
	provider  Provider
	model     ModelParams
	threshold float64
	criteria  []string
	session   *Session
	logger    *slog.Logger
}

// JudgeOption configures a Judge.
type JudgeOption func(*Judge)

// WithJudgeLogger sets a structured logger for degradation events.
func WithJudgeLogger(l *slog.Logger) JudgeOption {
	return func(j *Judge) { j.logger = l }
}

// WithJudgeCriteria sets the evaluation criteria included in the prompt.
func WithJudgeCriteria(criteria []string) JudgeOption {
	return func(j *Judge) { j.criteria = criteria }
}

// WithJudgeSession attaches the shared conversation session to provider
// calls.
func WithJudgeSession(s *Session) JudgeOption {
	return func(j *Judge) { j.session = s }
}

// NewJudge creates a Judge with the given quality threshold.
func NewJudge(provider Provider, model ModelParams, threshold float64, opts ...JudgeOption) *Judge {
	j := &Judge{
		provider:  provider,
		model:     model,
		threshold: clamp01(threshold),
		criteria:  []string{"completeness", "accuracy", "clarity"},
		logger:    nopLogger,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Evaluate scores answer against originalQuery. An empty or whitespace-only
// answer short-circuits to a zero-score fallback verdict without a provider
// call.
func (j *Judge) Evaluate(ctx context.Context, answer, originalQuery string) EvaluationResult {
	if strings.TrimSpace(answer) == "" {
		return EvaluationResult{
			ShouldFallback: true,
			Issues:         []string{"empty answer"},
			Metadata:       map[string]any{"skipped_provider": true},
		}
	}

	input := fmt.Sprintf("Query: %s\n\nCandidate answer:\n%s", originalQuery, answer)
	resp, err := j.provider.Complete(ctx, CompletionRequest{
		System:      fmt.Sprintf(judgePrompt, strings.Join(j.criteria, ", ")),
		Input:       input,
		Model:       j.model.Name,
		Temperature: j.model.Temperature,
		MaxTokens:   j.model.MaxTokens,
		Session:     j.session,
	})
	if err != nil {
		j.logger.Warn("evaluation provider failed, conservative fallback", "error", err)
		return conservativeEvaluation(err.Error())
	}

	result, err := j.parseEvaluation(resp.Text)
	if err != nil {
		j.logger.Warn("evaluation parse failed, conservative fallback", "error", err)
		return conservativeEvaluation(err.Error())
	}
	return result
}

// parseEvaluation decodes the provider's scores and applies the quality gate.
func (j *Judge) parseEvaluation(response string) (EvaluationResult, error) {
	raw, err := ExtractJSON(response)
	if err != nil {
		return EvaluationResult{}, err
	}
	var parsed struct {
		Completeness float64  `json:"completeness"`
		Accuracy     float64  `json:"accuracy"`
		Clarity      float64  `json:"clarity"`
		Relevance    float64  `json:"relevance"`
		Coherence    float64  `json:"coherence"`
		Conciseness  float64  `json:"conciseness"`
		Issues       []string `json:"issues"`
		Reasoning    string   `json:"reasoning"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return EvaluationResult{}, err
	}

	completeness := clamp01(parsed.Completeness)
	accuracy := clamp01(parsed.Accuracy)
	clarity := clamp01(parsed.Clarity)

	high := completeness >= j.threshold && accuracy >= j.threshold && clarity >= j.threshold
	return EvaluationResult{
		IsHighQuality:  high,
		Completeness:   completeness,
		Accuracy:       accuracy,
		Clarity:        clarity,
		Issues:         parsed.Issues,
		ShouldFallback: !high,
		Metadata: map[string]any{
			"relevance":   clamp01(parsed.Relevance),
			"coherence":   clamp01(parsed.Coherence),
			"conciseness": clamp01(parsed.Conciseness),
			"reasoning":   parsed.Reasoning,
		},
	}, nil
}

// conservativeEvaluation is the degraded verdict used when the provider
// cannot be consulted: always fall back.
func conservativeEvaluation(reason string) EvaluationResult {
	return EvaluationResult{
		ShouldFallback: true,
		Issues:         []string{"evaluation unavailable: " + reason},
		Metadata:       map[string]any{"degraded": true},
	}
}
