package prism

import (
	"context"
	"fmt"
	"log/slog"
)

// LLMAgent is an Agent that answers subqueries through a completion
// provider with a capability-specific system prompt. It is the default
// specialist used by cmd/prism; production deployments typically mix
// LLMAgents with agents wrapping real APIs.
type LLMAgent struct {
	name         string
	description  string
	provider     Provider
	model        ModelParams
	systemPrompt string
	tracer       Tracer
	logger       *slog.Logger
}

// LLMAgentOption configures an LLMAgent.
type LLMAgentOption func(*LLMAgent)

// WithLLMAgentModel sets the model parameters for the agent's calls.
func WithLLMAgentModel(m ModelParams) LLMAgentOption {
	return func(a *LLMAgent) { a.model = m }
}

// WithLLMAgentPrompt replaces the default system prompt.
func WithLLMAgentPrompt(prompt string) LLMAgentOption {
	return func(a *LLMAgent) { a.systemPrompt = prompt }
}

// WithLLMAgentTracer enables span emission per execution.
func WithLLMAgentTracer(t Tracer) LLMAgentOption {
	return func(a *LLMAgent) { a.tracer = t }
}

// WithLLMAgentLogger sets a structured logger.
func WithLLMAgentLogger(l *slog.Logger) LLMAgentOption {
	return func(a *LLMAgent) { a.logger = l }
}

// NewLLMAgent creates an LLMAgent. The default system prompt instructs the
// model to answer as the named specialist.
func NewLLMAgent(name, description string, provider Provider, opts ...LLMAgentOption) *LLMAgent {
	a := &LLMAgent{
		name:        name,
		description: description,
		provider:    provider,
		systemPrompt: fmt.Sprintf(
			"You are %s, a specialist agent. %s Answer the query directly and concisely.",
			name, description),
		logger: nopLogger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *LLMAgent) Name() string        { return a.name }
func (a *LLMAgent) Description() string { return a.description }

// Execute answers the task with one provider call. The task's session is
// forwarded so the provider sees the shared conversation context.
func (a *LLMAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	if a.tracer != nil {
		var span Span
		ctx, span = a.tracer.Start(ctx, "agent.execute", StringAttr("agent.name", a.name))
		defer span.End()
	}

	resp, err := a.provider.Complete(ctx, CompletionRequest{
		System:      a.systemPrompt,
		Input:       task.Input,
		Model:       a.model.Name,
		Temperature: a.model.Temperature,
		MaxTokens:   a.model.MaxTokens,
		Session:     task.Session,
	})
	if err != nil {
		a.logger.Warn("agent call failed", "agent", a.name, "error", err)
		return AgentResult{}, err
	}
	return AgentResult{Output: resp.Text, Usage: resp.Usage}, nil
}

// compile-time check
var _ Agent = (*LLMAgent)(nil)
