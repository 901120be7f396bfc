package prism

import "context"

// Provider abstracts the completion backend used by the LLM-facing pipeline
// stages (Interpreter, Decomposer, Synthesizer, Judge). The contract is
// prompt-in / text-out: response text is expected to be JSON, possibly inside
// a fenced code block or followed by prose, and callers extract the first
// balanced JSON value via ExtractJSON.
type Provider interface {
	// Complete sends system instructions plus user input and returns the
	// response text with usage counters.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// Name returns the provider name (e.g. "openai-compat", "gemini").
	Name() string
}

// CompletionRequest is a single prompt-in / text-out call.
type CompletionRequest struct {
	// System carries the stage's instructions.
	System string
	// Input is the user-visible content for this call.
	Input string
	// Model, Temperature, and MaxTokens come from the per-stage model
	// configuration. Zero values defer to provider defaults.
	Model       string
	Temperature float64
	MaxTokens   int
	// Session, when non-nil, identifies the conversation so the provider
	// can see shared cross-agent context. All stages within one
	// conversation pass the same session.
	Session *Session
}

// CompletionResponse is the provider's reply.
type CompletionResponse struct {
	Text  string
	Usage Usage
}

// ModelParams configures one pipeline stage's provider calls.
type ModelParams struct {
	Name        string
	Temperature float64
	MaxTokens   int
}
