// Package openaicompat implements prism.Provider for any OpenAI-compatible
// chat completions API.
//
// Works with OpenAI, OpenRouter, Groq, Together, Fireworks, DeepSeek,
// Mistral, Ollama, vLLM, LM Studio, Azure OpenAI, and any other provider
// that implements the OpenAI chat completions API.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nevindra/prism"
)

// Provider implements prism.Provider over the OpenAI chat completions API.
type Provider struct {
	apiKey       string
	defaultModel string
	baseURL      string
	client       *http.Client
	name         string
	// historyLimit bounds how many session messages are prepended as
	// conversation context. 0 means the default of 20.
	historyLimit int
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithName overrides the provider name (default "openai-compat").
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient replaces the HTTP client, e.g. to set timeouts or proxies.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// WithHistoryLimit sets how many session messages are sent as context.
func WithHistoryLimit(n int) ProviderOption {
	return func(p *Provider) { p.historyLimit = n }
}

// NewProvider creates an OpenAI-compatible chat provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"). The /chat/completions path is appended
// automatically. defaultModel is used when a request carries no model.
func NewProvider(apiKey, defaultModel, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		baseURL:      baseURL,
		client:       &http.Client{},
		name:         "openai-compat",
		historyLimit: 20,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// --- wire types ---

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// Complete sends one chat request. When the request carries a session, its
// recent history is inserted between the system prompt and the input so
// every stage sees the shared conversation context.
func (p *Provider) Complete(ctx context.Context, req prism.CompletionRequest) (prism.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	msgs := []message{{Role: "system", Content: req.System}}
	for _, m := range req.Session.History(ctx, p.historyLimit) {
		role := m.Role
		if role != "user" && role != "assistant" && role != "system" {
			// Agent-authored entries map to assistant turns, tagged with
			// their source.
			msgs = append(msgs, message{Role: "assistant", Content: fmt.Sprintf("[%s] %s", role, m.Content)})
			continue
		}
		msgs = append(msgs, message{Role: role, Content: m.Content})
	}
	msgs = append(msgs, message{Role: "user", Content: req.Input})

	body := chatRequest{Model: model, Messages: msgs, MaxTokens: req.MaxTokens}
	if req.Temperature != 0 {
		t := req.Temperature
		body.Temperature = &t
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return prism.CompletionResponse{}, &prism.ErrProvider{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return prism.CompletionResponse{}, &prism.ErrProvider{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return prism.CompletionResponse{}, &prism.ErrProvider{Provider: p.name, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return prism.CompletionResponse{}, &prism.ErrHTTP{Status: resp.StatusCode, Body: string(raw)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return prism.CompletionResponse{}, &prism.ErrProvider{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return prism.CompletionResponse{}, &prism.ErrProvider{Provider: p.name, Message: "response contained no choices"}
	}

	out := prism.CompletionResponse{Text: parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		out.Usage = prism.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return out, nil
}

// Compile-time interface check.
var _ prism.Provider = (*Provider)(nil)
