package prism

import (
	"context"
	"errors"
	"sync"
	"time"
)

// stubReply is one scripted provider response.
type stubReply struct {
	text string
	err  error
}

// stubProvider returns scripted replies in call order and records every
// request it sees.
type stubProvider struct {
	mu      sync.Mutex
	replies []stubReply
	calls   []CompletionRequest
}

func scriptProvider(replies ...stubReply) *stubProvider {
	return &stubProvider{replies: replies}
}

func (p *stubProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.calls)
	p.calls = append(p.calls, req)
	if i >= len(p.replies) {
		return CompletionResponse{}, errors.New("unscripted provider call")
	}
	r := p.replies[i]
	if r.err != nil {
		return CompletionResponse{}, r.err
	}
	return CompletionResponse{Text: r.text}, nil
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// stubAgent answers with a fixed output, optionally after a delay, optionally
// failing its first failFor calls.
type stubAgent struct {
	name    string
	output  string
	err     error
	delay   time.Duration
	failFor int

	mu    sync.Mutex
	calls int
}

func (a *stubAgent) Name() string        { return a.name }
func (a *stubAgent) Description() string { return "stub agent " + a.name }

func (a *stubAgent) Execute(ctx context.Context, _ AgentTask) (AgentResult, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	a.mu.Unlock()

	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return AgentResult{}, ctx.Err()
		case <-time.After(a.delay):
		}
	}
	if n <= a.failFor {
		if a.err != nil {
			return AgentResult{}, a.err
		}
		return AgentResult{}, errors.New("transient failure")
	}
	if a.err != nil {
		return AgentResult{}, a.err
	}
	return AgentResult{Output: a.output}, nil
}

func (a *stubAgent) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
