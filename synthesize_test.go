package prism

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSynthesizeEmptyInput(t *testing.T) {
	s := NewSynthesizer(scriptProvider(), ModelParams{})
	_, err := s.Synthesize(context.Background(), nil, "query")

	var synthErr *ErrSynthesis
	if !errors.As(err, &synthErr) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
}

func TestSynthesizeSingleResponseBypassesProvider(t *testing.T) {
	p := scriptProvider()
	s := NewSynthesizer(p, ModelParams{})

	result, err := s.Synthesize(context.Background(), map[string]AgentResponse{
		"sq1": {SubqueryID: "sq1", AgentID: "geo_agent", Content: "48.85, 2.35", Success: true},
	}, "coordinates of Paris")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if result.Answer != "48.85, 2.35" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.Confidence != 1.0 {
		t.Errorf("Confidence = %g, want 1.0", result.Confidence)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "geo_agent" {
		t.Errorf("Sources = %v", result.Sources)
	}
	if p.callCount() != 0 {
		t.Errorf("provider calls = %d, want 0", p.callCount())
	}
}

func TestSynthesizeMergesMultipleResponses(t *testing.T) {
	p := scriptProvider(stubReply{text: `{"answer": "Apple HQ is in Cupertino and AAPL trades at $230.",
		"conflicts_resolved": ["unit mismatch"], "confidence": 0.9, "notes": "merged two sources"}`})
	s := NewSynthesizer(p, ModelParams{})

	result, err := s.Synthesize(context.Background(), map[string]AgentResponse{
		"sq2": {SubqueryID: "sq2", AgentID: "stock_agent", Content: "AAPL: $230", Success: true},
		"sq1": {SubqueryID: "sq1", AgentID: "geo_agent", Content: "Cupertino, CA", Success: true},
	}, "where is Apple HQ and what does AAPL trade at?")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.Contains(result.Answer, "Cupertino") {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.Confidence != 0.9 {
		t.Errorf("Confidence = %g, want 0.9", result.Confidence)
	}
	if len(result.ConflictsResolved) != 1 {
		t.Errorf("ConflictsResolved = %v", result.ConflictsResolved)
	}
	if len(result.Sources) != 2 || result.Sources[0] != "geo_agent" || result.Sources[1] != "stock_agent" {
		t.Errorf("Sources = %v, want sorted [geo_agent stock_agent]", result.Sources)
	}

	// Input sections are ordered by subquery id for determinism.
	input := p.calls[0].Input
	if strings.Index(input, "sq1") > strings.Index(input, "sq2") {
		t.Error("synthesis input not ordered by subquery id")
	}
}

func TestSynthesizeClampsConfidence(t *testing.T) {
	p := scriptProvider(stubReply{text: `{"answer": "merged", "confidence": 1.7}`})
	s := NewSynthesizer(p, ModelParams{})

	result, err := s.Synthesize(context.Background(), map[string]AgentResponse{
		"sq1": {AgentID: "a", Content: "x", Success: true},
		"sq2": {AgentID: "b", Content: "y", Success: true},
	}, "q")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if result.Confidence != 1.0 {
		t.Errorf("Confidence = %g, want clamped 1.0", result.Confidence)
	}
}

func TestSynthesizeParseFallbackUsesRawText(t *testing.T) {
	p := scriptProvider(stubReply{text: "Here is the combined answer in plain prose."})
	s := NewSynthesizer(p, ModelParams{})

	result, err := s.Synthesize(context.Background(), map[string]AgentResponse{
		"sq1": {AgentID: "a", Content: "x", Success: true},
		"sq2": {AgentID: "b", Content: "y", Success: true},
	}, "q")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if result.Answer != "Here is the combined answer in plain prose." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.Confidence != parseFallbackConfidence {
		t.Errorf("Confidence = %g, want %g", result.Confidence, parseFallbackConfidence)
	}
	if result.Metadata["parse_fallback"] != true {
		t.Error("parse_fallback marker missing")
	}
}

func TestSynthesizeProviderError(t *testing.T) {
	p := scriptProvider(stubReply{err: errors.New("boom")})
	s := NewSynthesizer(p, ModelParams{})

	_, err := s.Synthesize(context.Background(), map[string]AgentResponse{
		"sq1": {AgentID: "a", Content: "x", Success: true},
		"sq2": {AgentID: "b", Content: "y", Success: true},
	}, "q")
	if err == nil {
		t.Fatal("expected error")
	}
}
