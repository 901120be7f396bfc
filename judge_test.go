package prism

import (
	"context"
	"errors"
	"testing"
)

func TestEvaluateHighQuality(t *testing.T) {
	p := scriptProvider(stubReply{text: `{"completeness": 0.9, "accuracy": 0.85, "clarity": 0.8,
		"relevance": 0.95, "coherence": 0.9, "conciseness": 0.7, "issues": [], "reasoning": "solid"}`})
	j := NewJudge(p, ModelParams{}, 0.7)

	eval := j.Evaluate(context.Background(), "Paris is the capital of France.", "capital of France?")
	if !eval.IsHighQuality {
		t.Fatal("IsHighQuality = false")
	}
	if eval.ShouldFallback {
		t.Error("ShouldFallback = true for passing scores")
	}
	if eval.Completeness != 0.9 || eval.Accuracy != 0.85 || eval.Clarity != 0.8 {
		t.Errorf("scores = %g/%g/%g", eval.Completeness, eval.Accuracy, eval.Clarity)
	}
	if eval.Metadata["relevance"] != 0.95 {
		t.Errorf("relevance = %v, want carried in metadata", eval.Metadata["relevance"])
	}
}

func TestEvaluateGatesOnEveryDimension(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"low completeness", `{"completeness": 0.5, "accuracy": 0.9, "clarity": 0.9}`},
		{"low accuracy", `{"completeness": 0.9, "accuracy": 0.6, "clarity": 0.9}`},
		{"low clarity", `{"completeness": 0.9, "accuracy": 0.9, "clarity": 0.1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j := NewJudge(scriptProvider(stubReply{text: tc.text}), ModelParams{}, 0.7)
			eval := j.Evaluate(context.Background(), "some answer", "some query")
			if eval.IsHighQuality {
				t.Error("IsHighQuality = true with a failing dimension")
			}
			if !eval.ShouldFallback {
				t.Error("ShouldFallback = false with a failing dimension")
			}
		})
	}
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	// Scores exactly at the threshold pass.
	p := scriptProvider(stubReply{text: `{"completeness": 0.7, "accuracy": 0.7, "clarity": 0.7}`})
	j := NewJudge(p, ModelParams{}, 0.7)

	eval := j.Evaluate(context.Background(), "answer", "query")
	if !eval.IsHighQuality {
		t.Error("scores equal to threshold should pass")
	}
}

func TestEvaluateEmptyAnswerSkipsProvider(t *testing.T) {
	p := scriptProvider()
	j := NewJudge(p, ModelParams{}, 0.7)

	eval := j.Evaluate(context.Background(), "   ", "query")
	if !eval.ShouldFallback {
		t.Fatal("ShouldFallback = false for empty answer")
	}
	if eval.IsHighQuality {
		t.Error("IsHighQuality = true for empty answer")
	}
	if p.callCount() != 0 {
		t.Errorf("provider calls = %d, want 0", p.callCount())
	}
}

func TestEvaluateProviderFailureIsConservative(t *testing.T) {
	p := scriptProvider(stubReply{err: errors.New("provider down")})
	j := NewJudge(p, ModelParams{}, 0.7)

	eval := j.Evaluate(context.Background(), "candidate answer", "query")
	if !eval.ShouldFallback {
		t.Error("ShouldFallback = false when provider is down")
	}
	if eval.Metadata["degraded"] != true {
		t.Error("degraded marker missing")
	}
}

func TestEvaluateParseFailureIsConservative(t *testing.T) {
	p := scriptProvider(stubReply{text: "looks good to me!"})
	j := NewJudge(p, ModelParams{}, 0.7)

	eval := j.Evaluate(context.Background(), "candidate answer", "query")
	if !eval.ShouldFallback {
		t.Error("ShouldFallback = false on unparseable response")
	}
	if len(eval.Issues) == 0 {
		t.Error("Issues should explain the degradation")
	}
}

func TestEvaluateClampsScores(t *testing.T) {
	p := scriptProvider(stubReply{text: `{"completeness": 1.8, "accuracy": 0.9, "clarity": -0.3}`})
	j := NewJudge(p, ModelParams{}, 0.7)

	eval := j.Evaluate(context.Background(), "answer", "query")
	if eval.Completeness != 1.0 {
		t.Errorf("Completeness = %g, want clamped 1.0", eval.Completeness)
	}
	if eval.Clarity != 0 {
		t.Errorf("Clarity = %g, want clamped 0", eval.Clarity)
	}
	if eval.IsHighQuality {
		t.Error("IsHighQuality = true with zero clarity")
	}
}
