package prism

import "testing"

func TestFastPathMatchesPureChitchat(t *testing.T) {
	f := NewFastPathRouter()
	cases := []struct {
		input   string
		pattern string
	}{
		{"hi", "greeting"},
		{"Hello!", "greeting"},
		{"hey there", "greeting"},
		{"Good morning", "time_of_day_greeting"},
		{"bye", "farewell"},
		{"see you later!", "farewell"},
		{"thanks", "gratitude"},
		{"Thank you so much!!", "gratitude"},
		{"how are you?", "status_inquiry"},
		{"what's up", "status_inquiry"},
		{"yep", "affirmation"},
		{"sounds good!", "affirmation"},
		{"no thanks", "negation"},
		{"  hello  ", "greeting"},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			intent, ok := f.TryFastPath(tc.input)
			if !ok {
				t.Fatalf("TryFastPath(%q) missed", tc.input)
			}
			if got := intent.Metadata["fast_path_pattern"]; got != tc.pattern {
				t.Errorf("pattern = %v, want %s", got, tc.pattern)
			}
			if intent.Complexity != ComplexitySimple {
				t.Errorf("complexity = %s, want SIMPLE", intent.Complexity)
			}
			if !intent.IsChitchat() {
				t.Errorf("domains = %v, want chitchat", intent.Domains)
			}
			if intent.OriginalQuery != tc.input {
				t.Errorf("original query = %q, want %q", intent.OriginalQuery, tc.input)
			}
		})
	}
}

func TestFastPathRejectsSubstantiveQueries(t *testing.T) {
	f := NewFastPathRouter()
	cases := []string{
		"hello, what's the weather?",
		"hi, can you find me a restaurant nearby",
		"thanks, but what is the capital of France?",
		"good morning, any news today?",
		"yes I want the stock price of AAPL",
		"what is the weather in Tokyo",
		"how are you calculating this?",
	}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			if _, ok := f.TryFastPath(input); ok {
				t.Errorf("TryFastPath(%q) matched; substantive queries must miss", input)
			}
		})
	}
}

func TestFastPathMetrics(t *testing.T) {
	f := NewFastPathRouter()
	f.TryFastPath("hi")
	f.TryFastPath("thanks")
	f.TryFastPath("weather in Paris?")
	f.TryFastPath("hello")

	m := f.Metrics()
	if m.TotalAttempts != 4 {
		t.Errorf("attempts = %d, want 4", m.TotalAttempts)
	}
	if m.TotalMatches != 3 {
		t.Errorf("matches = %d, want 3", m.TotalMatches)
	}
	if m.MatchRate != 0.75 {
		t.Errorf("match rate = %g, want 0.75", m.MatchRate)
	}
	if m.PatternCounts["greeting"] != 2 {
		t.Errorf("greeting hits = %d, want 2", m.PatternCounts["greeting"])
	}
	if m.PatternCounts["gratitude"] != 1 {
		t.Errorf("gratitude hits = %d, want 1", m.PatternCounts["gratitude"])
	}

	f.ResetMetrics()
	if m := f.Metrics(); m.TotalAttempts != 0 || m.TotalMatches != 0 {
		t.Errorf("metrics after reset = %+v, want zeros", m)
	}
}

func TestFastPathAddRemovePattern(t *testing.T) {
	f := NewFastPathRouter()
	if err := f.AddPattern("apology", `(?:sorry|my\s+bad|apologies)`); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	if _, ok := f.TryFastPath("sorry!"); !ok {
		t.Error("custom pattern should match")
	}

	// Replacing a name keeps its position.
	before := len(f.Patterns())
	if err := f.AddPattern("apology", `(?:sorry)`); err != nil {
		t.Fatalf("AddPattern replace: %v", err)
	}
	if got := len(f.Patterns()); got != before {
		t.Errorf("pattern count after replace = %d, want %d", got, before)
	}
	if _, ok := f.TryFastPath("my bad"); ok {
		t.Error("replaced pattern should no longer match old expression")
	}

	if !f.RemovePattern("apology") {
		t.Error("RemovePattern returned false for present pattern")
	}
	if f.RemovePattern("apology") {
		t.Error("RemovePattern returned true for absent pattern")
	}
	if _, ok := f.TryFastPath("sorry"); ok {
		t.Error("removed pattern should not match")
	}
}

func TestFastPathAddPatternRejectsBadRegex(t *testing.T) {
	f := NewFastPathRouter()
	if err := f.AddPattern("bad", `([unclosed`); err == nil {
		t.Error("expected compile error, got nil")
	}
}

func TestFastPathPatternOrder(t *testing.T) {
	f := NewFastPathRouter()
	got := f.Patterns()
	want := []string{
		"greeting", "time_of_day_greeting", "farewell", "gratitude",
		"status_inquiry", "affirmation", "negation",
	}
	if len(got) != len(want) {
		t.Fatalf("Patterns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Patterns[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
