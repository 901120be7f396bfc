package prism

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// FastPathRouter is a regex-only pre-classifier that short-circuits the LLM
// pipeline for pure chitchat. Patterns are compiled once, matched
// case-insensitively against the whole trimmed input (anchored start and end,
// allowing a trailing run of !.? punctuation), and scanned linearly in
// declared order — first match wins.
//
// Default patterns match pure chitchat only: greetings, time-of-day
// greetings, farewells, gratitude, status inquiries, affirmations, and
// negations. Any input that carries a substantive question after the
// pleasantry must miss every pattern; the anchoring guarantees this.
//
// TryFastPath and Metrics are safe under concurrent access; pattern mutation
// (AddPattern/RemovePattern) is expected to be single-threaded at setup.
type FastPathRouter struct {
	mu       sync.RWMutex
	patterns []fastPattern
	attempts uint64
	matches  uint64
	perHit   map[string]uint64
}

type fastPattern struct {
	name       string
	re         *regexp.Regexp
	domains    []string
	complexity QueryComplexity
}

// FastPathMetrics is a snapshot of fast-path counters.
type FastPathMetrics struct {
	TotalAttempts uint64            `json:"total_attempts"`
	TotalMatches  uint64            `json:"total_matches"`
	MatchRate     float64           `json:"match_rate"`
	PatternCounts map[string]uint64 `json:"pattern_counts"`
}

// defaultFastPatterns are the built-in chitchat patterns, in match order.
var defaultFastPatterns = []struct {
	name string
	expr string
}{
	{"greeting", `(?:hi|hiya|hey|heya|hello|yo|howdy)(?:\s+there)?`},
	{"time_of_day_greeting", `good\s+(?:morning|afternoon|evening|day)`},
	{"farewell", `(?:bye|goodbye|good\s*night|see\s+you(?:\s+later)?|later|take\s+care)`},
	{"gratitude", `(?:thanks|thank\s+you(?:\s+(?:so|very)\s+much)?|thx|ty|much\s+appreciated)`},
	{"status_inquiry", `(?:how\s+are\s+you(?:\s+doing)?|how'?s\s+it\s+going|how\s+do\s+you\s+do|what'?s\s+up|sup)`},
	{"affirmation", `(?:yes|yep|yeah|yup|ok|okay|sure|sounds\s+good|got\s+it|great|nice|cool|perfect)`},
	{"negation", `(?:no|nope|nah|not\s+really|no\s+thanks)`},
}

// NewFastPathRouter creates a router with the default chitchat patterns
// installed.
func NewFastPathRouter() *FastPathRouter {
	f := &FastPathRouter{perHit: make(map[string]uint64)}
	for _, p := range defaultFastPatterns {
		// Defaults are known-good expressions.
		if err := f.AddPattern(p.name, p.expr); err != nil {
			panic(fmt.Sprintf("fastpath: default pattern %s: %v", p.name, err))
		}
	}
	return f
}

// compileFastPattern anchors expr to the whole input, case-insensitive,
// tolerating a trailing run of !.? punctuation and whitespace.
func compileFastPattern(expr string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)^(?:` + expr + `)[\s!.?]*$`)
}

// TryFastPath matches text against the patterns in order and returns the
// chitchat intent for the first match. The input is trimmed and
// NFC-normalized before matching.
func (f *FastPathRouter) TryFastPath(text string) (QueryIntent, bool) {
	normalized := norm.NFC.String(strings.TrimSpace(text))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	for _, p := range f.patterns {
		if !p.re.MatchString(normalized) {
			continue
		}
		f.matches++
		f.perHit[p.name]++
		return QueryIntent{
			OriginalQuery:     text,
			Complexity:        p.complexity,
			Domains:           append([]string(nil), p.domains...),
			RequiresSynthesis: false,
			Metadata: map[string]any{
				"fast_path":            true,
				"fast_path_pattern":    p.name,
				"fast_path_confidence": 1.0,
			},
		}, true
	}
	return QueryIntent{}, false
}

// AddPattern appends a named pattern matching the chitchat intent
// (conversation/social, SIMPLE). Returns an error if expr does not compile.
// Adding a name that already exists replaces the old pattern in place.
func (f *FastPathRouter) AddPattern(name, expr string) error {
	re, err := compileFastPattern(expr)
	if err != nil {
		return fmt.Errorf("fastpath pattern %q: %w", name, err)
	}
	p := fastPattern{
		name:       name,
		re:         re,
		domains:    []string{"conversation", "social"},
		complexity: ComplexitySimple,
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.patterns {
		if f.patterns[i].name == name {
			f.patterns[i] = p
			return nil
		}
	}
	f.patterns = append(f.patterns, p)
	return nil
}

// RemovePattern removes the named pattern. Returns false if absent.
func (f *FastPathRouter) RemovePattern(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.patterns {
		if f.patterns[i].name == name {
			f.patterns = append(f.patterns[:i], f.patterns[i+1:]...)
			return true
		}
	}
	return false
}

// Patterns returns the pattern names in match order.
func (f *FastPathRouter) Patterns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, len(f.patterns))
	for i, p := range f.patterns {
		names[i] = p.name
	}
	return names
}

// Metrics returns attempt/match counters and per-pattern hit counts.
func (f *FastPathRouter) Metrics() FastPathMetrics {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m := FastPathMetrics{
		TotalAttempts: f.attempts,
		TotalMatches:  f.matches,
		PatternCounts: make(map[string]uint64, len(f.perHit)),
	}
	if f.attempts > 0 {
		m.MatchRate = float64(f.matches) / float64(f.attempts)
	}
	for k, v := range f.perHit {
		m.PatternCounts[k] = v
	}
	return m
}

// ResetMetrics zeroes all counters. Pattern definitions are kept.
func (f *FastPathRouter) ResetMetrics() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = 0
	f.matches = 0
	f.perHit = make(map[string]uint64)
}
