package prism

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// interpretPrompt instructs the provider to classify a query. The response
// must be a JSON object; fenced output is tolerated by ExtractJSON.
const interpretPrompt = `You are a query classifier for a multi-agent router.
Classify the user's query and return ONLY a JSON object:

{"complexity": "SIMPLE"|"MODERATE"|"COMPLEX", "domains": [string], "requires_synthesis": bool, "reasoning": string}

Known domains: local_business, finance, geography, geocoding, mapping,
research, wikipedia, conversation, social, search, web_search, weather,
news, current_events, realtime.

Rules:
- A chitchat wrapper around a substantive question classifies by the
  question, not the greeting.
- Real-time information (weather, news, current events) is SIMPLE with
  domains ["search"].
- Pure social content with no information request is
  ["conversation","social"] and requires_synthesis=false.
- "geography" means geocoding (address/coordinate lookups); "mapping" means
  routing, directions, and distances. They are distinct.
- COMPLEX queries span multiple independent information needs and set
  requires_synthesis=true.`

// Interpreter classifies queries into a QueryIntent via the completion
// provider, with a deterministic heuristic fallback that never fails.
type Interpreter struct {
	provider Provider
	model    ModelParams
	session  *Session
	logger   *slog.Logger
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithInterpreterLogger sets a structured logger for fallback events.
func WithInterpreterLogger(l *slog.Logger) InterpreterOption {
	return func(i *Interpreter) { i.logger = l }
}

// WithInterpreterSession attaches the shared conversation session to
// provider calls.
func WithInterpreterSession(s *Session) InterpreterOption {
	return func(i *Interpreter) { i.session = s }
}

// NewInterpreter creates an Interpreter using the given provider and model
// parameters.
func NewInterpreter(provider Provider, model ModelParams, opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{provider: provider, model: model, logger: nopLogger}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Interpret classifies text. Blank input fails with ErrEmptyQuery; every
// other input yields a usable intent — provider or parse failures fall back
// to the deterministic heuristic.
func (i *Interpreter) Interpret(ctx context.Context, text string) (QueryIntent, error) {
	if strings.TrimSpace(text) == "" {
		return QueryIntent{}, ErrEmptyQuery
	}

	resp, err := i.provider.Complete(ctx, CompletionRequest{
		System:      interpretPrompt,
		Input:       text,
		Model:       i.model.Name,
		Temperature: i.model.Temperature,
		MaxTokens:   i.model.MaxTokens,
		Session:     i.session,
	})
	if err != nil {
		i.logger.Warn("interpretation provider failed, using heuristic", "error", err)
		return heuristicIntent(text), nil
	}

	intent, err := parseIntent(text, resp.Text)
	if err != nil {
		i.logger.Warn("interpretation parse failed, using heuristic", "error", err)
		return heuristicIntent(text), nil
	}
	return intent, nil
}

// parseIntent decodes the provider's classification JSON.
func parseIntent(original, response string) (QueryIntent, error) {
	raw, err := ExtractJSON(response)
	if err != nil {
		return QueryIntent{}, err
	}
	var parsed struct {
		Complexity        string   `json:"complexity"`
		Domains           []string `json:"domains"`
		RequiresSynthesis bool     `json:"requires_synthesis"`
		Reasoning         string   `json:"reasoning"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return QueryIntent{}, err
	}

	complexity := QueryComplexity(strings.ToUpper(strings.TrimSpace(parsed.Complexity)))
	if !complexity.valid() {
		complexity = ComplexitySimple
	}
	domains := parsed.Domains
	if len(domains) == 0 {
		domains = []string{"search"}
	}

	intent := QueryIntent{
		OriginalQuery:     original,
		Complexity:        complexity,
		Domains:           domains,
		RequiresSynthesis: parsed.RequiresSynthesis,
	}
	if parsed.Reasoning != "" {
		intent.Metadata = map[string]any{"reasoning": parsed.Reasoning}
	}
	return intent, nil
}

// --- deterministic heuristic fallback ---

// chitchatPhrases are inputs treated as pure social content when the whole
// trimmed, lowercased query equals one of them.
var chitchatPhrases = []string{
	"hi", "hey", "hello", "yo", "howdy",
	"good morning", "good afternoon", "good evening", "good night",
	"bye", "goodbye", "see you", "see you later",
	"thanks", "thank you", "thx", "ty",
	"how are you", "how are you doing", "how's it going", "what's up", "sup",
	"yes", "yep", "yeah", "ok", "okay", "sure",
	"no", "nope", "nah",
}

// domainKeywords maps trigger words to domain tags, checked in order so the
// resulting domain list is deterministic.
var domainKeywords = []struct {
	domain   string
	keywords []string
}{
	{"weather", []string{"weather", "temperature", "forecast", "rain", "sunny"}},
	{"news", []string{"news", "headline", "breaking"}},
	{"local_business", []string{"restaurant", "cafe", "coffee shop", "bar ", "near me", "nearby", "open now"}},
	{"finance", []string{"stock", "share price", "ticker", "nasdaq", "crypto", "bitcoin", "exchange rate"}},
	{"geocoding", []string{"coordinates", "latitude", "longitude", "geocode", "address of", "where is"}},
	{"mapping", []string{"directions", "route", "how far", "distance", "drive to", "walk to"}},
	{"wikipedia", []string{"wikipedia", "wiki"}},
	{"research", []string{"compare", "analyze", "research", "pros and cons", "in depth"}},
}

// heuristicIntent is the deterministic fallback classifier: chitchat phrase
// table first, then domain keywords, then complexity from question marks and
// sentence count. It never fails.
func heuristicIntent(text string) QueryIntent {
	lower := strings.ToLower(strings.TrimSpace(text))
	stripped := strings.TrimRight(lower, "!.? ")

	for _, phrase := range chitchatPhrases {
		if stripped == phrase {
			return QueryIntent{
				OriginalQuery:     text,
				Complexity:        ComplexitySimple,
				Domains:           []string{"conversation", "social"},
				RequiresSynthesis: false,
				Metadata:          map[string]any{"heuristic": true},
			}
		}
	}

	var domains []string
	for _, entry := range domainKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				domains = append(domains, entry.domain)
				break
			}
		}
	}
	if len(domains) == 0 {
		domains = []string{"search"}
	}

	questions := strings.Count(text, "?")
	sentences := countSentences(text)

	complexity := ComplexitySimple
	switch {
	case questions >= 2 || sentences >= 3 || len(domains) >= 3:
		complexity = ComplexityComplex
	case sentences == 2 || len(domains) == 2:
		complexity = ComplexityModerate
	}

	return QueryIntent{
		OriginalQuery:     text,
		Complexity:        complexity,
		Domains:           domains,
		RequiresSynthesis: complexity == ComplexityComplex || len(domains) > 1,
		Metadata:          map[string]any{"heuristic": true},
	}
}

// countSentences counts terminator-delimited segments with content.
func countSentences(text string) int {
	count := 0
	inSegment := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if inSegment {
				count++
				inSegment = false
			}
		case ' ', '\t', '\n', '\r':
		default:
			inSegment = true
		}
	}
	if inSegment {
		count++
	}
	return count
}
