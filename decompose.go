package prism

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// decomposePrompt instructs the provider to split a complex query into
// routable subqueries with an explicit dependency DAG.
const decomposePrompt = `You split a complex user query into independently
routable subqueries. Return ONLY a JSON array:

[{"id": "sq1", "text": string, "capability_required": string,
  "dependencies": [string], "routing_pattern": "DELEGATION"|"HANDOFF"}]

Rules:
- Each subquery is atomic and answerable by one specialist.
- capability_required is a short tag such as "geocoding", "stocks",
  "local_business", "mapping", "search".
- dependencies lists ids of subqueries whose output this one needs. Prefer
  independent subqueries; only add a dependency when the text genuinely
  requires an upstream answer.
- The dependency graph must be acyclic.
- Use at most %d subqueries.`

// Decomposer splits complex queries into validated subquery batches.
// One level of decomposition is performed; the configured recursion limit is
// advisory.
type Decomposer struct {
	provider      Provider
	model         ModelParams
	maxSubqueries int
	session       *Session
	logger        *slog.Logger
}

// DecomposerOption configures a Decomposer.
type DecomposerOption func(*Decomposer)

// WithDecomposerLogger sets a structured logger for skipped-entry warnings.
func WithDecomposerLogger(l *slog.Logger) DecomposerOption {
	return func(d *Decomposer) { d.logger = l }
}

// WithDecomposerSession attaches the shared conversation session to provider
// calls.
func WithDecomposerSession(s *Session) DecomposerOption {
	return func(d *Decomposer) { d.session = s }
}

// NewDecomposer creates a Decomposer. maxSubqueries must be >= 1.
func NewDecomposer(provider Provider, model ModelParams, maxSubqueries int, opts ...DecomposerOption) *Decomposer {
	if maxSubqueries < 1 {
		maxSubqueries = 1
	}
	d := &Decomposer{
		provider:      provider,
		model:         model,
		maxSubqueries: maxSubqueries,
		logger:        nopLogger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Decompose splits the intent's query into subqueries. SIMPLE intents return
// an empty batch without calling the provider. The returned batch satisfies
// all decomposition invariants: length within limit, unique ids, no dangling
// dependencies, acyclic graph.
func (d *Decomposer) Decompose(ctx context.Context, intent QueryIntent) ([]Subquery, error) {
	if intent.Complexity == ComplexitySimple {
		return nil, nil
	}

	resp, err := d.provider.Complete(ctx, CompletionRequest{
		System:      fmt.Sprintf(decomposePrompt, d.maxSubqueries),
		Input:       intent.OriginalQuery,
		Model:       d.model.Name,
		Temperature: d.model.Temperature,
		MaxTokens:   d.model.MaxTokens,
		Session:     d.session,
	})
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}

	subqueries, err := d.parseSubqueries(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}

	if len(subqueries) > d.maxSubqueries {
		return nil, &ErrTooManySubqueries{Count: len(subqueries), Max: d.maxSubqueries}
	}
	if err := ValidateDependencies(subqueries); err != nil {
		return nil, err
	}
	return subqueries, nil
}

// parseSubqueries decodes the provider's JSON array. Entries missing text are
// skipped with a warning; an unknown routing pattern defaults to Delegation.
func (d *Decomposer) parseSubqueries(response string) ([]Subquery, error) {
	raw, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}
	var entries []struct {
		ID                 string   `json:"id"`
		Text               string   `json:"text"`
		CapabilityRequired string   `json:"capability_required"`
		Dependencies       []string `json:"dependencies"`
		RoutingPattern     string   `json:"routing_pattern"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	subqueries := make([]Subquery, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Text) == "" {
			d.logger.Warn("skipping malformed subquery: missing text", "index", i, "id", e.ID)
			continue
		}
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("sq%d", i+1)
		}
		capability := e.CapabilityRequired
		if capability == "" {
			capability = "search"
		}
		pattern := RoutingPattern(strings.ToUpper(e.RoutingPattern))
		if pattern != Delegation && pattern != Handoff {
			pattern = Delegation
		}
		subqueries = append(subqueries, Subquery{
			ID:                 id,
			Text:               e.Text,
			CapabilityRequired: capability,
			Dependencies:       e.Dependencies,
			RoutingPattern:     pattern,
		})
	}
	return subqueries, nil
}

// ValidateDependencies checks a subquery batch for unique ids, dependency
// references that all exist within the batch, and an acyclic dependency
// graph. It is pure and idempotent: no state is touched and repeated calls
// return the same result.
func ValidateDependencies(subqueries []Subquery) error {
	ids := make(map[string]int, len(subqueries))
	for i, sq := range subqueries {
		if _, dup := ids[sq.ID]; dup {
			return &ErrDuplicateID{ID: sq.ID}
		}
		ids[sq.ID] = i
	}
	for _, sq := range subqueries {
		for _, dep := range sq.Dependencies {
			if _, ok := ids[dep]; !ok {
				return &ErrDanglingDependency{ID: sq.ID, Dependency: dep}
			}
		}
	}
	return checkAcyclic(subqueries, ids)
}

// dfs colors for cycle detection.
const (
	colorUnseen = iota
	colorOnStack
	colorDone
)

// checkAcyclic runs an iterative depth-first search with three-color marking
// over the dependency edges. A back-edge to an on-stack node is a cycle; the
// returned error carries the cycle path including the repeated node.
func checkAcyclic(subqueries []Subquery, ids map[string]int) error {
	color := make([]int, len(subqueries))

	type frame struct {
		node    int
		nextDep int
	}

	for start := range subqueries {
		if color[start] != colorUnseen {
			continue
		}
		stack := []frame{{node: start}}
		color[start] = colorOnStack
		path := []string{subqueries[start].ID}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := subqueries[top.node].Dependencies
			if top.nextDep >= len(deps) {
				color[top.node] = colorDone
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
				continue
			}
			dep := deps[top.nextDep]
			top.nextDep++
			next := ids[dep]
			switch color[next] {
			case colorOnStack:
				// Trim the path to where the cycle begins, then close it.
				cycleStart := 0
				for i, id := range path {
					if id == dep {
						cycleStart = i
						break
					}
				}
				cycle := append(append([]string(nil), path[cycleStart:]...), dep)
				return &ErrCyclicDependency{Cycle: cycle}
			case colorUnseen:
				color[next] = colorOnStack
				stack = append(stack, frame{node: next})
				path = append(path, dep)
			}
		}
	}
	return nil
}
