package prism

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyQuery is returned by the Interpreter for blank input.
var ErrEmptyQuery = errors.New("empty query")

// ErrTooManySubqueries means a decomposition exceeded the configured limit.
type ErrTooManySubqueries struct {
	Count int
	Max   int
}

func (e *ErrTooManySubqueries) Error() string {
	return fmt.Sprintf("decomposition produced %d subqueries, max %d", e.Count, e.Max)
}

// ErrDuplicateID means two subqueries in one batch share an id.
type ErrDuplicateID struct {
	ID string
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate subquery id %q", e.ID)
}

// ErrDanglingDependency means a subquery depends on an id absent from its batch.
type ErrDanglingDependency struct {
	ID         string // the subquery declaring the dependency
	Dependency string // the missing id
}

func (e *ErrDanglingDependency) Error() string {
	return fmt.Sprintf("subquery %q depends on unknown id %q", e.ID, e.Dependency)
}

// ErrCyclicDependency means the subquery dependency graph contains a cycle.
// Cycle holds the offending path including the repeated node,
// e.g. [sq1 sq2 sq1].
type ErrCyclicDependency struct {
	Cycle []string
}

func (e *ErrCyclicDependency) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Cycle, " -> "))
}

// ErrNoAgentForCapability means routing found no agent after exact, fuzzy,
// and domain-fallback lookups.
type ErrNoAgentForCapability struct {
	Capability string
}

func (e *ErrNoAgentForCapability) Error() string {
	return fmt.Sprintf("no agent for capability %q", e.Capability)
}

// ErrDispatchSystem is a system-level dispatch fault (e.g. a panic while
// assembling the batch). Per-subquery failures never produce this: they are
// returned as failed AgentResponse values instead.
type ErrDispatchSystem struct {
	Reason string
}

func (e *ErrDispatchSystem) Error() string {
	return "dispatch system error: " + e.Reason
}

// ErrAggregation means response aggregation itself failed (nil inputs).
// Counts give context for debugging.
type ErrAggregation struct {
	Responses  int
	Subqueries int
	Reason     string
}

func (e *ErrAggregation) Error() string {
	return fmt.Sprintf("aggregation failed (%d responses, %d subqueries): %s",
		e.Responses, e.Subqueries, e.Reason)
}

// ErrSynthesis means synthesis could not run at all (empty input).
// JSON glitches in the provider response degrade instead of raising.
type ErrSynthesis struct {
	Reason string
}

func (e *ErrSynthesis) Error() string {
	return "synthesis error: " + e.Reason
}

// ErrProvider wraps a completion provider failure with its name.
type ErrProvider struct {
	Provider string
	Message  string
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a transport-level provider error carrying the status code.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}
