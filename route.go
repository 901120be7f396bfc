package prism

import (
	"log/slog"
	"sort"
	"strings"
)

// Router maps a subquery's required capability to a concrete agent id.
//
// Lookup order: routing cache hit, exact reverse-index match, fuzzy match
// (either containment direction between the requested tag and an indexed
// capability), then domain fallback against agent ids themselves. Among
// multiple candidates the most specialized agent wins — fewest total
// capabilities, alphabetical on ties — so routing is deterministic for a
// fixed capability map.
type Router struct {
	capabilityMap map[string][]string
	index         *CapabilityIndex
	cache         *RoutingCache
	useCache      bool
	logger        *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithoutRoutingCache disables the shared routing cache and capability index
// seeding; the router then builds a private index. Used by tests that need
// isolation from process-wide state.
func WithoutRoutingCache() RouterOption {
	return func(r *Router) { r.useCache = false }
}

// WithRouterLogger sets a structured logger for routing decisions.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter builds a Router from an agent-id to capability-list map. With
// caching enabled (the default) it seeds the process-wide CapabilityIndex
// and memoizes positive lookups in the shared RoutingCache.
func NewRouter(capabilityMap map[string][]string, opts ...RouterOption) *Router {
	r := &Router{
		capabilityMap: capabilityMap,
		useCache:      true,
		logger:        nopLogger,
	}
	for _, o := range opts {
		o(r)
	}
	if r.useCache {
		r.index = SharedCapabilityIndex()
		r.cache = SharedRoutingCache()
	} else {
		r.index = NewCapabilityIndex()
	}
	r.index.Initialize(capabilityMap)
	return r
}

// Route resolves the agent for a subquery's capability. The routing pattern
// is the subquery's own when set, Delegation otherwise.
func (r *Router) Route(sq Subquery) (string, RoutingPattern, error) {
	pattern := sq.RoutingPattern
	if pattern != Delegation && pattern != Handoff {
		pattern = Delegation
	}

	agentID, err := r.agentFor(sq.CapabilityRequired)
	if err != nil {
		return "", "", err
	}
	return agentID, pattern, nil
}

// agentFor runs the four-step candidate lookup for one capability.
func (r *Router) agentFor(capability string) (string, error) {
	if r.cache != nil {
		if agentID, ok := r.cache.Get(capability); ok {
			r.logger.Debug("routing cache hit", "capability", capability, "agent", agentID)
			return agentID, nil
		}
	}

	candidates := r.index.AgentsForCapability(capability)

	if len(candidates) == 0 {
		candidates = r.fuzzyCandidates(capability)
	}
	if len(candidates) == 0 {
		candidates = r.domainFallbackCandidates(capability)
	}
	if len(candidates) == 0 {
		return "", &ErrNoAgentForCapability{Capability: capability}
	}

	agentID := r.pickAgent(candidates)
	if r.cache != nil {
		r.cache.Put(capability, agentID)
	}
	r.logger.Debug("routed capability", "capability", capability, "agent", agentID, "candidates", len(candidates))
	return agentID, nil
}

// fuzzyCandidates matches any indexed capability that contains, or is
// contained in, the requested tag.
func (r *Router) fuzzyCandidates(capability string) []string {
	seen := make(map[string]bool)
	var candidates []string
	for _, indexed := range r.index.Capabilities() {
		if !strings.Contains(indexed, capability) && !strings.Contains(capability, indexed) {
			continue
		}
		for _, agentID := range r.index.AgentsForCapability(indexed) {
			if !seen[agentID] {
				seen[agentID] = true
				candidates = append(candidates, agentID)
			}
		}
	}
	return candidates
}

// domainFallbackCandidates matches agent ids that contain, or are contained
// in, the capability string.
func (r *Router) domainFallbackCandidates(capability string) []string {
	var candidates []string
	for _, agentID := range r.index.AgentIDs() {
		if strings.Contains(agentID, capability) || strings.Contains(capability, agentID) {
			candidates = append(candidates, agentID)
		}
	}
	return candidates
}

// pickAgent applies the deterministic tie-break: fewest total capabilities
// first (most specialized), then alphabetical by id.
func (r *Router) pickAgent(candidates []string) string {
	if len(candidates) == 1 {
		return candidates[0]
	}
	sorted := append([]string(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		ci := len(r.index.AgentCapabilities(sorted[i]))
		cj := len(r.index.AgentCapabilities(sorted[j]))
		if ci != cj {
			return ci < cj
		}
		return sorted[i] < sorted[j]
	})
	return sorted[0]
}

// CapabilityMap returns the map the router was built from.
func (r *Router) CapabilityMap() map[string][]string {
	return r.capabilityMap
}
