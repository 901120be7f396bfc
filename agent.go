package prism

import "context"

// Agent is a specialist that answers subqueries for the capabilities it
// advertises. Agents are external collaborators: the orchestrator only
// depends on this invocation contract.
type Agent interface {
	// Name returns the agent's identifier (e.g. "geo_agent").
	Name() string
	// Description returns a human-readable summary of what the agent does.
	Description() string
	// Execute answers the task. Transport, timeout, and domain failures
	// surface as errors; the Dispatcher converts them to failed
	// AgentResponse values rather than propagating them.
	Execute(ctx context.Context, task AgentTask) (AgentResult, error)
}

// AgentTask is the input to a specialist agent.
type AgentTask struct {
	// Input is the subquery text.
	Input string
	// Session, when non-nil, is the shared conversation handle. Every agent
	// invoked within one conversation receives the same session so that
	// cross-agent references ("restaurants there") resolve.
	Session *Session
	// Context carries optional caller metadata.
	Context map[string]any
}

// AgentResult is the output of a specialist agent.
type AgentResult struct {
	// Output is the agent's final text.
	Output string
	// Usage tracks token counts when the agent is LLM-backed.
	Usage Usage
}

// AgentRegistry maps agent ids to live agents for the Dispatcher.
type AgentRegistry struct {
	agents map[string]Agent
}

// NewAgentRegistry builds a registry from the given agents, keyed by Name().
func NewAgentRegistry(agents ...Agent) *AgentRegistry {
	r := &AgentRegistry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Name()] = a
	}
	return r
}

// Add registers an agent, replacing any existing agent with the same name.
func (r *AgentRegistry) Add(a Agent) {
	r.agents[a.Name()] = a
}

// Get returns the agent with the given id.
func (r *AgentRegistry) Get(id string) (Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// IDs returns the registered agent ids in unspecified order.
func (r *AgentRegistry) IDs() []string {
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}
