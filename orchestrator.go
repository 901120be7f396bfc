package prism

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// The orchestrator depends on narrow capabilities rather than concrete
// types; test doubles are injected per capability.

// FastPath pre-classifies pure chitchat without touching the provider.
type FastPath interface {
	TryFastPath(text string) (QueryIntent, bool)
}

// IntentInterpreter classifies a query's complexity and domains.
type IntentInterpreter interface {
	Interpret(ctx context.Context, text string) (QueryIntent, error)
}

// QueryDecomposer splits a complex query into a validated subquery batch.
type QueryDecomposer interface {
	Decompose(ctx context.Context, intent QueryIntent) ([]Subquery, error)
}

// CapabilityRouter maps a subquery to an agent id and routing pattern.
type CapabilityRouter interface {
	Route(sq Subquery) (string, RoutingPattern, error)
}

// AgentDispatcher executes subqueries with timeout and retry.
type AgentDispatcher interface {
	Dispatch(ctx context.Context, sq Subquery, agentID string, timeout time.Duration) AgentResponse
	DispatchAll(ctx context.Context, items []DispatchItem, timeout time.Duration) ([]AgentResponse, error)
}

// ResponseAggregator collects responses by subquery id.
type ResponseAggregator interface {
	Aggregate(responses []AgentResponse, subqueries []Subquery) (map[string]AgentResponse, error)
	ExtractSuccessful(responses map[string]AgentResponse) map[string]AgentResponse
	Statistics(responses map[string]AgentResponse) ResponseStatistics
}

// ResultSynthesizer merges successful responses into one answer.
type ResultSynthesizer interface {
	Synthesize(ctx context.Context, responses map[string]AgentResponse, originalQuery string) (SynthesizedResult, error)
}

// QualityJudge scores an answer and decides fallback.
type QualityJudge interface {
	Evaluate(ctx context.Context, answer, originalQuery string) EvaluationResult
}

// Settings holds the orchestration parameters the core consumes.
type Settings struct {
	// Timeout is the default per-dispatch deadline.
	Timeout time.Duration
	// Retries is the number of re-attempts after a failed dispatch call.
	Retries int
	// QualityThreshold gates completeness, accuracy, and clarity.
	QualityThreshold float64
	// MaxSubqueries bounds one decomposition batch.
	MaxSubqueries int
	// FallbackMessage is returned whenever the pipeline cannot produce a
	// trusted answer.
	FallbackMessage string
	// Criteria are included in the Judge's prompt.
	Criteria []string
	// Per-stage model parameters.
	Interpretation ModelParams
	Decomposition  ModelParams
	Synthesis      ModelParams
	Evaluation     ModelParams
}

// DefaultSettings returns the documented defaults: 30s timeout, 2 retries,
// 0.7 quality threshold, 10 max subqueries.
func DefaultSettings() Settings {
	return Settings{
		Timeout:          30 * time.Second,
		Retries:          2,
		QualityThreshold: 0.7,
		MaxSubqueries:    10,
		FallbackMessage:  "I wasn't able to find a reliable answer to that. Could you rephrase or narrow the question?",
		Criteria:         []string{"completeness", "accuracy", "clarity"},
	}
}

// Orchestrator drives the SmartRouter pipeline: fast path, interpretation,
// simple or complex execution, and quality evaluation, recording one trace
// per phase. RouteQuery never returns an error: total failure yields a
// well-formed ExecutionResult with the fallback message and Success=false.
type Orchestrator struct {
	fastPath    FastPath
	interpreter IntentInterpreter
	decomposer  QueryDecomposer
	router      CapabilityRouter
	dispatcher  AgentDispatcher
	aggregator  ResponseAggregator
	synthesizer ResultSynthesizer
	judge       QualityJudge

	registry      *AgentRegistry
	capabilityMap map[string][]string
	settings      Settings
	session       *Session
	metrics       *PerformanceMetrics
	tracer        Tracer
	logger        *slog.Logger
}

// orchestratorConfig collects option state before component construction.
type orchestratorConfig struct {
	agents      []Agent
	settings    Settings
	hasSettings bool
	session     *Session
	tracer      Tracer
	logger      *slog.Logger

	fastPath    FastPath
	interpreter IntentInterpreter
	decomposer  QueryDecomposer
	router      CapabilityRouter
	dispatcher  AgentDispatcher
	aggregator  ResponseAggregator
	synthesizer ResultSynthesizer
	judge       QualityJudge
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*orchestratorConfig)

// WithAgents registers the specialist agents the Dispatcher can reach.
func WithAgents(agents ...Agent) OrchestratorOption {
	return func(c *orchestratorConfig) { c.agents = append(c.agents, agents...) }
}

// WithSettings replaces the default orchestration settings.
func WithSettings(s Settings) OrchestratorOption {
	return func(c *orchestratorConfig) { c.settings = s; c.hasSettings = true }
}

// WithSession sets the shared conversation session. The same session is
// passed to every provider call and agent invocation.
func WithSession(s *Session) OrchestratorOption {
	return func(c *orchestratorConfig) { c.session = s }
}

// WithTracer enables span emission for pipeline phases.
// Use observer.NewTracer() for an OTEL-backed implementation.
func WithTracer(t Tracer) OrchestratorOption {
	return func(c *orchestratorConfig) { c.tracer = t }
}

// WithLogger sets the structured logger. If not set, a no-op logger is used.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(c *orchestratorConfig) { c.logger = l }
}

// WithFastPath injects a fast-path implementation.
func WithFastPath(f FastPath) OrchestratorOption {
	return func(c *orchestratorConfig) { c.fastPath = f }
}

// WithInterpreter injects an interpreter implementation.
func WithInterpreter(i IntentInterpreter) OrchestratorOption {
	return func(c *orchestratorConfig) { c.interpreter = i }
}

// WithDecomposer injects a decomposer implementation.
func WithDecomposer(d QueryDecomposer) OrchestratorOption {
	return func(c *orchestratorConfig) { c.decomposer = d }
}

// WithCapabilityRouter injects a router implementation.
func WithCapabilityRouter(r CapabilityRouter) OrchestratorOption {
	return func(c *orchestratorConfig) { c.router = r }
}

// WithDispatcher injects a dispatcher implementation.
func WithDispatcher(d AgentDispatcher) OrchestratorOption {
	return func(c *orchestratorConfig) { c.dispatcher = d }
}

// WithAggregator injects an aggregator implementation.
func WithAggregator(a ResponseAggregator) OrchestratorOption {
	return func(c *orchestratorConfig) { c.aggregator = a }
}

// WithSynthesizer injects a synthesizer implementation.
func WithSynthesizer(s ResultSynthesizer) OrchestratorOption {
	return func(c *orchestratorConfig) { c.synthesizer = s }
}

// WithJudge injects a judge implementation.
func WithJudge(j QualityJudge) OrchestratorOption {
	return func(c *orchestratorConfig) { c.judge = j }
}

// NewOrchestrator builds the full pipeline around a completion provider and
// an agent-id to capability-list map. Components default to the package
// implementations and can be replaced individually via options.
func NewOrchestrator(provider Provider, capabilityMap map[string][]string, opts ...OrchestratorOption) *Orchestrator {
	cfg := orchestratorConfig{logger: nopLogger}
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.hasSettings {
		cfg.settings = DefaultSettings()
	}

	registry := NewAgentRegistry(cfg.agents...)
	o := &Orchestrator{
		registry:      registry,
		capabilityMap: capabilityMap,
		settings:      cfg.settings,
		session:       cfg.session,
		metrics:       SharedMetrics(),
		tracer:        cfg.tracer,
		logger:        cfg.logger,
	}

	o.fastPath = cfg.fastPath
	if o.fastPath == nil {
		o.fastPath = NewFastPathRouter()
	}
	o.interpreter = cfg.interpreter
	if o.interpreter == nil {
		o.interpreter = NewInterpreter(provider, cfg.settings.Interpretation,
			WithInterpreterSession(cfg.session), WithInterpreterLogger(cfg.logger))
	}
	o.decomposer = cfg.decomposer
	if o.decomposer == nil {
		o.decomposer = NewDecomposer(provider, cfg.settings.Decomposition, cfg.settings.MaxSubqueries,
			WithDecomposerSession(cfg.session), WithDecomposerLogger(cfg.logger))
	}
	o.router = cfg.router
	if o.router == nil {
		o.router = NewRouter(capabilityMap, WithRouterLogger(cfg.logger))
	}
	o.dispatcher = cfg.dispatcher
	if o.dispatcher == nil {
		o.dispatcher = NewDispatcher(registry, cfg.settings.Timeout, cfg.settings.Retries,
			WithDispatcherSession(cfg.session), WithDispatcherLogger(cfg.logger),
			WithDispatcherTracer(cfg.tracer))
	}
	o.aggregator = cfg.aggregator
	if o.aggregator == nil {
		o.aggregator = NewAggregator(WithAggregatorLogger(cfg.logger))
	}
	o.synthesizer = cfg.synthesizer
	if o.synthesizer == nil {
		o.synthesizer = NewSynthesizer(provider, cfg.settings.Synthesis,
			WithSynthesizerSession(cfg.session), WithSynthesizerLogger(cfg.logger))
	}
	o.judge = cfg.judge
	if o.judge == nil {
		o.judge = NewJudge(provider, cfg.settings.Evaluation, cfg.settings.QualityThreshold,
			WithJudgeCriteria(cfg.settings.Criteria), WithJudgeSession(cfg.session),
			WithJudgeLogger(cfg.logger))
	}
	return o
}

// RouteQuery answers a user query through the full pipeline. callContext
// carries optional caller metadata recorded in the traces. The returned
// ExecutionResult is always well-formed; errors never escape.
func (o *Orchestrator) RouteQuery(ctx context.Context, query string, callContext map[string]any) ExecutionResult {
	start := time.Now()
	var traces []PhaseTrace

	if o.tracer != nil {
		var span Span
		ctx, span = o.tracer.Start(ctx, "orchestrator.route_query")
		defer span.End()
	}

	o.session.Append(ctx, "user", query)

	result, err := o.runPipeline(ctx, query, &traces)
	if err != nil {
		o.logger.Error("pipeline failed", "query", query, "error", err)
		result = ExecutionResult{
			Answer:        o.settings.FallbackMessage,
			FinalDecision: DecisionError,
			Success:       false,
		}
	}
	result.Traces = traces
	result.TotalTime = roundSeconds(time.Since(start))

	o.session.Append(ctx, "assistant", result.Answer)
	o.logger.Info("query routed",
		"decision", result.FinalDecision,
		"agents", result.AgentsUsed,
		"total_time", result.TotalTime,
		"success", result.Success)
	_ = callContext
	return result
}

// phase starts a timed pipeline phase and, when a tracer is configured, a
// span that ends with it. The returned context carries the span.
func (o *Orchestrator) phase(ctx context.Context, traces *[]PhaseTrace, name string) (context.Context, *phaseTimer) {
	t := startPhase(traces, o.metrics, name)
	if o.tracer != nil {
		var span Span
		ctx, span = o.tracer.Start(ctx, "phase."+name)
		t.span = span
	}
	return ctx, t
}

// runPipeline is the fallible core of RouteQuery. Panics in any stage are
// converted to errors so the boundary always yields a result.
func (o *Orchestrator) runPipeline(ctx context.Context, query string, traces *[]PhaseTrace) (result ExecutionResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pipeline panic: %v", p)
		}
	}()

	// Fast path: pure chitchat bypasses interpretation and evaluation.
	_, fp := o.phase(ctx, traces, PhaseFastPath)
	if intent, ok := o.fastPath.TryFastPath(query); ok {
		fp.Set("matched", true)
		if name, ok := intent.Metadata["fast_path_pattern"]; ok {
			fp.Set("pattern", name)
		}
		fp.End()

		answer, agentID, err := o.handleSimple(ctx, intent, traces)
		if err != nil {
			return ExecutionResult{}, err
		}
		decision := DecisionFastPath
		if intent.IsChitchat() {
			decision = DecisionChitchat
		}
		return ExecutionResult{
			Answer:        answer,
			FinalDecision: decision,
			AgentsUsed:    []string{agentID},
			Success:       true,
		}, nil
	}
	fp.Set("matched", false)
	fp.End()

	// Interpretation.
	itCtx, it := o.phase(ctx, traces, PhaseInterpretation)
	intent, err := o.interpreter.Interpret(itCtx, query)
	if err != nil {
		it.Fail(err)
		it.End()
		return ExecutionResult{}, err
	}
	it.Set("complexity", string(intent.Complexity))
	it.Set("domains", intent.Domains)
	it.Set("requires_synthesis", intent.RequiresSynthesis)
	it.End()

	var answer string
	var agentsUsed []string
	if intent.Complexity == ComplexitySimple {
		simple, agentID, err := o.handleSimple(ctx, intent, traces)
		if err != nil {
			return ExecutionResult{}, err
		}
		answer, agentsUsed = simple, []string{agentID}
	} else {
		answer, agentsUsed, err = o.handleComplex(ctx, intent, traces)
		if err != nil {
			return ExecutionResult{}, err
		}
	}

	// Chitchat skips evaluation entirely.
	if intent.IsChitchat() {
		return ExecutionResult{
			Answer:        answer,
			FinalDecision: DecisionChitchat,
			AgentsUsed:    agentsUsed,
			Success:       true,
		}, nil
	}

	// Evaluation gate.
	evCtx, ev := o.phase(ctx, traces, PhaseEvaluation)
	eval := o.judge.Evaluate(evCtx, answer, query)
	ev.Set("completeness", eval.Completeness)
	ev.Set("accuracy", eval.Accuracy)
	ev.Set("clarity", eval.Clarity)
	ev.Set("is_high_quality", eval.IsHighQuality)
	ev.End()

	if eval.ShouldFallback {
		return ExecutionResult{
			Answer:         o.settings.FallbackMessage,
			OriginalAnswer: answer,
			FinalDecision:  DecisionFallback,
			AgentsUsed:     agentsUsed,
			Success:        true,
		}, nil
	}

	decision := DecisionDirect
	if len(agentsUsed) > 1 {
		decision = DecisionSynthesized
	}
	return ExecutionResult{
		Answer:        answer,
		FinalDecision: decision,
		AgentsUsed:    agentsUsed,
		Success:       true,
	}, nil
}

// --- simple-query routing ---

// domainPriority orders recognized domains; the highest-priority domain is
// tried first. Unknown domains rank 0.
var domainPriority = map[string]int{
	"weather": 12, "news": 12, "current_events": 12,
	"realtime":       11,
	"local_business": 10,
	"finance":        9,
	"geography":      8, "geocoding": 8,
	"mapping":   7,
	"research":  6,
	"wikipedia": 5,
	"search":    4, "web_search": 4,
	"conversation": 3, "social": 3,
}

// domainCapability translates a domain tag to the capability routed on.
// geography and geocoding both route to geocoding while mapping stays
// distinct: collapsing them regresses a known routing bug.
var domainCapability = map[string]string{
	"weather": "search", "news": "search", "current_events": "search", "realtime": "search",
	"local_business": "local_business",
	"finance":        "stocks",
	"geography":      "geocoding", "geocoding": "geocoding",
	"mapping":   "mapping",
	"research":  "research",
	"wikipedia": "wikipedia",
	"search":    "search", "web_search": "search",
	"conversation": "conversation", "social": "conversation",
}

// conversationalCapabilities identify an agent suitable for chitchat.
var conversationalCapabilities = []string{"conversation", "chitchat", "chat", "social"}

// handleSimple routes the whole query to one agent, trying domains in
// descending priority with a final fallback to "search".
func (o *Orchestrator) handleSimple(ctx context.Context, intent QueryIntent, traces *[]PhaseTrace) (string, string, error) {
	_, rt := o.phase(ctx, traces, PhaseRouting)

	var agentID string
	var capability string
	var pattern RoutingPattern = Delegation

	// Chitchat routes to the conversational agent regardless of capability
	// listing when one exists.
	if intent.IsChitchat() {
		if id, ok := o.conversationalAgentID(); ok {
			agentID, capability = id, "conversation"
		}
	}

	if agentID == "" {
		for _, domain := range domainsByPriority(intent.Domains) {
			capability = domainCapability[domain]
			if capability == "" {
				capability = domain
			}
			id, p, err := o.router.Route(Subquery{
				ID:                 "main",
				Text:               intent.OriginalQuery,
				CapabilityRequired: capability,
			})
			if err == nil {
				agentID, pattern = id, p
				break
			}
			var noAgent *ErrNoAgentForCapability
			if !errors.As(err, &noAgent) {
				rt.Fail(err)
				rt.End()
				return "", "", err
			}
		}
	}

	// Final fallback capability.
	if agentID == "" {
		capability = "search"
		id, p, err := o.router.Route(Subquery{
			ID:                 "main",
			Text:               intent.OriginalQuery,
			CapabilityRequired: capability,
		})
		if err != nil {
			rt.Fail(err)
			rt.End()
			return "", "", err
		}
		agentID, pattern = id, p
	}

	rt.Set("capability", capability)
	rt.Set("agent", agentID)
	rt.End()

	exCtx, ex := o.phase(ctx, traces, PhaseExecution)
	resp := o.dispatcher.Dispatch(exCtx, Subquery{
		ID:                 "main",
		Text:               intent.OriginalQuery,
		CapabilityRequired: capability,
		RoutingPattern:     pattern,
	}, agentID, 0)
	ex.Set("agent", agentID)
	ex.Set("success", resp.Success)
	if !resp.Success {
		failure := fmt.Errorf("agent %s failed: %s", agentID, resp.Error)
		ex.Fail(failure)
		ex.End()
		return "", agentID, failure
	}
	ex.End()
	return resp.Content, agentID, nil
}

// conversationalAgentID finds an agent advertising a conversational
// capability, or whose id suggests one. Deterministic: lowest id wins.
func (o *Orchestrator) conversationalAgentID() (string, bool) {
	var candidates []string
	for agentID, caps := range o.capabilityMap {
		for _, c := range caps {
			for _, want := range conversationalCapabilities {
				if c == want {
					candidates = append(candidates, agentID)
				}
			}
		}
	}
	if len(candidates) == 0 {
		for agentID := range o.capabilityMap {
			for _, want := range conversationalCapabilities {
				if strings.Contains(agentID, want) {
					candidates = append(candidates, agentID)
				}
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// domainsByPriority returns the distinct domains sorted by descending
// priority, preserving input order among equals.
func domainsByPriority(domains []string) []string {
	seen := make(map[string]bool)
	ordered := make([]string, 0, len(domains))
	for _, d := range domains {
		if !seen[d] {
			seen[d] = true
			ordered = append(ordered, d)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return domainPriority[ordered[i]] > domainPriority[ordered[j]]
	})
	return ordered
}

// --- complex-query execution ---

// handleComplex decomposes, routes, dispatches in parallel, aggregates, and
// synthesizes. An empty decomposition degrades to simple handling; a batch
// with no successful response yields the fallback message (the evaluation
// gate then decides the final disposition).
func (o *Orchestrator) handleComplex(ctx context.Context, intent QueryIntent, traces *[]PhaseTrace) (string, []string, error) {
	dtCtx, dt := o.phase(ctx, traces, PhaseDecomposition)
	subqueries, err := o.decomposer.Decompose(dtCtx, intent)
	if err != nil {
		dt.Fail(err)
		dt.End()
		return "", nil, err
	}
	dt.Set("subqueries", len(subqueries))
	dt.End()

	if len(subqueries) == 0 {
		answer, agentID, err := o.handleSimple(ctx, intent, traces)
		if err != nil {
			return "", nil, err
		}
		return answer, []string{agentID}, nil
	}

	_, rt := o.phase(ctx, traces, PhaseRouting)
	items := make([]DispatchItem, 0, len(subqueries))
	routing := make(map[string]string, len(subqueries))
	for _, sq := range subqueries {
		agentID, pattern, err := o.router.Route(sq)
		if err != nil {
			rt.Fail(err)
			rt.End()
			return "", nil, err
		}
		sq.RoutingPattern = pattern
		items = append(items, DispatchItem{Subquery: sq, AgentID: agentID})
		routing[sq.ID] = agentID
	}
	rt.Set("routing", routing)
	rt.End()

	exCtx, ex := o.phase(ctx, traces, PhaseExecution)
	responses, err := o.dispatcher.DispatchAll(exCtx, items, 0)
	if err != nil {
		ex.Fail(err)
		ex.End()
		return "", nil, err
	}
	entries := make([]map[string]any, len(responses))
	for i, resp := range responses {
		entries[i] = map[string]any{
			"subquery": resp.SubqueryID,
			"agent":    resp.AgentID,
			"success":  resp.Success,
		}
	}
	ex.Set("responses", entries)
	ex.End()

	_, ag := o.phase(ctx, traces, PhaseAggregation)
	byID, err := o.aggregator.Aggregate(responses, subqueries)
	if err != nil {
		ag.Fail(err)
		ag.End()
		return "", nil, err
	}
	successes := o.aggregator.ExtractSuccessful(byID)
	stats := o.aggregator.Statistics(byID)
	ag.Set("total", stats.Total)
	ag.Set("successful", stats.Successful)
	ag.Set("failed", stats.Failed)
	ag.End()

	if len(successes) == 0 {
		o.logger.Warn("no subquery succeeded", "subqueries", len(subqueries))
		return o.settings.FallbackMessage, distinctAgents(byID), nil
	}

	stCtx, st := o.phase(ctx, traces, PhaseSynthesis)
	result, err := o.synthesizer.Synthesize(stCtx, successes, intent.OriginalQuery)
	if err != nil {
		st.Fail(err)
		st.End()
		return "", nil, err
	}
	st.Set("confidence", result.Confidence)
	st.Set("sources", result.Sources)
	st.End()

	return result.Answer, result.Sources, nil
}
