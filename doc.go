// Package prism is a multi-agent query orchestrator. It takes a natural
// language query, decides whether a single specialist agent can answer it or
// whether it must be split into concurrently executable subqueries, dispatches
// the work to capability-matched agents, merges their results, and gates the
// final answer on a quality evaluation with a deterministic fallback.
//
// The pipeline has seven stages plus a regex fast path for pure chitchat:
//
//	query → FastPath → Interpreter → Decomposer → Router → Dispatcher →
//	        Aggregator → Synthesizer → Judge → answer
//
// Each stage is a narrow capability interface with a default implementation;
// test doubles are injected per capability. The Orchestrator drives the
// stages, records a per-phase execution trace, and never lets an error escape
// RouteQuery — total failure still yields a well-formed ExecutionResult
// carrying the configured fallback message.
//
// Basic usage:
//
//	provider := openaicompat.NewProvider(apiKey, model, baseURL) // any prism.Provider
//	router := prism.NewOrchestrator(provider, capabilityMap,
//		prism.WithAgents(geoAgent, stockAgent, chatAgent),
//	)
//	result := router.RouteQuery(ctx, "weather in Ubud and AAPL price", nil)
//	fmt.Println(result.Answer)
package prism
