// Command prism runs the query router as an interactive REPL: one query per
// line on stdin, one JSON execution result per line on stdout.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nevindra/prism"
	"github.com/nevindra/prism/internal/config"
	"github.com/nevindra/prism/observer"
	"github.com/nevindra/prism/provider/openaicompat"
	"github.com/nevindra/prism/store/postgres"
	"github.com/nevindra/prism/store/sqlite"
)

func main() {
	ctx := context.Background()

	// 1. Load and validate config
	cfg := config.Load(os.Getenv("PRISM_CONFIG"))
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if !cfg.Router.Enabled {
		log.Fatal("router disabled in config")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// 2. Observability (optional)
	var tracer prism.Tracer
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		instruments, shutdown, err := observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		inst = instruments
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutCtx)
		}()
		tracer = observer.NewTracer()
	}

	// 3. Conversation store
	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	session := prism.NewSession(store, prism.WithSessionLogger(logger))

	// 4. Provider and specialist agents
	provider := openaicompat.NewProvider(cfg.Provider.APIKey, cfg.Provider.Model, cfg.Provider.BaseURL)
	agents := make([]prism.Agent, 0, len(cfg.Capabilities))
	for agentID, caps := range cfg.Capabilities {
		agents = append(agents, prism.NewLLMAgent(agentID,
			fmt.Sprintf("You handle: %s.", strings.Join(caps, ", ")),
			provider,
			prism.WithLLMAgentTracer(tracer),
			prism.WithLLMAgentLogger(logger)))
	}

	// 5. Orchestrator
	settings := prism.DefaultSettings()
	settings.Timeout = cfg.ErrorHandling.Timeout()
	settings.Retries = cfg.ErrorHandling.Retries
	settings.QualityThreshold = cfg.Evaluation.QualityThreshold
	settings.MaxSubqueries = cfg.Decomposition.MaxSubqueries
	if cfg.Evaluation.FallbackMessage != "" {
		settings.FallbackMessage = cfg.Evaluation.FallbackMessage
	}
	if len(cfg.Evaluation.Criteria) > 0 {
		settings.Criteria = cfg.Evaluation.Criteria
	}
	settings.Interpretation = modelParams(cfg.Models.Interpretation)
	settings.Decomposition = modelParams(cfg.Models.Decomposition)
	settings.Synthesis = modelParams(cfg.Models.Synthesis)
	settings.Evaluation = modelParams(cfg.Models.Evaluation)

	orch := prism.NewOrchestrator(provider, cfg.Capabilities,
		prism.WithAgents(agents...),
		prism.WithSettings(settings),
		prism.WithSession(session),
		prism.WithTracer(tracer),
		prism.WithLogger(logger))

	// 6. REPL
	logger.Info("ready", "session_id", session.ID(), "agents", len(agents))
	enc := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "/quit" || query == "/exit" {
			break
		}
		result := orch.RouteQuery(ctx, query, nil)
		if inst != nil {
			recordResult(ctx, inst, result)
		}
		if err := enc.Encode(result); err != nil {
			logger.Error("encode result", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatal(err)
	}
}

// openStore opens the configured store and returns it with a close func.
func openStore(ctx context.Context, db config.DatabaseConfig) (prism.Store, func(), error) {
	switch db.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, db.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		s := postgres.New(pool)
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	default:
		s := sqlite.New(db.Path)
		if err := s.Init(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

func modelParams(m config.ModelConfig) prism.ModelParams {
	return prism.ModelParams{Name: m.Name, Temperature: m.Temperature, MaxTokens: m.MaxTokens}
}

// recordResult emits per-query OTEL metrics from an execution result.
func recordResult(ctx context.Context, inst *observer.Instruments, result prism.ExecutionResult) {
	decision := metric.WithAttributes(attribute.String("decision", string(result.FinalDecision)))
	inst.Queries.Add(ctx, 1, decision)
	inst.QueryDuration.Record(ctx, result.TotalTime*1000, decision)
	if result.FinalDecision == prism.DecisionFallback {
		inst.Fallbacks.Add(ctx, 1)
	}
	for _, tr := range result.Traces {
		inst.PhaseDuration.Record(ctx, tr.Duration*1000,
			metric.WithAttributes(attribute.String("phase", tr.Phase)))
		switch tr.Phase {
		case prism.PhaseFastPath:
			if matched, ok := tr.Data["matched"].(bool); ok && matched {
				inst.FastPathHits.Add(ctx, 1)
			}
		case prism.PhaseExecution:
			inst.Dispatches.Add(ctx, 1)
			inst.DispatchDuration.Record(ctx, tr.Duration*1000)
		}
	}
}
