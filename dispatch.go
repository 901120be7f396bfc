package prism

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// maxParallelDispatch caps concurrent dispatch goroutines so a large batch
// cannot overwhelm downstream agents with unbounded parallelism.
const maxParallelDispatch = 10

// Dispatcher executes routed subqueries against live agents with a per-call
// deadline and exponential-backoff retry. Per-subquery failures never
// surface as errors: they come back as failed AgentResponse values so the
// batch always completes. Only a system-level fault in batch assembly raises
// ErrDispatchSystem.
type Dispatcher struct {
	registry    *AgentRegistry
	timeout     time.Duration
	retries     int
	backoffBase time.Duration
	session     *Session
	logger      *slog.Logger
	tracer      Tracer
}

// DispatchItem pairs a subquery with the agent id the Router chose for it.
type DispatchItem struct {
	Subquery Subquery
	AgentID  string
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets a structured logger for retry and failure events.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDispatcherSession sets the shared conversation session. Every agent
// invocation in the conversation receives this same session; successful
// responses are appended to its log so later agents see earlier answers.
func WithDispatcherSession(s *Session) DispatcherOption {
	return func(d *Dispatcher) { d.session = s }
}

// WithDispatcherTracer enables span emission per dispatch attempt batch.
func WithDispatcherTracer(t Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithBackoffBase overrides the backoff unit (default 1s). The delay before
// retry attempt n is 2^n times this base. Shrink it in tests.
func WithBackoffBase(base time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.backoffBase = base }
}

// NewDispatcher creates a Dispatcher. timeout is the default per-call
// deadline; retries is the number of re-attempts after the first call.
func NewDispatcher(registry *AgentRegistry, timeout time.Duration, retries int, opts ...DispatcherOption) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	d := &Dispatcher{
		registry:    registry,
		timeout:     timeout,
		retries:     retries,
		backoffBase: time.Second,
		logger:      nopLogger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch executes one subquery against agentID. timeout overrides the
// default per-call deadline when positive. The returned response is always
// well-formed: Success=false implies a non-empty Error, Success=true implies
// non-empty Content.
func (d *Dispatcher) Dispatch(ctx context.Context, sq Subquery, agentID string, timeout time.Duration) AgentResponse {
	if timeout <= 0 {
		timeout = d.timeout
	}

	agent, ok := d.registry.Get(agentID)
	if !ok {
		return d.failed(sq, agentID, 0, fmt.Sprintf("unknown agent %q", agentID))
	}

	start := time.Now()
	var lastErr string

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return d.failed(sq, agentID, attempt, "cancelled: "+ctx.Err().Error())
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := agent.Execute(callCtx, AgentTask{
			Input:   sq.Text,
			Session: d.session,
		})
		cancel()

		switch {
		case err == nil && result.Output != "":
			resp := AgentResponse{
				SubqueryID: sq.ID,
				AgentID:    agentID,
				Content:    result.Output,
				Success:    true,
				Metadata: map[string]any{
					"execution_time":  time.Since(start).Seconds(),
					"attempts":        attempt + 1,
					"agent_name":      agent.Name(),
					"routing_pattern": string(sq.RoutingPattern),
				},
			}
			if !result.Usage.IsZero() {
				resp.Metadata["usage"] = result.Usage
			}
			d.session.Append(ctx, agentID, result.Output)
			return resp
		case err == nil:
			lastErr = "agent returned empty response"
		case errors.Is(err, context.DeadlineExceeded):
			lastErr = fmt.Sprintf("Timeout after %gs", timeout.Seconds())
			d.logger.Warn("dispatch timeout", "subquery", sq.ID, "agent", agentID, "attempt", attempt+1)
		case ctx.Err() != nil:
			// Outer cancellation, not the per-call deadline: stop retrying.
			return d.failed(sq, agentID, attempt+1, "cancelled: "+ctx.Err().Error())
		default:
			lastErr = err.Error()
			d.logger.Warn("dispatch error", "subquery", sq.ID, "agent", agentID, "attempt", attempt+1, "error", err)
		}

		if attempt < d.retries {
			if !sleepBackoff(ctx, d.backoffBase*(1<<attempt)) {
				return d.failed(sq, agentID, attempt+1, "cancelled: "+ctx.Err().Error())
			}
		}
	}

	d.logger.Error("dispatch exhausted retries", "subquery", sq.ID, "agent", agentID, "attempts", d.retries+1, "error", lastErr)
	return d.failed(sq, agentID, d.retries+1, lastErr)
}

// failed builds a failure response carrying the attempt count.
func (d *Dispatcher) failed(sq Subquery, agentID string, attempts int, errMsg string) AgentResponse {
	return AgentResponse{
		SubqueryID: sq.ID,
		AgentID:    agentID,
		Success:    false,
		Error:      errMsg,
		Metadata: map[string]any{
			"attempts":        attempts,
			"routing_pattern": string(sq.RoutingPattern),
		},
	}
}

// sleepBackoff waits for delay or until ctx is cancelled. Reports whether the
// full delay elapsed.
func sleepBackoff(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// indexedResponse pairs a response with its position in the input batch so
// channel-based collection preserves input order.
type indexedResponse struct {
	idx  int
	resp AgentResponse
}

// DispatchAll executes all items concurrently and returns responses in input
// order regardless of completion order. Each item carries an independent
// per-call deadline; the batch completes when every item has terminated,
// successfully or as a failed response — no short-circuit on error.
// Cancelling ctx converts still-outstanding items to failed responses.
//
// A panic while assembling or collecting the batch is the one system-level
// fault: it surfaces as ErrDispatchSystem.
func (d *Dispatcher) DispatchAll(ctx context.Context, items []DispatchItem, timeout time.Duration) (_ []AgentResponse, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ErrDispatchSystem{Reason: fmt.Sprint(p)}
		}
	}()

	if len(items) == 0 {
		return nil, nil
	}

	var span Span
	if d.tracer != nil {
		ctx, span = d.tracer.Start(ctx, "dispatch.batch", IntAttr("subqueries", len(items)))
		defer span.End()
	}

	// Fast path: single item, no goroutine needed.
	if len(items) == 1 {
		return []AgentResponse{d.Dispatch(ctx, items[0].Subquery, items[0].AgentID, timeout)}, nil
	}

	type workItem struct {
		idx  int
		item DispatchItem
	}
	workCh := make(chan workItem, len(items))
	for i, item := range items {
		workCh <- workItem{idx: i, item: item}
	}
	close(workCh)

	resultCh := make(chan indexedResponse, len(items))
	numWorkers := min(len(items), maxParallelDispatch)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if ctx.Err() != nil {
					resultCh <- indexedResponse{w.idx, d.failed(w.item.Subquery, w.item.AgentID, 0, "cancelled: "+ctx.Err().Error())}
					continue
				}
				resultCh <- indexedResponse{w.idx, d.Dispatch(ctx, w.item.Subquery, w.item.AgentID, timeout)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Collect in input order, bailing out with failed responses for
	// incomplete items if ctx is cancelled mid-batch.
	responses := make([]AgentResponse, len(items))
	seen := make([]bool, len(items))
	for received := 0; received < len(items); received++ {
		select {
		case r, ok := <-resultCh:
			if !ok {
				break
			}
			responses[r.idx] = r.resp
			seen[r.idx] = true
		case <-ctx.Done():
			for i := range responses {
				if !seen[i] {
					responses[i] = d.failed(items[i].Subquery, items[i].AgentID, 0, "cancelled: "+ctx.Err().Error())
				}
			}
			return responses, nil
		}
	}
	return responses, nil
}
