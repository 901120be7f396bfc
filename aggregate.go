package prism

import "log/slog"

// Aggregator collects dispatched responses by subquery id and partitions
// successes from failures before synthesis.
type Aggregator struct {
	logger *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorLogger sets a structured logger for duplicate and missing
// response warnings.
func WithAggregatorLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an Aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{logger: nopLogger}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ResponseStatistics summarizes one aggregated batch.
type ResponseStatistics struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Aggregate maps responses by subquery id. On duplicate responses for the
// same id the first wins; the duplicate is counted and dropped. Subqueries
// with no response are logged and simply absent from the output. Nil inputs
// are a caller bug and raise ErrAggregation with counts for context.
func (a *Aggregator) Aggregate(responses []AgentResponse, subqueries []Subquery) (map[string]AgentResponse, error) {
	if responses == nil {
		return nil, &ErrAggregation{
			Responses:  0,
			Subqueries: len(subqueries),
			Reason:     "nil responses",
		}
	}

	out := make(map[string]AgentResponse, len(responses))
	duplicates := 0
	for _, resp := range responses {
		if _, exists := out[resp.SubqueryID]; exists {
			duplicates++
			a.logger.Warn("duplicate response dropped", "subquery", resp.SubqueryID, "agent", resp.AgentID)
			continue
		}
		out[resp.SubqueryID] = resp
	}

	for _, sq := range subqueries {
		if _, ok := out[sq.ID]; !ok {
			a.logger.Warn("missing response for subquery", "subquery", sq.ID)
		}
	}
	if duplicates > 0 {
		a.logger.Info("aggregation dropped duplicates", "count", duplicates)
	}
	return out, nil
}

// ExtractSuccessful returns only the responses with Success=true.
func (a *Aggregator) ExtractSuccessful(responses map[string]AgentResponse) map[string]AgentResponse {
	out := make(map[string]AgentResponse)
	for id, resp := range responses {
		if resp.Success {
			out[id] = resp
		}
	}
	return out
}

// FailedResponses returns only the responses with Success=false.
func (a *Aggregator) FailedResponses(responses map[string]AgentResponse) map[string]AgentResponse {
	out := make(map[string]AgentResponse)
	for id, resp := range responses {
		if !resp.Success {
			out[id] = resp
		}
	}
	return out
}

// Statistics counts total, successful, and failed responses.
func (a *Aggregator) Statistics(responses map[string]AgentResponse) ResponseStatistics {
	stats := ResponseStatistics{Total: len(responses)}
	for _, resp := range responses {
		if resp.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
	}
	return stats
}
