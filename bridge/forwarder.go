package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/asrgot/mcp-bridge/backend"
	"github.com/asrgot/mcp-bridge/internal/metrics"
)

// ErrEmptyQuery is returned for a query with missing or blank text. No
// network call is made in that case.
var ErrEmptyQuery = errors.New("missing query in context")

// QueryContext is the caller-supplied query envelope, carried under the
// "context" key of the query method's params.
type QueryContext struct {
	Query      string         `json:"query" jsonschema:"title=Query,description=The reasoning problem to solve"`
	SessionID  string         `json:"session_id,omitempty" jsonschema:"description=Session identifier for continuing an earlier reasoning graph"`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"description=Optional engine parameter overrides"`
}

// QueryResult is the bridge's reply envelope for a reasoning query.
type QueryResult struct {
	Response       string          `json:"response"`
	ReasoningTrace string          `json:"reasoningTrace"`
	Confidence     []float64       `json:"confidence"`
	GraphState     json.RawMessage `json:"graphState"`
	SessionID      string          `json:"sessionId"`
}

// TimeoutLimits bound the per-query deadline. Default is hot-reloadable;
// overrides outside [Min, Max] are clamped, never rejected.
type TimeoutLimits struct {
	Default time.Duration
	Min     time.Duration
	Max     time.Duration
}

// Forwarder translates a bridge-level query into the backend's request
// shape, performs the HTTP call, and translates the result (or failure) back
// into the bridge's envelope. It maintains the shared session identifier.
type Forwarder struct {
	client  *backend.Client
	session *SessionRef

	defTimeout atomic.Int64 // nanoseconds
	minTimeout time.Duration
	maxTimeout time.Duration

	log *slog.Logger
	m   *metrics.Metrics
}

// NewForwarder builds a Forwarder over client, recording the last-seen
// session id into session.
func NewForwarder(client *backend.Client, session *SessionRef, limits TimeoutLimits, m *metrics.Metrics, log *slog.Logger) *Forwarder {
	f := &Forwarder{
		client:     client,
		session:    session,
		minTimeout: limits.Min,
		maxTimeout: limits.Max,
		log:        log,
		m:          m,
	}
	f.defTimeout.Store(int64(limits.Default))
	return f
}

// SetDefaultTimeout updates the default deadline for subsequent queries.
// Safe to call while queries are in flight.
func (f *Forwarder) SetDefaultTimeout(d time.Duration) {
	f.defTimeout.Store(int64(d))
}

// timeoutFor resolves the effective deadline for a request that asked for
// requestedMs milliseconds (0 means "use the default").
func (f *Forwarder) timeoutFor(requestedMs int64) time.Duration {
	if requestedMs <= 0 {
		return time.Duration(f.defTimeout.Load())
	}
	d := time.Duration(requestedMs) * time.Millisecond
	if d < f.minTimeout {
		return f.minTimeout
	}
	if d > f.maxTimeout {
		return f.maxTimeout
	}
	return d
}

// Forward validates q, issues the backend call under timeout, and shapes the
// reply. Missing optional response fields degrade to documented defaults
// rather than failing the call.
func (f *Forwarder) Forward(ctx context.Context, q *QueryContext, timeout time.Duration) (*QueryResult, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, ErrEmptyQuery
	}

	req := &backend.QueryRequest{
		Query:           q.Query,
		ProcessResponse: true,
		SessionID:       q.SessionID,
		Parameters:      q.Parameters,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := f.client.Query(ctx, req)
	f.m.ForwardDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if resp.SessionID != "" {
		f.session.Set(resp.SessionID)
	}

	content := resp.Content()
	if content == "" {
		content = "No response from ASR-GoT model."
	}

	graphState := json.RawMessage("{}")
	if resp.Result != nil && len(resp.Result.GraphState) > 0 {
		graphState = resp.Result.GraphState
	}

	f.log.Info("query.forward.ok", slog.Duration("dur", time.Since(start)))

	return &QueryResult{
		Response:       content,
		ReasoningTrace: resp.Result.TraceText(),
		Confidence:     resp.Result.ConfidenceVector(),
		GraphState:     graphState,
		SessionID:      f.session.Get(),
	}, nil
}
