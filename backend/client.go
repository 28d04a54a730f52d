package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/elnormous/contenttype"
)

const queryPath = "/api/v1/claude/query"

var jsonMediaType = contenttype.NewMediaType("application/json")

// QueryRequest is the payload the reasoning service accepts.
type QueryRequest struct {
	Query           string         `json:"query"`
	ProcessResponse bool           `json:"process_response"`
	SessionID       string         `json:"session_id,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
}

// Stage is one entry of the reasoning trace: an ordered pipeline stage with
// its human-readable summary and per-stage numeric metrics.
type Stage struct {
	Stage   int                `json:"stage"`
	Name    string             `json:"name"`
	Summary string             `json:"summary"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Result is the reasoning-engine portion of a query response.
type Result struct {
	ReasoningTrace []Stage         `json:"reasoning_trace"`
	Confidence     []float64       `json:"confidence"`
	GraphState     json.RawMessage `json:"graph_state,omitempty"`
}

type ChoiceMessage struct {
	Content string `json:"content"`
}

type Choice struct {
	Message ChoiceMessage `json:"message"`
}

// QueryResponse is the service's reply envelope.
type QueryResponse struct {
	Choices   []Choice `json:"choices"`
	Result    *Result  `json:"asr_got_result"`
	SessionID string   `json:"session_id,omitempty"`
}

// Content returns the primary natural-language answer, or "" when absent.
func (r *QueryResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// TraceText renders the ordered per-stage trace into a flattened
// human-readable string. Metric lines are sorted by name for stable output.
func (r *Result) TraceText() string {
	if r == nil || len(r.ReasoningTrace) == 0 {
		return "No reasoning trace available."
	}

	var b strings.Builder
	for i, st := range r.ReasoningTrace {
		if i > 0 {
			b.WriteString("\n")
		}
		name := st.Name
		if name == "" {
			name = "Unknown Stage"
		}
		summary := st.Summary
		if summary == "" {
			summary = "No summary available."
		}
		fmt.Fprintf(&b, "Stage %d: %s\n%s\n", st.Stage, name, summary)

		keys := make([]string, 0, len(st.Metrics))
		for k := range st.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %g\n", k, st.Metrics[k])
		}
	}
	return b.String()
}

// ConfidenceVector returns the four-dimensional confidence vector (empirical
// support, theoretical basis, methodological rigor, consensus alignment, in
// that order). A missing or short vector degrades to zeros.
func (r *Result) ConfidenceVector() []float64 {
	out := make([]float64, 4)
	if r == nil {
		return out
	}
	copy(out, r.Confidence)
	return out
}

// Client issues reasoning queries over HTTP. Per-call deadlines come from
// the caller's context; the Client itself sets no timeout so the dispatcher
// stays in control of cancellation.
type Client struct {
	baseURL string
	hc      *http.Client
	log     *slog.Logger
}

// NewClient builds a Client for the service at baseURL.
func NewClient(baseURL string, log *slog.Logger) *Client {
	return &Client{baseURL: baseURL, hc: &http.Client{}, log: log}
}

// Query posts req to the reasoning endpoint under the context's deadline.
// Failures are returned as *Error with the kind separating deadline overrun
// from transport trouble.
func (c *Client) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: "query", Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Op: "query", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		// Prefer the context's verdict: a fired deadline can surface as a
		// wrapped transport error depending on where the cancel landed.
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, classify("query", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Error{
			Kind: KindTransport,
			Op:   "query",
			Err:  fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	if ctype := contenttype.NewMediaType(resp.Header.Get("Content-Type")); !ctype.Matches(jsonMediaType) {
		return nil, &Error{Kind: KindTransport, Op: "query", Err: fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))}
	}

	var out QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Kind: KindTransport, Op: "query", Err: fmt.Errorf("decode response: %w", err)}
	}
	return &out, nil
}
