package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func serveJSON(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/claude/query" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %q", r.Method)
		}
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.ProcessResponse {
			t.Error("process_response flag not set")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQuerySuccess(t *testing.T) {
	t.Parallel()

	srv := serveJSON(t, `{
		"choices":[{"message":{"content":"The answer."}}],
		"asr_got_result":{
			"reasoning_trace":[
				{"stage":1,"name":"Initialization","summary":"Seeded the graph.","metrics":{"nodes":3}},
				{"stage":2,"name":"Decomposition","summary":"Split the task."}
			],
			"confidence":[0.8,0.7,0.6,0.5]
		},
		"session_id":"sess-1"
	}`)

	c := NewClient(srv.URL, testLogger())
	resp, err := c.Query(context.Background(), &QueryRequest{Query: "why is the sky blue", ProcessResponse: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if got := resp.Content(); got != "The answer." {
		t.Fatalf("content: got %q", got)
	}
	if resp.SessionID != "sess-1" {
		t.Fatalf("session: got %q", resp.SessionID)
	}

	trace := resp.Result.TraceText()
	for _, want := range []string{"Stage 1: Initialization", "Seeded the graph.", "nodes: 3", "Stage 2: Decomposition"} {
		if !strings.Contains(trace, want) {
			t.Fatalf("trace missing %q:\n%s", want, trace)
		}
	}

	conf := resp.Result.ConfidenceVector()
	want := []float64{0.8, 0.7, 0.6, 0.5}
	for i := range want {
		if conf[i] != want[i] {
			t.Fatalf("confidence: got %v want %v", conf, want)
		}
	}
}

func TestQueryConfidenceDefaultsToZeros(t *testing.T) {
	t.Parallel()

	srv := serveJSON(t, `{"choices":[{"message":{"content":"x"}}],"asr_got_result":{"reasoning_trace":[]}}`)

	c := NewClient(srv.URL, testLogger())
	resp, err := c.Query(context.Background(), &QueryRequest{Query: "q", ProcessResponse: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	conf := resp.Result.ConfidenceVector()
	if len(conf) != 4 {
		t.Fatalf("confidence length: got %d", len(conf))
	}
	for i, v := range conf {
		if v != 0 {
			t.Fatalf("confidence[%d]: got %v want 0", i, v)
		}
	}
}

func TestQueryResultEntirelyAbsent(t *testing.T) {
	t.Parallel()

	srv := serveJSON(t, `{"choices":[]}`)

	c := NewClient(srv.URL, testLogger())
	resp, err := c.Query(context.Background(), &QueryRequest{Query: "q", ProcessResponse: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := resp.Content(); got != "" {
		t.Fatalf("content: got %q want empty", got)
	}
	if got := resp.Result.TraceText(); got != "No reasoning trace available." {
		t.Fatalf("trace: got %q", got)
	}
	if conf := resp.Result.ConfidenceVector(); conf[0] != 0 || len(conf) != 4 {
		t.Fatalf("confidence: got %v", conf)
	}
}

func TestQueryDeadlineYieldsTimeoutKind(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Query(ctx, &QueryRequest{Query: "slow", ProcessResponse: true})
	var be *Error
	if !errors.As(err, &be) || be.Kind != KindTimeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
}

func TestQueryConnectionFailureYieldsTransportKind(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, testLogger())
	_, err := c.Query(context.Background(), &QueryRequest{Query: "q", ProcessResponse: true})
	var be *Error
	if !errors.As(err, &be) || be.Kind != KindTransport {
		t.Fatalf("expected transport kind, got %v", err)
	}
}

func TestQueryNon2xxYieldsTransportKind(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	_, err := c.Query(context.Background(), &QueryRequest{Query: "q", ProcessResponse: true})
	var be *Error
	if !errors.As(err, &be) || be.Kind != KindTransport {
		t.Fatalf("expected transport kind, got %v", err)
	}
}

func TestQueryRejectsNonJSONReply(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>proxy error page</html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	_, err := c.Query(context.Background(), &QueryRequest{Query: "q", ProcessResponse: true})
	var be *Error
	if !errors.As(err, &be) || be.Kind != KindTransport {
		t.Fatalf("expected transport kind for non-JSON reply, got %v", err)
	}
}
