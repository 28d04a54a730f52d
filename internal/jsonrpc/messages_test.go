package jsonrpc

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRequestIDStringAndNumber(t *testing.T) {
	t.Parallel()

	var id RequestID
	if err := json.Unmarshal([]byte(`42`), &id); err != nil {
		t.Fatalf("number id: %v", err)
	}
	if id.String() != "42" {
		t.Fatalf("number id string: got %q", id.String())
	}

	b, err := json.Marshal(&id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "42" {
		t.Fatalf("number id round trip: got %s", b)
	}

	var sid RequestID
	if err := json.Unmarshal([]byte(`"abc"`), &sid); err != nil {
		t.Fatalf("string id: %v", err)
	}
	if sid.String() != "abc" {
		t.Fatalf("string id string: got %q", sid.String())
	}

	var bad RequestID
	if err := json.Unmarshal([]byte(`{"nested":true}`), &bad); err == nil {
		t.Fatal("expected error for object id")
	}
}

func TestAnyMessageClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		typ  string
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":1}}`, "notification"},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{}}`, "response"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m AnyMessage
			if err := json.Unmarshal([]byte(tc.raw), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := m.Type(); got != tc.typ {
				t.Fatalf("type: got %q want %q", got, tc.typ)
			}
		})
	}
}

func TestAnyMessageRejectsBadVersion(t *testing.T) {
	t.Parallel()

	var m AnyMessage
	err := json.Unmarshal([]byte(`{"jsonrpc":"1.0","id":1,"method":"x"}`), &m)
	if err == nil || !strings.Contains(err.Error(), "invalid JSON-RPC version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestNullResponseEncodesResultNull(t *testing.T) {
	t.Parallel()

	resp := NewNullResponse(NewRequestID(7))
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"result":null`) {
		t.Fatalf("expected explicit null result, got %s", b)
	}
	if !strings.Contains(string(b), `"id":7`) {
		t.Fatalf("expected echoed id, got %s", b)
	}
}

func TestErrorResponseShape(t *testing.T) {
	t.Parallel()

	resp := NewErrorResponse(NewRequestID("q-1"), ErrorCodeMethodNotFound, "Method not found: nope", map[string]string{"method": "nope"})
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Error.Code != -32601 || decoded.ID != "q-1" {
		t.Fatalf("unexpected response: %s", b)
	}
}
