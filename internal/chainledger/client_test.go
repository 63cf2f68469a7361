package chainledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rawblock/pacmatch-engine/internal/ledger"
)

func newTestServer(t *testing.T, handler func(rpcRequest) (any, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		result, rpcErr := handler(req)
		resp := rpcResponse{Error: rpcErr}
		if rpcErr == nil {
			raw, err := json.Marshal(result)
			if err != nil {
				t.Fatalf("marshal result: %v", err)
			}
			resp.Result = raw
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestNewClientFailsWhenPingErrors(t *testing.T) {
	srv := newTestServer(t, func(req rpcRequest) (any, *rpcError) {
		return nil, &rpcError{Code: 1, Message: "node unavailable"}
	})
	defer srv.Close()

	if _, err := NewClient(Config{Endpoint: srv.URL}); err == nil {
		t.Fatal("expected NewClient to fail when ping returns an rpc error")
	}
}

func TestGetActiveAgentsUnmarshalsAddressList(t *testing.T) {
	want := []string{"0xaaa", "0xbbb"}
	srv := newTestServer(t, func(req rpcRequest) (any, *rpcError) {
		if req.Method == "ping" {
			return "pong", nil
		}
		return want, nil
	})
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	got, err := c.GetActiveAgents(context.Background())
	if err != nil {
		t.Fatalf("GetActiveAgents: %v", err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSubmitResultSendsResultPayload(t *testing.T) {
	var gotMatchID string
	srv := newTestServer(t, func(req rpcRequest) (any, *rpcError) {
		if req.Method == "ping" {
			return "pong", nil
		}
		if req.Method == "submitResult" {
			m, _ := req.Params.(map[string]any)
			gotMatchID, _ = m["MatchID"].(string)
			return struct{}{}, nil
		}
		return nil, &rpcError{Code: 404, Message: "unknown method"}
	})
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	err = c.SubmitResult(context.Background(), ledger.ResultSubmission{MatchID: "m-1", Winner: "agentA"})
	if err != nil {
		t.Fatalf("SubmitResult: %v", err)
	}
	if gotMatchID != "m-1" {
		t.Fatalf("server did not receive match id, got %q", gotMatchID)
	}
}
