// Package chainledger is the concrete wiring for the ledger.Ledger
// contract: a JSON-RPC client talking to the on-chain registry and
// settlement contract, grounded on the same config-struct/constructor
// shape the teacher uses for its Bitcoin RPC client, generalized from a
// chain-specific client library to a plain HTTP JSON-RPC call since no
// contract-binding SDK ships in this module's dependency set.
package chainledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/rawblock/pacmatch-engine/internal/ledger"
)

// Config is the connection configuration for the chain RPC endpoint.
type Config struct {
	Endpoint string
	AuthUser string
	AuthPass string
	Timeout  time.Duration
}

// Client is the concrete ledger.Ledger implementation. It holds no
// chain state itself; every call is a synchronous JSON-RPC round trip.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient dials nothing (JSON-RPC is stateless over HTTP) but
// validates the endpoint is reachable via a lightweight ping call.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	log.Printf("chainledger: connecting to %s...", cfg.Endpoint)
	if _, err := c.call(context.Background(), "ping", nil); err != nil {
		return nil, fmt.Errorf("chainledger: endpoint unreachable: %w", err)
	}
	log.Println("chainledger: connected")
	return c, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, fmt.Errorf("chainledger: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chainledger: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthUser != "" {
		req.SetBasicAuth(c.cfg.AuthUser, c.cfg.AuthPass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chainledger: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chainledger: %s: read response: %w", method, err)
	}
	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("chainledger: %s: decode response: %w", method, err)
	}
	if rr.Error != nil {
		return nil, fmt.Errorf("chainledger: %s: rpc error %d: %s", method, rr.Error.Code, rr.Error.Message)
	}
	return rr.Result, nil
}

func (c *Client) GetActiveAgents(ctx context.Context) ([]string, error) {
	raw, err := c.call(ctx, "getActiveAgents", nil)
	if err != nil {
		return nil, err
	}
	var addrs []string
	if err := json.Unmarshal(raw, &addrs); err != nil {
		return nil, fmt.Errorf("chainledger: getActiveAgents: unmarshal: %w", err)
	}
	return addrs, nil
}

func (c *Client) GetAgentInfo(ctx context.Context, address string) (ledger.AgentInfo, error) {
	raw, err := c.call(ctx, "getAgentInfo", []string{address})
	if err != nil {
		return ledger.AgentInfo{}, err
	}
	var info ledger.AgentInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ledger.AgentInfo{}, fmt.Errorf("chainledger: getAgentInfo: unmarshal: %w", err)
	}
	return info, nil
}

func (c *Client) CreateTournament(ctx context.Context, participants []string, size int) (string, error) {
	raw, err := c.call(ctx, "createTournament", map[string]any{"participants": participants, "size": size})
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("chainledger: createTournament: unmarshal: %w", err)
	}
	return id, nil
}

func (c *Client) AdvanceTournament(ctx context.Context, onchainID string, winners []string) error {
	_, err := c.call(ctx, "advanceTournament", map[string]any{"onchainId": onchainID, "winners": winners})
	return err
}

func (c *Client) FinalizeTournament(ctx context.Context, onchainID, champion string) error {
	_, err := c.call(ctx, "finalizeTournament", map[string]any{"onchainId": onchainID, "champion": champion})
	return err
}

func (c *Client) LockBets(ctx context.Context, matchID string) error {
	_, err := c.call(ctx, "lockBets", []string{matchID})
	return err
}

func (c *Client) SettleBets(ctx context.Context, matchID string, winnerCode int) error {
	_, err := c.call(ctx, "settleBets", map[string]any{"matchId": matchID, "winner": winnerCode})
	return err
}

func (c *Client) SubmitResult(ctx context.Context, result ledger.ResultSubmission) error {
	_, err := c.call(ctx, "submitResult", result)
	return err
}
