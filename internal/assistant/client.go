package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"stride/internal/types"
)

// ClientConfig configures the assistant-service client.
type ClientConfig struct {
	BaseURL string
	// Timeout bounds the whole turn including streaming. Zero means the
	// default of five minutes.
	Timeout time.Duration
}

// Client speaks to the remote assistant service. The service is opaque beyond
// its request shape and its newline-delimited event stream.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// ChatRequest is the outbound per-turn request body.
type ChatRequest struct {
	Messages         []types.Message `json:"messages"`
	SystemPromptData string          `json:"systemPromptData"`
	DisplayName      string          `json:"displayName"`
}

// NewClient creates an assistant-service client.
func NewClient(cfg ClientConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// StreamTurn sends one turn request and returns the raw event stream. The
// caller owns the returned body and must close it; cancelling ctx aborts the
// in-flight request and any pending reads.
func (c *Client) StreamTurn(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/assistant", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build turn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	c.log.Debug("assistant turn request",
		zap.Int("messages", len(req.Messages)),
		zap.Bool("hasSystemPromptData", req.SystemPromptData != ""))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assistant request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("assistant returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return resp.Body, nil
}
