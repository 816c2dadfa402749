// Package store is the HTTP client for the goal-tracking domain store. It
// speaks the documented collection endpoints (create, update, delete, the
// share/unshare delete variant) and surfaces any _cacheUpdate instruction a
// mutating response carries.
package store

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

// Config holds configuration for the store client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the domain store.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// Response is a decoded mutating-endpoint response.
type Response struct {
	Status      int
	Body        map[string]any
	CacheUpdate *types.CacheUpdateInstruction
}

// StatusError reports a non-2xx response from the store.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store returned status %d: %s", e.Status, e.Body)
}

// NewClient creates a store client. A nil logger is replaced with a no-op.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Do issues one mutating request against the store. The path must already be
// fully resolved (id placeholders and query parameters included). On success
// any _cacheUpdate field of the response body is decoded and removed from the
// returned body map.
func (c *Client) Do(ctx context.Context, method, path string, body map[string]any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("store request", zap.String("method", method), zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read store response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	out := &Response{Status: resp.StatusCode}
	if len(raw) == 0 {
		return out, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Non-object bodies (e.g. bare "ok") are tolerated.
		c.log.Debug("store response is not a JSON object", zap.Error(err))
		return out, nil
	}

	if rawUpd, ok := decoded["_cacheUpdate"]; ok {
		upd, err := decodeCacheUpdate(rawUpd)
		if err != nil {
			c.log.Warn("ignoring malformed _cacheUpdate", zap.Error(err))
		} else {
			out.CacheUpdate = upd
		}
		delete(decoded, "_cacheUpdate")
	}
	out.Body = decoded
	return out, nil
}

// FetchSnapshot retrieves the full domain snapshot, keyed by section id.
func (c *Client) FetchSnapshot(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/snapshot", nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return data, nil
}

func decodeCacheUpdate(v any) (*types.CacheUpdateInstruction, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var upd types.CacheUpdateInstruction
	if err := json.Unmarshal(data, &upd); err != nil {
		return nil, err
	}
	if upd.Action == "" {
		return nil, fmt.Errorf("cache update missing action")
	}
	return &upd, nil
}
