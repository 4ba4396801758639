// Package control is the HTTP client of a running econsim: it reads status
// and quotes and submits external events through the admin endpoints.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Intervention is the body of POST /api/v1/intervention.
type Intervention struct {
	Kind      string  `json:"kind"`
	Message   string  `json:"message,omitempty"`
	Agent     string  `json:"agent,omitempty"`
	Commodity string  `json:"commodity,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Role      string  `json:"role,omitempty"`
	Good      string  `json:"good,omitempty"`
	Count     int     `json:"count,omitempty"`
}

// Receipt is the response to an accepted intervention.
type Receipt struct {
	Queued   bool   `json:"queued"`
	Kind     string `json:"kind"`
	Position int    `json:"position"`
	RunsAt   string `json:"runs_at"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	RunID           string  `json:"run_id"`
	SimTime         string  `json:"sim_time"`
	Start           string  `json:"start"`
	Speed           float64 `json:"speed"`
	Running         bool    `json:"running"`
	Subscriptions   int     `json:"subscriptions"`
	ExternalPending int     `json:"external_pending"`
	Books           int     `json:"books"`
	Agents          int     `json:"agents"`
	Stats           struct {
		Ticks            uint64 `json:"ticks"`
		EventsFired      uint64 `json:"events_fired"`
		DispatchFailures uint64 `json:"dispatch_failures"`
		ExternalEvents   uint64 `json:"external_events"`
		Fills            uint64 `json:"fills"`
	} `json:"stats"`
}

// Quote mirrors one entry of GET /api/v1/markets.
type Quote struct {
	Book          string   `json:"book"`
	Currency      string   `json:"currency"`
	Commodity     string   `json:"commodity"`
	MarginalPrice *float64 `json:"marginal_price"`
	AmountSum     float64  `json:"amount_sum"`
	Orders        int      `json:"orders"`
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("econsim responded %d: %s", e.Code, e.Body)
}

// Client talks to the econsim HTTP API.
type Client struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewClient creates a Client targeting the given API base URL with admin auth.
func NewClient(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Submit sends an intervention to POST /api/v1/intervention.
func (c *Client) Submit(ctx context.Context, iv *Intervention) (*Receipt, error) {
	var r Receipt
	if err := c.do(ctx, http.MethodPost, "/api/v1/intervention", iv, http.StatusAccepted, &r); err != nil {
		return nil, fmt.Errorf("submit %s: %w", iv.Kind, err)
	}
	return &r, nil
}

// SetSpeed changes the pacing multiplier and returns the new value.
func (c *Client) SetSpeed(ctx context.Context, speed float64) (float64, error) {
	var r struct {
		Speed float64 `json:"speed"`
	}
	body := map[string]float64{"speed": speed}
	if err := c.do(ctx, http.MethodPost, "/api/v1/speed", body, http.StatusOK, &r); err != nil {
		return 0, fmt.Errorf("set speed: %w", err)
	}
	return r.Speed, nil
}

// Status fetches GET /api/v1/status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, http.StatusOK, &s); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &s, nil
}

// Markets fetches GET /api/v1/markets.
func (c *Client) Markets(ctx context.Context) ([]Quote, error) {
	var q []Quote
	if err := c.do(ctx, http.MethodGet, "/api/v1/markets", nil, http.StatusOK, &q); err != nil {
		return nil, fmt.Errorf("markets: %w", err)
	}
	return q, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Authorization", "Bearer "+c.AdminKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
