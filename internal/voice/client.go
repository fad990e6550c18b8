package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrProviderUnavailable marks transient provider failures (timeouts, 5xx).
// Callers retry these per their own backoff; they are never mapped to a
// negative call outcome.
var ErrProviderUnavailable = errors.New("voice: provider unavailable")

// Client talks to the voice-call provider's REST API.
//
// Endpoints:
//
//	POST {base}/v1/calls           -> {"call_id": "..."}
//	GET  {base}/v1/calls/{id}      -> raw status payload
//	GET  {base}/v1/health
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("voice: base url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("voice: api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Name() string { return "voice-api" }

func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("voice: health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) PlaceCall(ctx context.Context, in PlaceCallRequest) (PlaceCallResult, error) {
	if in.WorkspaceID == "" || in.ContactID == "" || in.ContactNumber == "" {
		return PlaceCallResult{}, errors.New("voice: workspace_id, contact_id and contact_number are required")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return PlaceCallResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/calls", bytes.NewReader(body))
	if err != nil {
		return PlaceCallResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return PlaceCallResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return PlaceCallResult{}, fmt.Errorf("%w: place call returned %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return PlaceCallResult{}, fmt.Errorf("voice: place call returned %d", resp.StatusCode)
	}

	var out struct {
		CallID string `json:"call_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PlaceCallResult{}, fmt.Errorf("voice: decode place call response: %w", err)
	}
	if out.CallID == "" {
		return PlaceCallResult{}, errors.New("voice: provider returned empty call_id")
	}
	return PlaceCallResult{ProviderCallID: out.CallID, AcceptedAt: time.Now().UTC()}, nil
}

func (c *Client) GetCallStatus(ctx context.Context, providerCallID string) ([]byte, error) {
	if providerCallID == "" {
		return nil, errors.New("voice: provider call id is required")
	}

	u := c.baseURL + "/v1/calls/" + url.PathEscape(providerCallID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status query returned %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voice: status query returned %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		// Network errors and client timeouts are transient by definition.
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return resp, nil
}
