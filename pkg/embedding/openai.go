package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "text-embedding-3-small"
	defaultTimeout = 30 * time.Second
)

// Config holds settings for the OpenAI-compatible embedding client.
type Config struct {
	// APIKey is the bearer token. Required for the hosted API; local
	// compatible servers may accept any value.
	APIKey string

	// BaseURL overrides the endpoint. Defaults to https://api.openai.com/v1.
	// Useful for local inference servers exposing the same API.
	BaseURL string

	// Model is the embedding model. Defaults to text-embedding-3-small.
	Model string

	// Timeout is the per-request HTTP timeout. Defaults to 30s.
	Timeout time.Duration
}

// Client implements Provider against the OpenAI embeddings API or any
// compatible endpoint. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates an embedding client with defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed calls the embeddings endpoint. Transport failures and server-side
// errors are wrapped in ErrUnavailable so callers can degrade; malformed
// input is a hard error.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("embed: empty text")
	}

	body, err := json.Marshal(embeddingRequest{Input: text, Model: c.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: %w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed: read response: %w", err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}

	if parsed.Error != nil {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("embed: %w: %s", ErrUnavailable, parsed.Error.Message)
		}
		return nil, fmt.Errorf("embed: api error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("embed: %w: http %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embed: unexpected http status %d", resp.StatusCode)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embed: %w: no embedding data returned", ErrUnavailable)
	}

	return parsed.Data[0].Embedding, nil
}

// ModelVersion returns the configured model name.
func (c *Client) ModelVersion() string {
	return c.cfg.Model
}

var _ Provider = (*Client)(nil)
