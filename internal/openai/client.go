// Package openai provides the embedding and chat-completion gateways.
// Both endpoints share one HTTP client with bounded retry on transient
// failures (429 and 5xx); other non-success statuses surface immediately
// as a StatusError.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hyperjump/kaiwa/internal/token"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultEmbedModel matches the model the persisted index was built with.
	DefaultEmbedModel = "text-embedding-ada-002"
	// DefaultChatModel is the completion model.
	DefaultChatModel = "gpt-4o-mini"
	// EmbedMaxTokens is the hard cap on embeddable input; longer text is
	// truncated to this many tokens before the request is sent.
	EmbedMaxTokens = 8150
)

// Config configures the gateway client.
type Config struct {
	BaseURL        string
	APIKey         string
	EmbedModel     string
	ChatModel      string
	Timeout        time.Duration
	MaxRetries     int
	EmbedMaxTokens int
}

// Client calls the embeddings and chat-completions endpoints.
type Client struct {
	cfg    Config
	client *http.Client
	est    *token.Estimator
}

// NewClient creates a gateway client. The API key is required; everything
// else falls back to defaults.
func NewClient(cfg Config, est *token.Estimator) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.EmbedMaxTokens == 0 {
		cfg.EmbedMaxTokens = EmbedMaxTokens
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		est:    est,
	}, nil
}

// postJSON sends body to path and decodes the response into out.
// 429 and 5xx responses are retried with exponential backoff, honoring
// Retry-After when present; other non-2xx statuses return a StatusError
// without retry.
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	url := c.cfg.BaseURL + path
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.cfg.MaxRetries && ctx.Err() == nil {
				if sleepErr := sleepCtx(ctx, retryDelay(attempt)); sleepErr != nil {
					return sleepErr
				}
				continue
			}
			return lastErr
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
			if attempt < c.cfg.MaxRetries {
				if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
					return sleepErr
				}
				continue
			}
			return lastErr
		}

		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return &StatusError{Code: resp.StatusCode, Status: resp.Status}
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		return nil
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryDelay returns the backoff for the given attempt, capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
