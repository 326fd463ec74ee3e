package openai

import (
	"context"
	"fmt"
)

// Message is one chat message in a completion request or response.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the assistant's
// reply. Decoding is deterministic: temperature 0 with maxTokens reserved
// for the output.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var out chatResponse
	err := c.postJSON(ctx, "/chat/completions", chatRequest{
		Model:       c.cfg.ChatModel,
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: 0,
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrSchemaMismatch)
	}
	return out.Choices[0].Message.Content, nil
}
