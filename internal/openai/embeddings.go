package openai

import (
	"context"
	"fmt"
	"strings"
)

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text. Newlines are replaced with
// spaces and input longer than the embeddable maximum is truncated to its
// first tokens before the request is sent. The same preparation applies to
// stored chunk text and query text, so cache keys and query vectors agree.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	prepared := strings.ReplaceAll(text, "\n", " ")
	prepared = c.est.Truncate(prepared, c.cfg.EmbedMaxTokens)

	var out embeddingsResponse
	err := c.postJSON(ctx, "/embeddings", embeddingsRequest{
		Input: []string{prepared},
		Model: c.cfg.EmbedModel,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding in response", ErrSchemaMismatch)
	}
	return out.Data[0].Embedding, nil
}
