// Package embedding defines the embedder contract plus caching and a test double.
package embedding

import "context"

// Embedder produces a fixed-dimension vector embedding for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
