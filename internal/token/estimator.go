// Package token provides token counting and truncation under a fixed encoding.
package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the fixed encoding scheme used for all size arithmetic.
// Chunk boundaries, prompt budgets, and embedding truncation must all be
// measured with the same encoding or sizes drift between indexing and query.
const Encoding = "cl100k_base"

// Estimator counts and truncates text in cl100k_base tokens.
type Estimator struct {
	enc *tiktoken.Tiktoken
}

// NewEstimator loads the cl100k_base encoding.
func NewEstimator() (*Estimator, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("get encoding %s: %w", Encoding, err)
	}
	return &Estimator{enc: enc}, nil
}

// Count returns the number of tokens in text. Deterministic and monotonic
// with text length.
func (e *Estimator) Count(text string) int {
	return len(e.enc.Encode(text, nil, nil))
}

// Truncate returns text cut to at most maxTokens tokens, decoded back to a
// string. Text at or under the limit is returned unchanged.
func (e *Estimator) Truncate(text string, maxTokens int) string {
	tokens := e.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return e.enc.Decode(tokens[:maxTokens])
}
