// Package indexer provides page chunking and vector index building.
package indexer

import (
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/token"
)

// DefaultBlockSize is the chunk emission threshold in tokens.
const DefaultBlockSize = 500

// Chunker splits a page's lines into overlapping, token-bounded chunks.
type Chunker struct {
	est       *token.Estimator
	blockSize int
}

// NewChunker creates a chunker that emits a chunk once the joined line
// buffer exceeds blockSize tokens.
func NewChunker(est *token.Estimator, blockSize int) *Chunker {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Chunker{est: est, blockSize: blockSize}
}

// Chunk splits the lines of one titled page into chunks. Lines are appended
// to a buffer; whenever the space-joined buffer exceeds the block size, the
// joined text is emitted as a chunk and the first half of the buffer is
// dropped, so consecutive chunks overlap by the trailing half of the lines.
// The trimmed remainder is emitted as a final chunk when non-empty. An empty
// page yields no chunks; a page that never exceeds the threshold yields
// exactly one chunk.
func (c *Chunker) Chunk(title string, lines []string) []models.Chunk {
	var chunks []models.Chunk
	var buf []string
	for _, line := range lines {
		buf = append(buf, line)
		body := strings.Join(buf, " ")
		if c.est.Count(body) > c.blockSize {
			chunks = append(chunks, models.Chunk{Text: body, Title: title})
			buf = buf[len(buf)/2:]
		}
	}
	body := strings.TrimSpace(strings.Join(buf, " "))
	if body != "" {
		chunks = append(chunks, models.Chunk{Text: body, Title: title})
	}
	return chunks
}
