// Package vectorstore provides the persisted chunk-to-vector index with
// idempotent insertion and exhaustive similarity search.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
)

// ErrNotFound is returned by Load when the index file is absent and the
// caller disallowed creation.
var ErrNotFound = errors.New("index file not found")

// Record is the stored entry for one chunk text: its embedding vector and
// the title of the page it came from.
type Record struct {
	Vector []float64
	Title  string
}

// MarshalJSON encodes the record as the persisted [vector, title] pair.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{r.Vector, r.Title})
}

// UnmarshalJSON decodes the persisted [vector, title] pair.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("record must be a [vector, title] pair, got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &r.Vector); err != nil {
		return fmt.Errorf("record vector: %w", err)
	}
	if err := json.Unmarshal(raw[1], &r.Title); err != nil {
		return fmt.Errorf("record title: %w", err)
	}
	return nil
}

// Store maps exact chunk text to its Record. The text is the cache key:
// inserting a text that is already present never triggers an embedding
// call. Mutations only happen through Insert; persistence only through an
// explicit Save.
type Store struct {
	embedder embedding.Embedder
	records  map[string]Record
	mu       sync.RWMutex
}

// New creates an empty store backed by the given embedder.
func New(embedder embedding.Embedder) *Store {
	return &Store{
		embedder: embedder,
		records:  make(map[string]Record),
	}
}

// Load reads a persisted index from path. When the file is absent, an empty
// store is returned if createIfMissing, otherwise ErrNotFound.
func Load(path string, embedder embedding.Embedder, createIfMissing bool) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if createIfMissing {
				return New(embedder), nil
			}
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	records := make(map[string]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", path, err)
	}
	return &Store{embedder: embedder, records: records}, nil
}

// Insert stores an embedding record for chunk, looking up in order: this
// store, the optional read-only external cache (a prior index snapshot),
// and finally the embedding gateway. Only the last tier calls out, which is
// what makes repeated indexing runs cheap.
func (s *Store) Insert(ctx context.Context, chunk models.Chunk, cache *Store) (Record, error) {
	if chunk.Text == "" {
		return Record{}, fmt.Errorf("chunk text must not be empty")
	}

	s.mu.RLock()
	rec, ok := s.records[chunk.Text]
	s.mu.RUnlock()
	if ok {
		return rec, nil
	}

	if cache != nil {
		if cached, ok := cache.lookup(chunk.Text); ok {
			s.mu.Lock()
			s.records[chunk.Text] = cached
			s.mu.Unlock()
			return cached, nil
		}
	}

	vector, err := s.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return Record{}, fmt.Errorf("embed chunk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent insert of the same text may have won the race; keep the
	// existing record so one text maps to exactly one record.
	if existing, ok := s.records[chunk.Text]; ok {
		return existing, nil
	}
	rec = Record{Vector: vector, Title: chunk.Title}
	s.records[chunk.Text] = rec
	return rec, nil
}

// Search embeds the query and scores every stored record by the raw dot
// product of the two vectors, returning all records in descending score
// order. The scan is exhaustive; ranking is exact, not approximate.
func (s *Store) Search(ctx context.Context, query string) ([]models.SimilarityResult, error) {
	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	results := make([]models.SimilarityResult, 0, len(s.records))
	for text, rec := range s.records {
		results = append(results, models.SimilarityResult{
			Score: dot(q, rec.Vector),
			Text:  text,
			Title: rec.Title,
		})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// Save writes the full mapping to path as a single JSON object, overwriting
// any existing file. Parent directories are created if needed.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	data, err := json.Marshal(s.records)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create index dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// lookup returns the record for text if present.
func (s *Store) lookup(text string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[text]
	return rec, ok
}

// dot returns the raw (unnormalized) dot product of a and b.
func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
