package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vectorstore"
)

// DefaultConcurrency bounds how many embedding calls are in flight during a
// bulk build.
const DefaultConcurrency = 4

// Indexer builds a vector index from a page export: chunk every page, embed
// each distinct chunk text once, insert into the store.
type Indexer struct {
	chunker     *Chunker
	embedder    embedding.Embedder
	concurrency int
	logger      *zap.Logger // optional; when set, logs per-page progress
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for progress output (pages chunked, chunks embedded).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer. concurrency bounds parallel embedding calls;
// values below 1 fall back to the default.
func NewIndexer(chunker *Chunker, embedder embedding.Embedder, concurrency int, opts ...IndexerOption) *Indexer {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	idx := &Indexer{
		chunker:     chunker,
		embedder:    embedder,
		concurrency: concurrency,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// ReadPageSet reads and parses a page export file.
func ReadPageSet(path string) (*models.PageSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page export: %w", err)
	}
	var set models.PageSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse page export %s: %w", path, err)
	}
	return &set, nil
}

// Build chunks every page and inserts the chunks into store, reusing records
// from the optional cache snapshot. Chunks are deduplicated by text before
// embedding, so each distinct text costs at most one gateway call per build
// even with concurrent workers. Returns the number of distinct chunks
// processed.
func (idx *Indexer) Build(ctx context.Context, store *vectorstore.Store, pages []models.Page, cache *vectorstore.Store) (int, error) {
	seen := make(map[string]bool)
	var chunks []models.Chunk
	for _, page := range pages {
		pageChunks := idx.chunker.Chunk(page.Title, page.Lines)
		for _, ch := range pageChunks {
			if seen[ch.Text] {
				continue
			}
			seen[ch.Text] = true
			chunks = append(chunks, ch)
		}
		if idx.logger != nil {
			idx.logger.Debug("page chunked",
				zap.String("title", page.Title),
				zap.Int("chunks", len(pageChunks)),
			)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)
	for _, ch := range chunks {
		ch := ch
		g.Go(func() error {
			if _, err := store.Insert(gctx, ch, cache); err != nil {
				return fmt.Errorf("insert chunk from %q: %w", ch.Title, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if idx.logger != nil {
		idx.logger.Info("index built",
			zap.Int("pages", len(pages)),
			zap.Int("chunks", len(chunks)),
			zap.Int("records", store.Len()),
		)
	}
	return len(chunks), nil
}

// Rebuild builds a fresh store from the page export at sourcePath, reusing
// embeddings from the optional cache snapshot, and saves it to indexPath.
func (idx *Indexer) Rebuild(ctx context.Context, sourcePath, indexPath string, cache *vectorstore.Store) (*vectorstore.Store, error) {
	set, err := ReadPageSet(sourcePath)
	if err != nil {
		return nil, err
	}
	store := vectorstore.New(idx.embedder)
	if _, err := idx.Build(ctx, store, set.Pages, cache); err != nil {
		return nil, err
	}
	if err := store.Save(indexPath); err != nil {
		return nil, err
	}
	return store, nil
}
