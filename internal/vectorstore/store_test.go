package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
)

type countingEmbedder struct {
	inner embedding.Embedder
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.calls++
	return e.inner.Embed(ctx, text)
}

// fixedEmbedder returns a fixed vector for every text.
type fixedEmbedder struct {
	vector []float64
}

func (e *fixedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return e.vector, nil
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.index.json")
	emb := embedding.NewMockEmbedder(4)

	s, err := Load(path, emb, true)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d records", s.Len())
	}

	_, err = Load(path, emb, false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsert_Idempotent(t *testing.T) {
	counting := &countingEmbedder{inner: embedding.NewMockEmbedder(4)}
	s := New(counting)
	ctx := context.Background()
	chunk := models.Chunk{Text: "some chunk text", Title: "Page A"}

	rec1, err := s.Insert(ctx, chunk, nil)
	if err != nil {
		t.Fatal(err)
	}
	rec2, err := s.Insert(ctx, chunk, nil)
	if err != nil {
		t.Fatal(err)
	}
	if counting.calls != 1 {
		t.Errorf("duplicate insert should not re-embed, got %d calls", counting.calls)
	}
	if rec1.Title != rec2.Title || len(rec1.Vector) != len(rec2.Vector) {
		t.Error("duplicate insert should return the existing record")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 record, got %d", s.Len())
	}
}

func TestInsert_ExternalCache(t *testing.T) {
	ctx := context.Background()
	chunk := models.Chunk{Text: "cached chunk", Title: "Page A"}

	// Build a prior snapshot containing the chunk.
	prior := New(embedding.NewMockEmbedder(4))
	if _, err := prior.Insert(ctx, chunk, nil); err != nil {
		t.Fatal(err)
	}

	counting := &countingEmbedder{inner: embedding.NewMockEmbedder(4)}
	s := New(counting)
	rec, err := s.Insert(ctx, chunk, prior)
	if err != nil {
		t.Fatal(err)
	}
	if counting.calls != 0 {
		t.Errorf("cache hit should not call the gateway, got %d calls", counting.calls)
	}
	if rec.Title != "Page A" || len(rec.Vector) != 4 {
		t.Errorf("record not copied from cache: %+v", rec)
	}
	// The record is now owned by this store as well.
	if s.Len() != 1 {
		t.Errorf("expected record copied into store, got %d", s.Len())
	}
}

func TestInsert_EmptyText(t *testing.T) {
	s := New(embedding.NewMockEmbedder(4))
	if _, err := s.Insert(context.Background(), models.Chunk{Text: "", Title: "T"}, nil); err == nil {
		t.Error("expected error for empty chunk text")
	}
}

func TestSearch_RankingByDotProduct(t *testing.T) {
	// Query embeds to [1,0]; stored A:[1,0] B:[0,1] C:[0.5,0.5].
	// Expected order A, C, B with scores 1, 0.5, 0.
	s := New(&fixedEmbedder{vector: []float64{1, 0}})
	s.records["A text"] = Record{Vector: []float64{1, 0}, Title: "A"}
	s.records["B text"] = Record{Vector: []float64{0, 1}, Title: "B"}
	s.records["C text"] = Record{Vector: []float64{0.5, 0.5}, Title: "C"}

	results, err := s.Search(context.Background(), "query")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	wantTitles := []string{"A", "C", "B"}
	wantScores := []float64{1, 0.5, 0}
	for i := range results {
		if results[i].Title != wantTitles[i] {
			t.Errorf("result %d: title %q, want %q", i, results[i].Title, wantTitles[i])
		}
		if results[i].Score != wantScores[i] {
			t.Errorf("result %d: score %v, want %v", i, results[i].Score, wantScores[i])
		}
	}
}

func TestSearch_NonIncreasingScores(t *testing.T) {
	emb := embedding.NewMockEmbedder(8)
	s := New(emb)
	ctx := context.Background()
	texts := []string{"first chunk", "second chunk", "third chunk", "fourth chunk"}
	for i, text := range texts {
		if _, err := s.Insert(ctx, models.Chunk{Text: text, Title: texts[i]}, nil); err != nil {
			t.Fatal(err)
		}
	}
	results, err := s.Search(ctx, "first chunk")
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted: score[%d]=%v > score[%d]=%v",
				i, results[i].Score, i-1, results[i-1].Score)
		}
	}
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.index.json")
	emb := embedding.NewMockEmbedder(4)
	s := New(emb)
	ctx := context.Background()
	if _, err := s.Insert(ctx, models.Chunk{Text: "chunk one", Title: "T1"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(ctx, models.Chunk{Text: "chunk two", Title: "T2"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path, emb, false)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 2 {
		t.Errorf("expected 2 records after load, got %d", loaded.Len())
	}
	rec, ok := loaded.lookup("chunk one")
	if !ok {
		t.Fatal("chunk one missing after load")
	}
	if rec.Title != "T1" || len(rec.Vector) != 4 {
		t.Errorf("record mismatch after load: %+v", rec)
	}
}

func TestSave_TupleFormat(t *testing.T) {
	// The persisted file is a JSON object mapping text -> [vector, title].
	path := filepath.Join(t.TempDir(), "fmt.index.json")
	s := New(&fixedEmbedder{vector: []float64{0.5, 1.5}})
	if _, err := s.Insert(context.Background(), models.Chunk{Text: "body", Title: "Title"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	pair, ok := raw["body"]
	if !ok || len(pair) != 2 {
		t.Fatalf("expected body -> 2-element pair, got %v", raw)
	}
	var vec []float64
	if err := json.Unmarshal(pair[0], &vec); err != nil || len(vec) != 2 {
		t.Errorf("first element should be the vector: %s", pair[0])
	}
	var title string
	if err := json.Unmarshal(pair[1], &title); err != nil || title != "Title" {
		t.Errorf("second element should be the title: %s", pair[1])
	}
}
