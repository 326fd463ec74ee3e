package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/token"
)

type fakeSearcher struct {
	results []models.SimilarityResult
	calls   int
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]models.SimilarityResult, error) {
	f.calls++
	return f.results, nil
}

type fakeCompleter struct {
	answer    string
	calls     int
	gotPrompt string
	gotMax    int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	f.gotPrompt = prompt
	f.gotMax = maxTokens
	return f.answer, nil
}

func newTestOrchestrator(t *testing.T, searcher Searcher, completer Completer, cfg Config) *Orchestrator {
	t.Helper()
	est, err := token.NewEstimator()
	if err != nil {
		t.Fatal(err)
	}
	return NewOrchestrator(searcher, retrieval.NewPlanner(est), completer, est, cfg)
}

func TestAsk(t *testing.T) {
	searcher := &fakeSearcher{results: []models.SimilarityResult{
		{Score: 0.9, Text: "most relevant chunk", Title: "A"},
		{Score: 0.5, Text: "second chunk", Title: "B"},
	}}
	completer := &fakeCompleter{answer: "the answer"}
	o := newTestOrchestrator(t, searcher, completer, Config{})

	resp, err := o.Ask(context.Background(), "what is this?", "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message != "the answer" {
		t.Errorf("message: got %q", resp.Message)
	}
	if resp.SessionID != "sess-1" {
		t.Errorf("session should be echoed, got %q", resp.SessionID)
	}
	if len(resp.Context) != 2 || resp.Context[0] != "most relevant chunk" {
		t.Errorf("context: got %v", resp.Context)
	}
	if !strings.Contains(completer.gotPrompt, "most relevant chunk\n\nsecond chunk") {
		t.Errorf("chunks should be joined with a blank line:\n%s", completer.gotPrompt)
	}
	if !strings.Contains(completer.gotPrompt, "what is this?") {
		t.Error("user message missing from prompt")
	}
	if strings.Contains(completer.gotPrompt, "{text}") || strings.Contains(completer.gotPrompt, "{input}") {
		t.Error("placeholders left in prompt")
	}
	if completer.gotMax != DefaultReservedOutputTokens {
		t.Errorf("max tokens: got %d", completer.gotMax)
	}
}

func TestAsk_PromptTooLarge(t *testing.T) {
	searcher := &fakeSearcher{}
	completer := &fakeCompleter{}
	// Template plus reserved output leave no room for the message.
	o := newTestOrchestrator(t, searcher, completer, Config{
		MaxPromptTokens:      60,
		ReservedOutputTokens: 50,
	})

	_, err := o.Ask(context.Background(), "a message that certainly costs more than the few remaining tokens of this tiny budget", "")
	if !errors.Is(err, ErrPromptTooLarge) {
		t.Fatalf("expected ErrPromptTooLarge, got %v", err)
	}
	if searcher.calls != 0 || completer.calls != 0 {
		t.Errorf("guard must fire before any gateway call (search=%d complete=%d)",
			searcher.calls, completer.calls)
	}
}

func TestAsk_NoResults(t *testing.T) {
	searcher := &fakeSearcher{}
	completer := &fakeCompleter{answer: "no idea"}
	o := newTestOrchestrator(t, searcher, completer, Config{})

	resp, err := o.Ask(context.Background(), "anything indexed?", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Context) != 0 {
		t.Errorf("context should be empty, got %v", resp.Context)
	}
	if completer.calls != 1 {
		t.Error("completion should still run with empty context")
	}
}

func TestAsk_CustomTemplate(t *testing.T) {
	searcher := &fakeSearcher{results: []models.SimilarityResult{
		{Score: 1, Text: "ctx", Title: "T"},
	}}
	completer := &fakeCompleter{answer: "ok"}
	o := newTestOrchestrator(t, searcher, completer, Config{
		Template: "CTX: {text} Q: {input}",
	})

	if _, err := o.Ask(context.Background(), "question", ""); err != nil {
		t.Fatal(err)
	}
	if completer.gotPrompt != "CTX: ctx Q: question" {
		t.Errorf("prompt: got %q", completer.gotPrompt)
	}
}
