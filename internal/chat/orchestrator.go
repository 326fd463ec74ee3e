// Package chat composes grounded prompts and relays them to the completion gateway.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/token"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// ErrPromptTooLarge is returned when the user message alone exceeds the
// prompt budget left after reserving template and output space. Surfaced
// before any gateway call is made.
var ErrPromptTooLarge = errors.New("input exceeds available prompt budget")

// DefaultTemplate is the built-in prompt template. {text} receives the
// packed context chunks, {input} the user message.
const DefaultTemplate = `Answer the input using the material in the sample section.
Stay grounded in the samples; say so when they do not cover the input.
## Sample
{text}
## Input
{input}`

const (
	// DefaultMaxPromptTokens is the total prompt budget.
	DefaultMaxPromptTokens = 4096
	// DefaultReservedOutputTokens is the output allowance reserved from the budget.
	DefaultReservedOutputTokens = 250
)

// Searcher retrieves chunks ranked by similarity to a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.SimilarityResult, error)
}

// Completer relays a completed prompt to the completion gateway.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Config holds the orchestrator's prompt budget settings.
type Config struct {
	Template             string
	MaxPromptTokens      int
	ReservedOutputTokens int
}

// Orchestrator answers a message by searching the index, packing the most
// relevant chunks into the remaining token budget, and sending the
// templated prompt to the completion gateway.
type Orchestrator struct {
	searcher  Searcher
	planner   *retrieval.Planner
	completer Completer
	est       *token.Estimator
	cfg       Config
	logger    *zap.Logger // optional; when set, logs debug events
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a logger for debug output (budget, packed context, answer).
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator. Zero config fields fall back to
// defaults.
func NewOrchestrator(searcher Searcher, planner *retrieval.Planner, completer Completer, est *token.Estimator, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if cfg.MaxPromptTokens == 0 {
		cfg.MaxPromptTokens = DefaultMaxPromptTokens
	}
	if cfg.ReservedOutputTokens == 0 {
		cfg.ReservedOutputTokens = DefaultReservedOutputTokens
	}
	o := &Orchestrator{
		searcher:  searcher,
		planner:   planner,
		completer: completer,
		est:       est,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ask answers message with context retrieved from the index. sessionID is
// echoed back unchanged; no conversational state is kept across calls.
func (o *Orchestrator) Ask(ctx context.Context, message, sessionID string) (*models.AskResponse, error) {
	rest := o.cfg.MaxPromptTokens - o.cfg.ReservedOutputTokens - o.est.Count(o.cfg.Template)
	inputSize := o.est.Count(message)
	if rest < inputSize {
		return nil, fmt.Errorf("%w: input is %d tokens, %d available", ErrPromptTooLarge, inputSize, rest)
	}
	rest -= inputSize

	results, err := o.searcher.Search(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	selected := o.planner.Pack(results, rest)
	texts := make([]string, len(selected))
	for i, sel := range selected {
		texts[i] = sel.Text
	}
	if o.logger != nil {
		o.logger.Debug("context packed",
			zap.Int("candidates", len(results)),
			zap.Int("selected", len(selected)),
			zap.Int("budget", rest),
		)
	}

	prompt := strings.ReplaceAll(o.cfg.Template, "{text}", strings.Join(texts, "\n\n"))
	prompt = strings.ReplaceAll(prompt, "{input}", message)
	if o.logger != nil {
		o.logger.Debug("prompt built", zap.String("preview", utils.Truncate(prompt, 200)))
	}

	answer, err := o.completer.Complete(ctx, prompt, o.cfg.ReservedOutputTokens)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if o.logger != nil {
		o.logger.Debug("answer received", zap.Int("answer_len", len(answer)))
	}
	return &models.AskResponse{
		Message:   answer,
		SessionID: sessionID,
		Context:   texts,
	}, nil
}
