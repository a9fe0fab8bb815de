// Scheduler builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package scheduler

import (
	"errors"

	"github.com/zhfg/refly-sub011/events"
	"github.com/zhfg/refly-sub011/intent"
	"github.com/zhfg/refly-sub011/internal/logging"
	"github.com/zhfg/refly-sub011/llm"
	"github.com/zhfg/refly-sub011/tools"
)

// Options tunes a scheduler.
type Options struct {
	// ContextBudget is the token budget for rendered context items. Zero
	// selects the default; negative disables budgeting.
	ContextBudget int
	// MaxSources caps the citations passed to the model and emitted.
	MaxSources int
	// MaxRelatedQuestions caps the follow-up questions of QA turns.
	MaxRelatedQuestions int
	// EventBuffer is the capacity of each turn channel.
	EventBuffer int
}

// DefaultOptions returns the default scheduler options.
func DefaultOptions() Options {
	return Options{
		ContextBudget:       6000,
		MaxSources:          8,
		MaxRelatedQuestions: 3,
		EventBuffer:         events.DefaultBuffer,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ContextBudget == 0 {
		o.ContextBudget = def.ContextBudget
	}
	if o.MaxSources <= 0 {
		o.MaxSources = def.MaxSources
	}
	if o.MaxRelatedQuestions <= 0 {
		o.MaxRelatedQuestions = def.MaxRelatedQuestions
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = def.EventBuffer
	}
	return o
}

// Builder provides fluent configuration for creating schedulers.
// Usage: scheduler.NewBuilder(chat).Search(ws).Build()
type Builder struct {
	chat       llm.Tiered
	light      llm.Tiered
	search     *tools.WebSearch
	reader     *tools.URLReader
	embeddings *tools.Embeddings
	reranker   *tools.Reranker
	fetcher    Fetcher
	logger     logging.Logger
	options    Options
}

// NewBuilder creates a builder around the main chat model.
func NewBuilder(chat llm.Tiered) *Builder {
	return &Builder{chat: chat, options: DefaultOptions()}
}

// Light sets the model used for intent classification and related questions.
// Defaults to the main model.
func (b *Builder) Light(light llm.Tiered) *Builder {
	b.light = light
	return b
}

// Search enables web search for skills that use it.
func (b *Builder) Search(ws *tools.WebSearch) *Builder {
	b.search = ws
	return b
}

// Reader enables reading links found in the query.
func (b *Builder) Reader(r *tools.URLReader) *Builder {
	b.reader = r
	return b
}

// Embeddings enables semantic context budgeting.
func (b *Builder) Embeddings(e *tools.Embeddings) *Builder {
	b.embeddings = e
	return b
}

// Reranker overrides the source reranker. Defaults to keyword fusion.
func (b *Builder) Reranker(r *tools.Reranker) *Builder {
	b.reranker = r
	return b
}

// Fetcher sets the collaborator that hydrates content pointers.
func (b *Builder) Fetcher(f Fetcher) *Builder {
	b.fetcher = f
	return b
}

// Logger sets the server-side logger.
func (b *Builder) Logger(l logging.Logger) *Builder {
	b.logger = l
	return b
}

// Options replaces the tuning options.
func (b *Builder) Options(o Options) *Builder {
	b.options = o
	return b
}

// Build creates the scheduler.
func (b *Builder) Build() (*Scheduler, error) {
	if !b.chat.Valid() {
		return nil, errors.New("scheduler: chat model is required")
	}

	light := b.light
	if !light.Valid() {
		light = b.chat
	}
	logger := b.logger
	if logger == nil {
		logger = logging.Discard()
	}
	reranker := b.reranker
	if reranker == nil {
		reranker = tools.NewReranker(nil, nil)
	}

	return &Scheduler{
		chat:       b.chat,
		light:      light,
		matcher:    intent.NewMatcher(light, logger),
		search:     b.search,
		reader:     b.reader,
		embeddings: b.embeddings,
		reranker:   reranker,
		fetcher:    b.fetcher,
		logger:     logger,
		opts:       b.options.withDefaults(),
	}, nil
}
