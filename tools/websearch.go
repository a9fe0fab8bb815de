package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhfg/refly-sub011/events"
	"github.com/zhfg/refly-sub011/model"
)

// Search limits.
const (
	DefaultSearchLimit = 8
	MaxSearchLimit     = 20
	// DefaultContentRunes bounds the page content kept per result.
	DefaultContentRunes = 4000
)

// SearchProvider is a web search backend.
type SearchProvider interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// SearchResult is a single backend result.
type SearchResult struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

// SearchOptions controls search behavior across providers.
type SearchOptions struct {
	Limit int
	Depth string
}

// SearchConfig configures the web search adapter.
type SearchConfig struct {
	Limit        int
	Depth        string
	ContentRunes int
}

// WebSearch turns search backend results into sources.
type WebSearch struct {
	provider SearchProvider
	exec     *Executor
	cfg      SearchConfig
}

// NewWebSearch creates a web search adapter. Limits outside (0, 20] fall
// back to the default or the maximum.
func NewWebSearch(provider SearchProvider, exec *Executor, cfg SearchConfig) *WebSearch {
	switch {
	case cfg.Limit <= 0:
		cfg.Limit = DefaultSearchLimit
	case cfg.Limit > MaxSearchLimit:
		cfg.Limit = MaxSearchLimit
	}
	if cfg.ContentRunes <= 0 {
		cfg.ContentRunes = DefaultContentRunes
	}
	return &WebSearch{provider: provider, exec: exec, cfg: cfg}
}

// Search runs query and returns at most the configured number of sources.
// It returns nil on failure.
func (w *WebSearch) Search(ctx context.Context, parent *events.Span, query string) []model.Source {
	query = strings.TrimSpace(query)
	if w == nil || w.provider == nil || query == "" {
		return nil
	}

	results, ok := Invoke(ctx, w.exec, parent, Call[[]SearchResult]{
		Tool:  ToolWebSearch,
		Input: fmt.Sprintf("query=%q", query),
		Run: func(ctx context.Context) ([]SearchResult, error) {
			return w.provider.Search(ctx, query, SearchOptions{Limit: w.cfg.Limit, Depth: w.cfg.Depth})
		},
		Describe: func(r []SearchResult) string {
			return fmt.Sprintf("%d result(s)", len(r))
		},
	})
	if !ok {
		return nil
	}

	sources := make([]model.Source, 0, len(results))
	for _, r := range results {
		if len(sources) == w.cfg.Limit {
			break
		}
		if r.URL == "" {
			continue
		}
		sources = append(sources, model.Source{
			URL:         r.URL,
			Title:       r.Title,
			PageContent: truncateRunes(r.Content, w.cfg.ContentRunes),
			Score:       r.Score,
		})
	}
	return sources
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
