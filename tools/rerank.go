package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zhfg/refly-sub011/events"
	"github.com/zhfg/refly-sub011/model"
)

const rrfK = 60 // standard Reciprocal Rank Fusion constant

// Reranker rescores sources. When a cross-encoder client is configured it
// delegates to the model; otherwise, or when the model call fails, it falls
// back to Reciprocal Rank Fusion of search score and keyword overlap.
type Reranker struct {
	client RerankClient // nil = keyword fallback
	exec   *Executor
}

// NewReranker creates a Reranker. Pass a nil client to use the keyword fallback.
func NewReranker(client RerankClient, exec *Executor) *Reranker {
	return &Reranker{client: client, exec: exec}
}

// Rerank returns sources sorted by descending relevance with Score set.
func (r *Reranker) Rerank(ctx context.Context, parent *events.Span, query string, sources []model.Source) []model.Source {
	if len(sources) < 2 {
		return sources
	}
	if r != nil && r.client != nil {
		if out := r.crossEncoderRerank(ctx, parent, query, sources); out != nil {
			return out
		}
		if parent != nil {
			parent.Log("rerank unavailable, using keyword fallback")
		}
	}
	return rrfRerank(query, sources)
}

func (r *Reranker) crossEncoderRerank(ctx context.Context, parent *events.Span, query string, sources []model.Source) []model.Source {
	documents := make([]string, len(sources))
	for i, s := range sources {
		documents[i] = s.Title + "\n" + s.PageContent
	}

	results, ok := Invoke(ctx, r.exec, parent, Call[[]RerankResult]{
		Tool:  ToolRerank,
		Input: fmt.Sprintf("%d document(s)", len(documents)),
		Run: func(ctx context.Context) ([]RerankResult, error) {
			return r.client.Rerank(ctx, query, documents)
		},
		Describe: func(res []RerankResult) string {
			return fmt.Sprintf("%d score(s)", len(res))
		},
	})
	if !ok || len(results) == 0 {
		return nil
	}

	out := make([]model.Source, 0, len(results))
	seen := make(map[int]bool, len(results))
	for _, rr := range results {
		if rr.Index < 0 || rr.Index >= len(sources) || seen[rr.Index] {
			if parent != nil {
				parent.Log("rerank returned invalid index %d", rr.Index)
			}
			return nil
		}
		seen[rr.Index] = true
		s := sources[rr.Index]
		s.Score = rr.RelevanceScore
		out = append(out, s)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	return out
}

// rrfRerank fuses the backend score ranking with a keyword overlap ranking.
// score(d) = 1/(k + scoreRank) + 1/(k + keywordRank), k=60.
func rrfRerank(query string, sources []model.Source) []model.Source {
	queryTerms := uniqueLowerTerms(query)
	if len(queryTerms) == 0 {
		return sources
	}

	n := len(sources)
	kwScores := make([]float64, n)
	for i, s := range sources {
		kwScores[i] = keywordOverlap(queryTerms, s.Title+" "+s.PageContent)
	}

	scoreRank := rankDescending(n, func(i int) float64 { return sources[i].Score })
	kwRank := rankDescending(n, func(i int) float64 { return kwScores[i] })

	out := make([]model.Source, n)
	copy(out, sources)
	for i := range out {
		out[i].Score = 1.0/float64(rrfK+scoreRank[i]) + 1.0/float64(rrfK+kwRank[i])
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	return out
}

// rankDescending returns the 1-based rank of each index by descending
// value. Equal values share a rank, so a signal that is flat across all
// sources does not affect the fused order.
func rankDescending(n int, value func(int) float64) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return value(order[a]) > value(order[b])
	})
	rank := make([]int, n)
	for pos, idx := range order {
		if pos > 0 && value(idx) == value(order[pos-1]) {
			rank[idx] = rank[order[pos-1]]
			continue
		}
		rank[idx] = pos + 1
	}
	return rank
}

// keywordOverlap returns the fraction of query terms found in the text.
func keywordOverlap(queryTerms map[string]struct{}, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for term := range queryTerms {
		if strings.Contains(lower, term) {
			found++
		}
	}
	return float64(found) / float64(len(queryTerms))
}

func uniqueLowerTerms(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	terms := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) >= 3 {
			terms[w] = struct{}{}
		}
	}
	return terms
}

// CapSources drops duplicate URLs and returns at most limit sources.
func CapSources(sources []model.Source, limit int) []model.Source {
	seen := make(map[string]bool, len(sources))
	out := make([]model.Source, 0, len(sources))
	for _, s := range sources {
		if limit > 0 && len(out) == limit {
			break
		}
		if seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	return out
}
