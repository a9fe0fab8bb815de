package contextfilter

import (
	"sort"

	"github.com/zhfg/refly-sub011/model"
)

// bytesPerToken approximates tokenizer output for mixed prose.
const bytesPerToken = 4

// EstimateTokens returns a rough token count for s.
func EstimateTokens(s string) int {
	return (len(s) + bytesPerToken - 1) / bytesPerToken
}

// Estimate returns the token estimate of items as Render would emit them.
func Estimate(items []model.ContextItem) int {
	return EstimateTokens(Render(items))
}

// FitBudget keeps the highest-scoring items whose rendered size fits budget.
//
// Kept items stay in input order. With nil scores (or a length mismatch)
// items are taken in input order until the budget runs out. A budget <= 0
// keeps everything.
func FitBudget(items []model.ContextItem, scores []float64, budget int) []model.ContextItem {
	if budget <= 0 || Estimate(items) <= budget {
		return items
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	if len(scores) == len(items) {
		sort.SliceStable(order, func(a, b int) bool {
			return scores[order[a]] > scores[order[b]]
		})
	}

	keep := make([]bool, len(items))
	used := 0
	for _, idx := range order {
		cost := Estimate(items[idx : idx+1])
		if used+cost > budget {
			continue
		}
		keep[idx] = true
		used += cost
	}

	result := make([]model.ContextItem, 0, len(items))
	for i, item := range items {
		if keep[i] {
			result = append(result, item)
		}
	}
	return result
}
