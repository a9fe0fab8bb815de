package events

import (
	"sort"
	"sync"

	"github.com/zhfg/refly-sub011/model"
)

type usageKey struct {
	tier      string
	modelName string
}

// Aggregate sums token usage per (tier, modelName).
// The first provider seen for a group is kept. Nil items are skipped.
// Output is sorted by tier, then model name.
func Aggregate(items []*model.TokenUsageItem) []model.TokenUsageItem {
	groups := make(map[usageKey]*model.TokenUsageItem)
	for _, item := range items {
		if item == nil {
			continue
		}
		key := usageKey{tier: item.Tier, modelName: item.ModelName}
		group, ok := groups[key]
		if !ok {
			copied := *item
			groups[key] = &copied
			continue
		}
		group.InputTokens += item.InputTokens
		group.OutputTokens += item.OutputTokens
	}

	result := make([]model.TokenUsageItem, 0, len(groups))
	for _, group := range groups {
		result = append(result, *group)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Tier != result[j].Tier {
			return result[i].Tier < result[j].Tier
		}
		return result[i].ModelName < result[j].ModelName
	})
	return result
}

// UsageTracker collects usage items for one turn.
type UsageTracker struct {
	mu    sync.Mutex
	items []*model.TokenUsageItem
}

// Add records an item. Nil items are ignored.
func (u *UsageTracker) Add(item *model.TokenUsageItem) {
	if item == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.items = append(u.items, item)
}

// Len returns the number of recorded invocations.
func (u *UsageTracker) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.items)
}

// Aggregate returns the summed usage recorded so far.
func (u *UsageTracker) Aggregate() []model.TokenUsageItem {
	u.mu.Lock()
	items := make([]*model.TokenUsageItem, len(u.items))
	copy(items, u.items)
	u.mu.Unlock()
	return Aggregate(items)
}
