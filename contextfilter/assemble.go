// Package contextfilter validates and formats the context items of a turn.
//
// Information Hiding:
// - Counting rules (previews skipped, duplicates collapsed)
// - Prompt tags for each item type
// - Token estimation heuristic
package contextfilter

import "github.com/zhfg/refly-sub011/model"

type itemKey struct {
	typ model.ContextItemType
	id  string
}

// Assemble checks items against cfg and reports every violated rule.
//
// When any rule is violated the input is returned unchanged together with
// the violations, and the caller must not proceed. Otherwise the result is
// the input without previews and duplicate (type, id) pairs, in order.
func Assemble(items []model.ContextItem, cfg model.FilterConfig) ([]model.ContextItem, model.FilterErrorInfo) {
	kept := dedupe(items)

	counts := make(map[model.ContextItemType]int, len(cfg))
	for _, item := range kept {
		counts[item.Type]++
	}

	errs := model.FilterErrorInfo{}
	for typ, rule := range cfg {
		count := counts[typ]
		limit, limited := rule.EffectiveLimit()

		if rule.Required && count == 0 {
			errs[typ] = model.FilterError{Required: true, Limit: limit, CurrentCount: 0}
			continue
		}
		if limited && count > limit {
			errs[typ] = model.FilterError{Limit: limit, CurrentCount: count}
		}
	}

	if errs.HasErrors() {
		return items, errs
	}
	return kept, nil
}

// dedupe drops previews and repeated (type, id) pairs. Items without an id
// are never considered duplicates.
func dedupe(items []model.ContextItem) []model.ContextItem {
	seen := make(map[itemKey]bool, len(items))
	kept := make([]model.ContextItem, 0, len(items))
	for _, item := range items {
		if item.IsPreview {
			continue
		}
		if item.ID != "" {
			key := itemKey{item.Type, item.ID}
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		kept = append(kept, item)
	}
	return kept
}
