package model

// MaxLimit caps any per-type item limit.
const MaxLimit = 50

// FilterRule constrains how many items of one type a turn may carry.
// A zero Limit means no limit. Disabled allows no items at all.
type FilterRule struct {
	Required bool `json:"required,omitempty" yaml:"required"`
	Limit    int  `json:"limit,omitempty" yaml:"limit"`
	Disabled bool `json:"disabled,omitempty" yaml:"disabled"`
}

// EffectiveLimit returns the enforced limit and whether one applies.
func (r FilterRule) EffectiveLimit() (int, bool) {
	if r.Disabled {
		return 0, true
	}
	if r.Limit <= 0 {
		return 0, false
	}
	if r.Limit > MaxLimit {
		return MaxLimit, true
	}
	return r.Limit, true
}

// FilterConfig maps item types to their rules.
type FilterConfig map[ContextItemType]FilterRule

// FilterError describes one violated rule.
type FilterError struct {
	Required     bool `json:"required,omitempty"`
	Limit        int  `json:"limit"`
	CurrentCount int  `json:"currentCount"`
}

// FilterErrorInfo maps item types to their violations.
// It is rendered by clients; it is not a Go error.
type FilterErrorInfo map[ContextItemType]FilterError

// HasErrors reports whether any rule was violated.
func (f FilterErrorInfo) HasErrors() bool {
	return len(f) > 0
}
