package llm

import "github.com/zhfg/refly-sub011/model"

// Tier buckets models by cost and capability for usage accounting.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// Tiered pairs a provider with the tier its usage is billed under.
type Tiered struct {
	Provider
	Tier Tier
}

// WithTier wraps a provider with a tier.
func WithTier(p Provider, tier Tier) Tiered {
	return Tiered{Provider: p, Tier: tier}
}

// Valid reports whether a provider is set.
func (t Tiered) Valid() bool {
	return t.Provider != nil
}

// UsageItem converts a provider usage report into a usage record.
// It returns nil when usage is nil.
func (t Tiered) UsageItem(usage *TokenUsage) *model.TokenUsageItem {
	if usage == nil || t.Provider == nil {
		return nil
	}
	return &model.TokenUsageItem{
		Tier:          string(t.Tier),
		ModelName:     t.Model(),
		ModelProvider: t.Name(),
		InputTokens:   int(usage.InputTokens),
		OutputTokens:  int(usage.OutputTokens),
	}
}
