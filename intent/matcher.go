// Package intent decides what a turn should do with the canvas.
//
// Matching runs in two stages. Structural checks on the request narrow the
// candidate set; a model call disambiguates only when more than one
// candidate remains.
package intent

import (
	"context"
	"strings"

	"github.com/zhfg/refly-sub011/internal/json"
	"github.com/zhfg/refly-sub011/internal/logging"
	"github.com/zhfg/refly-sub011/llm"
	"github.com/zhfg/refly-sub011/model"
)

// Result is the outcome of a match.
type Result struct {
	Intent     model.IntentType
	Confidence float64
	Reasoning  string
	// Usage is the classifier's token usage, nil when no model was called.
	Usage *model.TokenUsageItem
}

// Candidates returns the intents still possible for the request, most
// specific first.
func Candidates(doc *model.Document, edit *model.EditConfig, projectID string) []model.IntentType {
	switch {
	case projectID != "" && doc != nil && edit != nil:
		return []model.IntentType{model.IntentEditDocument}
	case projectID != "" && doc != nil:
		return []model.IntentType{model.IntentRewriteDocument, model.IntentGenerateDocument, model.IntentOther}
	default:
		return []model.IntentType{model.IntentGenerateDocument, model.IntentOther}
	}
}

// Matcher classifies turns.
type Matcher struct {
	classifier llm.Tiered
	logger     logging.Logger
}

// NewMatcher creates a matcher. A zero classifier makes every ambiguous
// request resolve to IntentOther.
func NewMatcher(classifier llm.Tiered, logger logging.Logger) *Matcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Matcher{classifier: classifier, logger: logger}
}

type classification struct {
	IntentType string  `json:"intent_type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Match decides the intent of a turn. It never fails: classifier errors
// and labels outside the candidate set resolve to IntentOther.
func (m *Matcher) Match(ctx context.Context, q model.Query, doc *model.Document, edit *model.EditConfig, projectID string) Result {
	candidates := Candidates(doc, edit, projectID)
	if len(candidates) == 1 {
		return Result{Intent: candidates[0], Confidence: 1, Reasoning: "determined by request structure"}
	}

	fallback := Result{Intent: model.IntentOther}
	if !m.classifier.Valid() {
		return fallback
	}

	log := m.logger.WithField("model", m.classifier.Model())
	resp, err := m.classifier.Chat(ctx, []llm.ChatMessage{
		llm.SystemMessage(classifierPrompt),
		llm.UserMessage(buildUserPrompt(q, doc, projectID, candidates)),
	}, llm.NewJSONObjectFormat())
	if err != nil {
		log.WithError(err).Warn("intent classifier failed, falling back to other")
		return fallback
	}
	fallback.Usage = m.classifier.UsageItem(resp.Usage)

	parsed, err := json.Extract[classification](resp.Content)
	if err != nil {
		log.WithError(err).Warn("intent classifier returned invalid JSON")
		return fallback
	}

	intent, ok := ParseLabel(parsed.IntentType)
	if !ok || !contains(candidates, intent) {
		log.WithField("label", parsed.IntentType).Warn("intent label outside candidate set")
		return fallback
	}

	return Result{
		Intent:     intent,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
		Usage:      fallback.Usage,
	}
}

var labels = map[string]model.IntentType{
	"editdocument":     model.IntentEditDocument,
	"updatecanvas":     model.IntentEditDocument,
	"rewritedocument":  model.IntentRewriteDocument,
	"rewritecanvas":    model.IntentRewriteDocument,
	"generatedocument": model.IntentGenerateDocument,
	"generatecanvas":   model.IntentGenerateDocument,
	"other":            model.IntentOther,
}

// ParseLabel maps a classifier label to an intent. Case and separators
// are ignored, so "rewrite_document", "RewriteDocument" and
// "rewrite-document" are equivalent.
func ParseLabel(label string) (model.IntentType, bool) {
	normalized := strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(label)))
	intent, ok := labels[normalized]
	return intent, ok
}

func contains(candidates []model.IntentType, intent model.IntentType) bool {
	for _, c := range candidates {
		if c == intent {
			return true
		}
	}
	return false
}
