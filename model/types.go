// Package model provides domain types shared across packages.
package model

// Query is the user's natural-language input for one turn.
type Query struct {
	Text           string `json:"text"`
	Locale         string `json:"locale,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	CanvasID       string `json:"canvasId,omitempty"`
}

// ContextItemType classifies a context item.
type ContextItemType string

const (
	ContextDocument     ContextItemType = "document"
	ContextResource     ContextItemType = "resource"
	ContextHistoryItem  ContextItemType = "historyItem"
	ContextSelectedText ContextItemType = "selectedText"
)

// ContextItemTypes lists every known item type in display order.
var ContextItemTypes = []ContextItemType{
	ContextSelectedText,
	ContextDocument,
	ContextResource,
	ContextHistoryItem,
}

// Valid reports whether t is a known item type.
func (t ContextItemType) Valid() bool {
	for _, known := range ContextItemTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ContextItem references a contextual artifact supplied by the caller.
// An item with an ID and no Content is a pointer to be hydrated.
type ContextItem struct {
	ID        string          `json:"id"`
	Type      ContextItemType `json:"type"`
	Title     string          `json:"title,omitempty"`
	Content   string          `json:"content,omitempty"`
	URL       string          `json:"url,omitempty"`
	IsPreview bool            `json:"isPreview,omitempty"`
}

// Document is a canvas document.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Resource is an imported knowledge-base resource.
type Resource struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
}

// EditConfig describes the active selection inside the current document.
type EditConfig struct {
	SelectedText string `json:"selectedText"`
	StartIndex   int    `json:"startIndex"`
	EndIndex     int    `json:"endIndex"`
}

// Source is a citation attached to an answer.
type Source struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	PageContent string  `json:"pageContent"`
	Score       float64 `json:"score,omitempty"`
}

// TokenUsageItem records the tokens spent by one model invocation.
type TokenUsageItem struct {
	Tier          string `json:"tier"`
	ModelName     string `json:"modelName"`
	ModelProvider string `json:"modelProvider"`
	InputTokens   int    `json:"inputTokens"`
	OutputTokens  int    `json:"outputTokens"`
}
