package intent

import (
	"fmt"
	"strings"

	"github.com/zhfg/refly-sub011/model"
)

const classifierPrompt = `# Canvas Intent Matcher

## Role
You detect what the user wants to do with the canvas document.

## Intent Types
- generate_document: create new content from scratch, or the query does not reference existing content.
- rewrite_document: restructure or fully revise the current document.
- other: questions, explanations, clarification requests, no modification intent.

## Rules
- Only answer with one of the allowed intents listed in the request.
- Consider action verbs (create, write, rewrite, restructure) and whether the query references the current document.

## Output Format
Respond with a single JSON object:
{
  "intent_type": "one of the allowed intents",
  "confidence": "number between 0 and 1",
  "reasoning": "brief explanation"
}`

// previewRunes bounds the document preview sent to the classifier.
const previewRunes = 1000

func buildUserPrompt(q model.Query, doc *model.Document, projectID string, candidates []model.IntentType) string {
	labels := make([]string, len(candidates))
	for i, c := range candidates {
		labels[i] = c.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Allowed intents: %s\n\n", strings.Join(labels, ", "))
	if projectID != "" {
		fmt.Fprintf(&b, "<projectMeta id=%q />\n", projectID)
	}
	if doc != nil {
		fmt.Fprintf(&b, "<canvasMeta id=%q title=%q isCurrentContext=\"true\">\n%s\n</canvasMeta>\n",
			doc.ID, doc.Title, truncateRunes(doc.Content, previewRunes))
	} else {
		b.WriteString("<canvasMeta null />\n")
	}
	fmt.Fprintf(&b, "\nUser: %q", q.Text)
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
