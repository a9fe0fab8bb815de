package contextfilter

import (
	"fmt"
	"html"
	"strings"

	"github.com/zhfg/refly-sub011/model"
)

var tags = map[model.ContextItemType]string{
	model.ContextSelectedText: "UserSelectedContent",
	model.ContextDocument:     "KnowledgeBaseDocument",
	model.ContextResource:     "KnowledgeBaseResource",
	model.ContextHistoryItem:  "ChatHistoryItem",
}

// Render formats items into a <Context> block. Items are grouped by type in
// model.ContextItemTypes order. Returns "" for no items.
func Render(items []model.ContextItem) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<Context>\n")
	for _, typ := range model.ContextItemTypes {
		for _, item := range items {
			if item.Type != typ {
				continue
			}
			writeItem(&b, tags[typ], item)
		}
	}
	b.WriteString("</Context>")
	return b.String()
}

func writeItem(b *strings.Builder, tag string, item model.ContextItem) {
	fmt.Fprintf(b, "<%s entityId=%q title=%q", tag, html.EscapeString(item.ID), html.EscapeString(item.Title))
	if item.URL != "" {
		fmt.Fprintf(b, " url=%q", html.EscapeString(item.URL))
	}
	fmt.Fprintf(b, ">\n%s\n</%s>\n", item.Content, tag)
}
