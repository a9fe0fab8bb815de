package scheduler

import (
	"fmt"
	"strings"

	"github.com/zhfg/refly-sub011/contextfilter"
	"github.com/zhfg/refly-sub011/llm"
	"github.com/zhfg/refly-sub011/model"
	"github.com/zhfg/refly-sub011/tools"
)

// skill is one pipeline of the closed skill set.
type skill struct {
	kind model.SkillKind
	// webSearch enables the search adapter during tool invocation.
	webSearch bool
	// needsDocument means the skill cannot run without a current document.
	needsDocument bool
	// relatedQuestions enables follow-up question generation.
	relatedQuestions bool
	prompt           func(t *turn) []llm.ChatMessage
}

// skills maps every SkillKind to its pipeline.
var skills = map[model.SkillKind]*skill{
	model.SkillQA: {
		kind:             model.SkillQA,
		webSearch:        true,
		relatedQuestions: true,
		prompt:           qaPrompt,
	},
	model.SkillGenerate: {
		kind:      model.SkillGenerate,
		webSearch: true,
		prompt:    generatePrompt,
	},
	model.SkillRewrite: {
		kind:          model.SkillRewrite,
		needsDocument: true,
		prompt:        rewritePrompt,
	},
	model.SkillEdit: {
		kind:          model.SkillEdit,
		needsDocument: true,
		prompt:        editPrompt,
	},
}

// SkillInfo describes a skill for listings.
type SkillInfo struct {
	Name  string   `json:"name"`
	Tools []string `json:"tools"`
}

// Skills lists every skill with the tools it may call.
func Skills() []SkillInfo {
	infos := make([]SkillInfo, 0, len(skills))
	for _, kind := range model.SkillKinds() {
		sk := skills[kind]
		var used []string
		if sk.webSearch {
			used = append(used, tools.ToolWebSearch, tools.ToolRerank)
		}
		used = append(used, tools.ToolURLReader, tools.ToolEmbeddings)
		infos = append(infos, SkillInfo{Name: kind.String(), Tools: used})
	}
	return infos
}

func localeInstruction(q model.Query) string {
	if q.Locale == "" {
		return ""
	}
	return fmt.Sprintf("\nRespond in the language of locale %q.", q.Locale)
}

func sourcesBlock(sources []model.Source) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<Sources>\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "<Source index=\"%d\" url=%q title=%q>\n%s\n</Source>\n", i+1, s.URL, s.Title, s.PageContent)
	}
	b.WriteString("</Sources>")
	return b.String()
}

// contextBlock joins the rendered context and sources.
func (t *turn) contextBlock() string {
	parts := make([]string, 0, 2)
	if rendered := contextfilter.Render(t.items); rendered != "" {
		parts = append(parts, rendered)
	}
	if src := sourcesBlock(t.sources); src != "" {
		parts = append(parts, src)
	}
	return strings.Join(parts, "\n\n")
}

func withContext(t *turn, instruction string) string {
	block := t.contextBlock()
	if block == "" {
		return instruction
	}
	return block + "\n\n" + instruction
}

func qaPrompt(t *turn) []llm.ChatMessage {
	system := "You are a knowledgeable assistant. Answer the user's question using the provided context and sources when relevant. " +
		"Cite sources inline as [n] using their index. If the context does not contain the answer, say so and answer from general knowledge." +
		localeInstruction(t.req.Query)
	return []llm.ChatMessage{
		llm.SystemMessage(system),
		llm.UserMessage(withContext(t, "Question: "+t.req.Query.Text)),
	}
}

func generatePrompt(t *turn) []llm.ChatMessage {
	system := "You write complete, well-structured markdown documents. Start with a single H1 title, use headings and lists where they help, " +
		"and cite sources inline as [n] when you use them. Output only the document." +
		localeInstruction(t.req.Query)
	return []llm.ChatMessage{
		llm.SystemMessage(system),
		llm.UserMessage(withContext(t, "Write a document for this request: "+t.req.Query.Text)),
	}
}

func rewritePrompt(t *turn) []llm.ChatMessage {
	doc := t.req.CurrentDocument
	system := "You rewrite documents. Keep the facts of the original unless the user asks otherwise, follow the user's instructions " +
		"for tone and structure, and output only the full rewritten markdown document." +
		localeInstruction(t.req.Query)
	user := fmt.Sprintf("<CurrentDocument title=%q>\n%s\n</CurrentDocument>\n\nInstructions: %s", doc.Title, doc.Content, t.req.Query.Text)
	return []llm.ChatMessage{
		llm.SystemMessage(system),
		llm.UserMessage(withContext(t, user)),
	}
}

func editPrompt(t *turn) []llm.ChatMessage {
	doc := t.req.CurrentDocument
	system := "You edit a selected range of a document. Output only the replacement text for the selection, with no commentary. " +
		"The replacement must read naturally with the surrounding text." +
		localeInstruction(t.req.Query)

	var user strings.Builder
	fmt.Fprintf(&user, "<CurrentDocument title=%q>\n%s\n</CurrentDocument>\n\n", doc.Title, doc.Content)
	if edit := t.req.EditConfig; edit != nil {
		fmt.Fprintf(&user, "<Selection start=\"%d\" end=\"%d\">\n%s\n</Selection>\n\n", edit.StartIndex, edit.EndIndex, edit.SelectedText)
	}
	fmt.Fprintf(&user, "Instructions: %s", t.req.Query.Text)
	return []llm.ChatMessage{
		llm.SystemMessage(system),
		llm.UserMessage(withContext(t, user.String())),
	}
}
