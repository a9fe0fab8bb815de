package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zhfg/refly-sub011/llm"
	"github.com/zhfg/refly-sub011/model"
)

type fakeClassifier struct {
	reply string
	err   error
	calls int
	last  []llm.ChatMessage
}

func (f *fakeClassifier) Name() string  { return "fake" }
func (f *fakeClassifier) Model() string { return "fake-mini" }

func (f *fakeClassifier) Chat(ctx context.Context, msgs []llm.ChatMessage, format *llm.ResponseFormat) (llm.Response, error) {
	f.calls++
	f.last = msgs
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.reply, Usage: &llm.TokenUsage{InputTokens: 20, OutputTokens: 5}}, nil
}

func (f *fakeClassifier) StreamChat(ctx context.Context, msgs []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	return nil, errors.New("not used")
}

func newMatcher(f *fakeClassifier) *Matcher {
	return NewMatcher(llm.WithTier(f, llm.TierBasic), nil)
}

var (
	testDoc  = &model.Document{ID: "doc-1", Title: "Notes", Content: "# Notes"}
	testEdit = &model.EditConfig{SelectedText: "Notes", StartIndex: 2, EndIndex: 7}
)

func TestCandidatesPrecedence(t *testing.T) {
	cases := []struct {
		name      string
		doc       *model.Document
		edit      *model.EditConfig
		projectID string
		want      []model.IntentType
	}{
		{"all present", testDoc, testEdit, "p1", []model.IntentType{model.IntentEditDocument}},
		{"no edit", testDoc, nil, "p1", []model.IntentType{model.IntentRewriteDocument, model.IntentGenerateDocument, model.IntentOther}},
		{"no project", testDoc, testEdit, "", []model.IntentType{model.IntentGenerateDocument, model.IntentOther}},
		{"nothing", nil, nil, "", []model.IntentType{model.IntentGenerateDocument, model.IntentOther}},
		{"edit without doc", nil, testEdit, "p1", []model.IntentType{model.IntentGenerateDocument, model.IntentOther}},
	}
	for _, tc := range cases {
		got := Candidates(tc.doc, tc.edit, tc.projectID)
		if len(got) != len(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
				break
			}
		}
	}
}

func TestMatchEditSkipsClassifier(t *testing.T) {
	f := &fakeClassifier{reply: `{"intent_type":"other"}`}
	m := newMatcher(f)

	for _, text := range []string{"", "rewrite everything", "what is this?", "generate_document"} {
		res := m.Match(context.Background(), model.Query{Text: text}, testDoc, testEdit, "p1")
		if res.Intent != model.IntentEditDocument {
			t.Errorf("query %q: got %s, want edit_document", text, res.Intent)
		}
	}
	if f.calls != 0 {
		t.Errorf("classifier called %d times", f.calls)
	}
}

func TestMatchRewriteFromClassifier(t *testing.T) {
	f := &fakeClassifier{reply: "```json\n{\"intent_type\":\"rewrite_document\",\"confidence\":0.8,\"reasoning\":\"full revision\"}\n```"}
	res := newMatcher(f).Match(context.Background(), model.Query{Text: "rewrite it"}, testDoc, nil, "p1")

	if res.Intent != model.IntentRewriteDocument {
		t.Fatalf("got %s, want rewrite_document", res.Intent)
	}
	if res.Confidence != 0.8 || res.Reasoning != "full revision" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Usage == nil || res.Usage.InputTokens != 20 || res.Usage.Tier != "basic" {
		t.Errorf("unexpected usage %+v", res.Usage)
	}
	if !strings.Contains(f.last[1].Content, "rewrite_document, generate_document, other") {
		t.Errorf("candidates missing from prompt: %q", f.last[1].Content)
	}
}

func TestMatchOutOfDomainFallsBack(t *testing.T) {
	// rewrite is not a candidate without a project.
	for _, reply := range []string{
		`{"intent_type":"rewrite_document"}`,
		`{"intent_type":"edit_document"}`,
		`{"intent_type":"summarize"}`,
		`not json`,
	} {
		f := &fakeClassifier{reply: reply}
		res := newMatcher(f).Match(context.Background(), model.Query{Text: "q"}, nil, nil, "")
		if res.Intent != model.IntentOther {
			t.Errorf("reply %q: got %s, want other", reply, res.Intent)
		}
	}
}

func TestMatchClassifierErrorFallsBack(t *testing.T) {
	f := &fakeClassifier{err: errors.New("timeout")}
	res := newMatcher(f).Match(context.Background(), model.Query{Text: "write a guide"}, testDoc, nil, "p1")
	if res.Intent != model.IntentOther || res.Usage != nil {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestMatchNoClassifier(t *testing.T) {
	res := NewMatcher(llm.Tiered{}, nil).Match(context.Background(), model.Query{Text: "q"}, nil, nil, "")
	if res.Intent != model.IntentOther {
		t.Errorf("got %s, want other", res.Intent)
	}
}

func TestMatchWithoutProjectNeverEditsOrRewrites(t *testing.T) {
	replies := []string{
		`{"intent_type":"generate_document"}`,
		`{"intent_type":"other"}`,
		`{"intent_type":"rewrite_document"}`,
		`{"intent_type":"edit_document"}`,
	}
	for _, reply := range replies {
		res := newMatcher(&fakeClassifier{reply: reply}).Match(context.Background(), model.Query{Text: "q"}, nil, nil, "")
		if res.Intent != model.IntentGenerateDocument && res.Intent != model.IntentOther {
			t.Errorf("reply %q: got %s", reply, res.Intent)
		}
	}
}

func TestParseLabel(t *testing.T) {
	for _, label := range []string{"generate_document", "GenerateDocument", "generate-document", " generateCanvas "} {
		if got, ok := ParseLabel(label); !ok || got != model.IntentGenerateDocument {
			t.Errorf("ParseLabel(%q) = %v, %v", label, got, ok)
		}
	}
	if _, ok := ParseLabel("translate"); ok {
		t.Error("expected unknown label")
	}
}
