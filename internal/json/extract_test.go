package json

import (
	"strings"
	"testing"
)

type classification struct {
	IntentType string  `json:"intent_type"`
	Confidence float64 `json:"confidence"`
}

func TestExtractPureObject(t *testing.T) {
	got, err := Extract[classification](`{"intent_type": "rewrite_document", "confidence": 0.9}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IntentType != "rewrite_document" || got.Confidence != 0.9 {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestExtractWithCommentary(t *testing.T) {
	reply := `Let me think... {"intent_type": "other", "confidence": 0.4} Done!`
	got, err := Extract[classification](reply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IntentType != "other" {
		t.Errorf("expected other, got %q", got.IntentType)
	}
}

func TestExtractFenced(t *testing.T) {
	reply := "```json\n{\"intent_type\": \"generate_document\"}\n```"
	got, err := Extract[classification](reply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IntentType != "generate_document" {
		t.Errorf("expected generate_document, got %q", got.IntentType)
	}
}

func TestExtractArray(t *testing.T) {
	got, err := Extract[[]string](`Here you go: ["a", "b"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1] != "b" {
		t.Errorf("unexpected result %v", got)
	}
}

func TestFindNoJSON(t *testing.T) {
	_, err := Find("no json here at all")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "failed to extract") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFindEmpty(t *testing.T) {
	if _, err := Find("   "); err == nil {
		t.Fatal("expected error for blank reply")
	}
}

func TestErrorPreviewTruncated(t *testing.T) {
	_, err := Find(strings.Repeat("x", 500))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Error()) > 200 {
		t.Errorf("error message not truncated: %d bytes", len(err.Error()))
	}
}

func TestStringsObjectAndArray(t *testing.T) {
	obj, err := Strings(`{"questions": ["why?", "how?"]}`, "questions")
	if err != nil {
		t.Fatalf("object form: %v", err)
	}
	if len(obj) != 2 || obj[0] != "why?" {
		t.Errorf("unexpected object result %v", obj)
	}

	arr, err := Strings(`["one"]`, "questions")
	if err != nil {
		t.Fatalf("array form: %v", err)
	}
	if len(arr) != 1 {
		t.Errorf("unexpected array result %v", arr)
	}
}

func TestStringsMissingKey(t *testing.T) {
	if _, err := Strings(`{"other": []}`, "questions"); err == nil {
		t.Fatal("expected error for missing key")
	}
}
