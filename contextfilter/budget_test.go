package contextfilter

import (
	"strings"
	"testing"

	"github.com/zhfg/refly-sub011/model"
)

func sized(id string, n int) model.ContextItem {
	return model.ContextItem{ID: id, Type: model.ContextDocument, Content: strings.Repeat("a", n)}
}

func TestEstimateTokens(t *testing.T) {
	if EstimateTokens("") != 0 || EstimateTokens("abcd") != 1 || EstimateTokens("abcde") != 2 {
		t.Error("unexpected estimates")
	}
}

func TestFitBudgetUnderBudget(t *testing.T) {
	items := []model.ContextItem{sized("a", 10)}
	if got := FitBudget(items, nil, 1000); len(got) != 1 {
		t.Errorf("expected all items kept, got %d", len(got))
	}
}

func TestFitBudgetPrefersHighScores(t *testing.T) {
	items := []model.ContextItem{sized("a", 400), sized("b", 400), sized("c", 400)}
	one := Estimate(items[:1])

	got := FitBudget(items, []float64{0.1, 0.9, 0.5}, one*2)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("expected [b c] in input order, got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestFitBudgetNilScoresKeepsPrefix(t *testing.T) {
	items := []model.ContextItem{sized("a", 400), sized("b", 400), sized("c", 400)}
	one := Estimate(items[:1])

	got := FitBudget(items, nil, one)
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("expected [a], got %+v", got)
	}
}

func TestFitBudgetZeroKeepsAll(t *testing.T) {
	items := []model.ContextItem{sized("a", 4000)}
	if got := FitBudget(items, nil, 0); len(got) != 1 {
		t.Errorf("expected no trimming, got %d", len(got))
	}
}
