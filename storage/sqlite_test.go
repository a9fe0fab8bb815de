package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/zhfg/refly-sub011/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTurnLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateTurn(ctx, "t1", "what is go?"); err != nil {
		t.Fatalf("CreateTurn failed: %v", err)
	}

	turn, err := store.GetTurn(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTurn failed: %v", err)
	}
	if turn.Query != "what is go?" || turn.FinishedAt != nil || turn.Status != "" {
		t.Errorf("unexpected open turn %+v", turn)
	}

	if err := store.FinishTurn(ctx, "t1", "commonQnA", model.StatusFailed, "model invocation failed"); err != nil {
		t.Fatalf("FinishTurn failed: %v", err)
	}
	turn, _ = store.GetTurn(ctx, "t1")
	if turn.Skill != "commonQnA" || turn.Status != model.StatusFailed || turn.Error != "model invocation failed" || turn.FinishedAt == nil {
		t.Errorf("unexpected finished turn %+v", turn)
	}
}

func TestGetTurnNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetTurn(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.FinishTurn(context.Background(), "missing", "", model.StatusOK, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEventsRoundTripInOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.CreateTurn(ctx, "t1", "q")

	stream := []model.SkillEvent{
		{Event: model.EventStart, TurnID: "t1", SpanID: "root", SkillMeta: model.SkillMeta{Name: "scheduler", Kind: model.SpanScheduler}},
		{Event: model.EventStructuredData, TurnID: "t1", SpanID: "root", SkillMeta: model.SkillMeta{Name: "scheduler", Kind: model.SpanScheduler},
			StructuredDataKey: model.KeyFilterErrorInfo, Content: `{"document":{"required":true}}`},
		{Event: model.EventEnd, TurnID: "t1", SpanID: "root", SkillMeta: model.SkillMeta{Name: "scheduler", Kind: model.SpanScheduler},
			Status: model.StatusFailed, Error: "rejected"},
	}
	for i, ev := range stream {
		if err := store.AppendEvent(ctx, i, ev); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	loaded, err := store.LoadEvents(ctx, "t1")
	if err != nil {
		t.Fatalf("LoadEvents failed: %v", err)
	}
	if len(loaded) != len(stream) {
		t.Fatalf("expected %d events, got %d", len(stream), len(loaded))
	}
	for i := range stream {
		if loaded[i] != stream[i] {
			t.Errorf("event %d: expected %+v, got %+v", i, stream[i], loaded[i])
		}
	}
}

func TestAppendEventRequiresTurn(t *testing.T) {
	store := newTestStore(t)
	err := store.AppendEvent(context.Background(), 0, model.SkillEvent{TurnID: "ghost", Event: model.EventStart})
	if err == nil {
		t.Error("expected foreign key violation")
	}
}

func TestLoadEventsUnknownTurnIsEmpty(t *testing.T) {
	store := newTestStore(t)
	loaded, err := store.LoadEvents(context.Background(), "missing")
	if err != nil {
		t.Fatalf("LoadEvents failed: %v", err)
	}
	if loaded == nil || len(loaded) != 0 {
		t.Errorf("expected empty slice, got %v", loaded)
	}
}

func TestUsageReplacedAndSorted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	store.CreateTurn(ctx, "t1", "q")

	store.SaveUsage(ctx, "t1", []model.TokenUsageItem{{Tier: "premium", ModelName: "x", InputTokens: 1}})
	err := store.SaveUsage(ctx, "t1", []model.TokenUsageItem{
		{Tier: "premium", ModelName: "gpt-4o", ModelProvider: "openai", InputTokens: 13, OutputTokens: 7},
		{Tier: "basic", ModelName: "gpt-4o-mini", ModelProvider: "openai", InputTokens: 2, OutputTokens: 1},
	})
	if err != nil {
		t.Fatalf("SaveUsage failed: %v", err)
	}

	usage, err := store.LoadUsage(ctx, "t1")
	if err != nil {
		t.Fatalf("LoadUsage failed: %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("expected 2 items, got %+v", usage)
	}
	if usage[0].Tier != "basic" || usage[1].InputTokens != 13 || usage[1].OutputTokens != 7 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestDocumentsAndResources(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetDocument(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	for _, content := range []string{"v1", "v2"} {
		if err := store.PutDocument(ctx, model.Document{ID: "d1", Title: "Draft", Content: content}); err != nil {
			t.Fatalf("PutDocument failed: %v", err)
		}
	}
	doc, err := store.GetDocument(ctx, "d1")
	if err != nil || doc.Content != "v2" {
		t.Errorf("expected replaced document, got %+v (%v)", doc, err)
	}

	if _, err := store.GetResource(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.PutResource(ctx, model.Resource{ID: "r1", Title: "Paper", Content: "abstract", URL: "https://example.com/p"}); err != nil {
		t.Fatalf("PutResource failed: %v", err)
	}
	res, err := store.GetResource(ctx, "r1")
	if err != nil || res.URL != "https://example.com/p" {
		t.Errorf("unexpected resource %+v (%v)", res, err)
	}
}

func TestOpenSqliteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "skillflow.db")
	store, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if err := store.CreateTurn(ctx, "t1", "q"); err != nil {
		t.Fatalf("CreateTurn failed: %v", err)
	}
}
