package storage

import (
	"context"
	"testing"

	"github.com/zhfg/refly-sub011/model"
)

func scriptedStream(turnID string, withEnd bool) <-chan model.SkillEvent {
	root := model.SkillMeta{Name: "scheduler", Kind: model.SpanScheduler}
	skill := model.SkillMeta{Name: "commonQnA", Kind: model.SpanSkill, ParentSpanID: "root"}
	evs := []model.SkillEvent{
		{Event: model.EventStart, SpanID: "root", SkillMeta: root},
		{Event: model.EventStart, SpanID: "skill", SkillMeta: skill},
		{Event: model.EventStream, SpanID: "skill", SkillMeta: skill, Content: "hi"},
		{Event: model.EventEnd, SpanID: "skill", SkillMeta: skill, Status: model.StatusOK},
		{Event: model.EventStructuredData, SpanID: "root", SkillMeta: root, StructuredDataKey: model.KeyTokenUsage,
			Content: `[{"tier":"premium","modelName":"gpt-4o","modelProvider":"openai","inputTokens":13,"outputTokens":7}]`},
	}
	if withEnd {
		evs = append(evs, model.SkillEvent{Event: model.EventEnd, SpanID: "root", SkillMeta: root, Status: model.StatusOK})
	}

	ch := make(chan model.SkillEvent, len(evs))
	for _, ev := range evs {
		ev.TurnID = turnID
		ch <- ev
	}
	close(ch)
	return ch
}

func TestRecorderPersistsAndForwards(t *testing.T) {
	store := newTestStore(t)
	rec := NewRecorder(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // recording ignores client cancellation

	var forwarded int
	for range rec.Record(ctx, "t1", "hello", scriptedStream("t1", true)) {
		forwarded++
	}
	if forwarded != 6 {
		t.Errorf("expected 6 forwarded events, got %d", forwarded)
	}

	bg := context.Background()
	stored, err := store.LoadEvents(bg, "t1")
	if err != nil || len(stored) != 6 {
		t.Fatalf("expected 6 stored events, got %d (%v)", len(stored), err)
	}
	turn, err := store.GetTurn(bg, "t1")
	if err != nil {
		t.Fatalf("GetTurn failed: %v", err)
	}
	if turn.Status != model.StatusOK || turn.Skill != "commonQnA" || turn.Query != "hello" {
		t.Errorf("unexpected turn %+v", turn)
	}
	usage, _ := store.LoadUsage(bg, "t1")
	if len(usage) != 1 || usage[0].InputTokens != 13 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestRecorderMarksTruncatedStreamFailed(t *testing.T) {
	store := newTestStore(t)
	rec := NewRecorder(store, nil)

	for range rec.Record(context.Background(), "t2", "q", scriptedStream("t2", false)) {
	}

	turn, err := store.GetTurn(context.Background(), "t2")
	if err != nil {
		t.Fatalf("GetTurn failed: %v", err)
	}
	if turn.Status != model.StatusFailed || turn.Error == "" {
		t.Errorf("expected failed turn, got %+v", turn)
	}
}

func TestRecorderForwardsWhenTurnCannotBeCreated(t *testing.T) {
	store := newTestStore(t)
	rec := NewRecorder(store, nil)
	ctx := context.Background()
	store.CreateTurn(ctx, "dup", "first")

	var forwarded int
	for range rec.Record(ctx, "dup", "second", scriptedStream("dup", true)) {
		forwarded++
	}
	if forwarded != 6 {
		t.Errorf("expected stream to pass through, got %d events", forwarded)
	}
}
