package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zhfg/refly-sub011/events"
	"github.com/zhfg/refly-sub011/model"
)

// runUnderRoot runs fn below a root span and returns the full stream.
func runUnderRoot(t *testing.T, fn func(root *events.Span)) []model.SkillEvent {
	t.Helper()
	em := events.NewEmitter("turn-1", 512)
	root, err := em.Root(model.SkillMeta{Name: "test", Kind: model.SpanScheduler})
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	fn(root)
	root.End()
	em.Close()
	stream := events.Collect(em.Events())
	if err := events.Verify(stream); err != nil {
		t.Fatalf("invalid stream: %v", err)
	}
	return stream
}

func toolEvents(stream []model.SkillEvent, tool string) []model.SkillEvent {
	var out []model.SkillEvent
	for _, ev := range stream {
		if ev.SkillMeta.Name == tool && ev.SkillMeta.Kind == model.SpanTool {
			out = append(out, ev)
		}
	}
	return out
}

func TestInvokeLogsBeforeAndAfter(t *testing.T) {
	var rootID string
	stream := runUnderRoot(t, func(root *events.Span) {
		rootID = root.ID()
		got, ok := Invoke(context.Background(), fastExecutor(0), root, Call[int]{
			Tool:     "adder",
			Input:    "1+1",
			Run:      func(context.Context) (int, error) { return 2, nil },
			Describe: func(n int) string { return "sum ready" },
		})
		if !ok || got != 2 {
			t.Errorf("got %d, %v", got, ok)
		}
	})

	evs := toolEvents(stream, "adder")
	if len(evs) != 4 {
		t.Fatalf("expected start, log, log, end; got %+v", evs)
	}
	want := []model.EventType{model.EventStart, model.EventLog, model.EventLog, model.EventEnd}
	for i, ev := range evs {
		if ev.Event != want[i] {
			t.Errorf("event %d: got %s, want %s", i, ev.Event, want[i])
		}
		if ev.SpanID == rootID || ev.SpanID != evs[0].SpanID {
			t.Errorf("event %d not on the tool's own span", i)
		}
	}
	if evs[0].SkillMeta.ParentSpanID != rootID {
		t.Errorf("expected parent %s, got %s", rootID, evs[0].SkillMeta.ParentSpanID)
	}
	if !strings.Contains(evs[2].Content, "sum ready") {
		t.Errorf("unexpected closing log %q", evs[2].Content)
	}
	if evs[3].Status != model.StatusOK {
		t.Errorf("expected ok status, got %s", evs[3].Status)
	}
}

func TestInvokeFailureReturnsEmpty(t *testing.T) {
	stream := runUnderRoot(t, func(root *events.Span) {
		got, ok := Invoke(context.Background(), fastExecutor(1), root, Call[[]string]{
			Tool: "flaky",
			Run: func(context.Context) ([]string, error) {
				return []string{"partial"}, errors.New("timeout talking to backend")
			},
		})
		if ok || got != nil {
			t.Errorf("expected zero value, got %v, %v", got, ok)
		}
	})

	evs := toolEvents(stream, "flaky")
	last := evs[len(evs)-1]
	if last.Event != model.EventEnd || last.Status != model.StatusFailed {
		t.Errorf("expected failed end, got %+v", last)
	}
	failLog := evs[len(evs)-2]
	if failLog.Event != model.EventLog || !strings.Contains(failLog.Content, "2 attempt(s)") {
		t.Errorf("expected failure log, got %+v", failLog)
	}
}

func TestInvokeCancelledEndsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := runUnderRoot(t, func(root *events.Span) {
		Invoke(ctx, fastExecutor(3), root, Call[int]{
			Tool: "slow",
			Run: func(ctx context.Context) (int, error) {
				cancel()
				return 0, ctx.Err()
			},
		})
	})
	evs := toolEvents(stream, "slow")
	if last := evs[len(evs)-1]; last.Status != model.StatusCancelled {
		t.Errorf("expected cancelled end, got %+v", last)
	}
}

func TestInvokeNilParent(t *testing.T) {
	got, ok := Invoke(context.Background(), nil, nil, Call[string]{
		Tool: "quiet",
		Run:  func(context.Context) (string, error) { return "x", nil },
	})
	if !ok || got != "x" {
		t.Errorf("got %q, %v", got, ok)
	}
}
