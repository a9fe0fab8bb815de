package events

import (
	"errors"
	"fmt"

	"github.com/zhfg/refly-sub011/model"
)

type spanState struct {
	starts int
	ends   int
	// closedAt is the index of the first end event.
	closedAt int
}

// Verify checks span integrity of a recorded stream and reports every
// violation found.
func Verify(stream []model.SkillEvent) error {
	if len(stream) == 0 {
		return errors.New("empty event stream")
	}

	var errs []error
	first, last := stream[0], stream[len(stream)-1]
	if first.Event != model.EventStart {
		errs = append(errs, fmt.Errorf("first event is %s, want start", first.Event))
	}
	if last.Event != model.EventEnd || last.SpanID != first.SpanID {
		errs = append(errs, fmt.Errorf("last event is %s on span %q, want end of root span %q",
			last.Event, last.SpanID, first.SpanID))
	}

	spans := make(map[string]*spanState)
	order := make([]string, 0)
	for i, ev := range stream {
		st, seen := spans[ev.SpanID]
		if !seen {
			st = &spanState{closedAt: -1}
			spans[ev.SpanID] = st
			order = append(order, ev.SpanID)
			if ev.Event != model.EventStart {
				errs = append(errs, fmt.Errorf("span %q: first event at %d is %s, want start", ev.SpanID, i, ev.Event))
			}
		}
		if st.closedAt >= 0 {
			errs = append(errs, fmt.Errorf("span %q: %s at %d after end at %d", ev.SpanID, ev.Event, i, st.closedAt))
		}

		switch ev.Event {
		case model.EventStart:
			st.starts++
			if st.starts > 1 {
				errs = append(errs, fmt.Errorf("span %q: duplicate start at %d", ev.SpanID, i))
			}
		case model.EventEnd:
			st.ends++
			if st.closedAt < 0 {
				st.closedAt = i
			}
		case model.EventStructuredData:
			if ev.StructuredDataKey == "" {
				errs = append(errs, fmt.Errorf("span %q: structured_data at %d has no key", ev.SpanID, i))
			}
		case model.EventLog, model.EventStream:
		default:
			errs = append(errs, fmt.Errorf("span %q: unknown event %q at %d", ev.SpanID, ev.Event, i))
		}
		if ev.Event != model.EventStructuredData && ev.StructuredDataKey != "" {
			errs = append(errs, fmt.Errorf("span %q: %s at %d carries a structured data key", ev.SpanID, ev.Event, i))
		}
	}

	for _, id := range order {
		if n := spans[id].ends; n != 1 {
			errs = append(errs, fmt.Errorf("span %q: %d end events, want 1", id, n))
		}
	}
	return errors.Join(errs...)
}

// Collect drains a channel into a slice.
func Collect(ch <-chan model.SkillEvent) []model.SkillEvent {
	var out []model.SkillEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}
