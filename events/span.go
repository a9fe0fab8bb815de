package events

import (
	"fmt"

	"github.com/zhfg/refly-sub011/model"
)

// Span groups the events of one logical step.
// All methods are safe for concurrent use and become no-ops once the span ends.
type Span struct {
	em       *Emitter
	id       string
	meta     model.SkillMeta
	parent   *Span
	children []*Span
	ended    bool
}

// ID returns the span id.
func (s *Span) ID() string {
	return s.id
}

// Meta returns the span's skill metadata.
func (s *Span) Meta() model.SkillMeta {
	return s.meta
}

// Child opens a nested span. A child of an ended span is still returned,
// but it emits nothing.
func (s *Span) Child(meta model.SkillMeta) *Span {
	s.em.mu.Lock()
	defer s.em.mu.Unlock()

	if s.ended || s.em.closed {
		return &Span{em: s.em, id: "", meta: meta, parent: s, ended: true}
	}
	return s.em.openLocked(s, meta)
}

// Log emits a log event.
func (s *Span) Log(format string, args ...any) {
	content := format
	if len(args) > 0 {
		content = fmt.Sprintf(format, args...)
	}
	s.emit(model.SkillEvent{Event: model.EventLog, Content: content})
}

// Stream emits one content chunk.
func (s *Span) Stream(chunk string) {
	if chunk == "" {
		return
	}
	s.emit(model.SkillEvent{Event: model.EventStream, Content: chunk})
}

// StructuredData emits v as JSON under key.
func (s *Span) StructuredData(key string, v any) error {
	if key == "" {
		return fmt.Errorf("structured data key is required")
	}
	content, err := marshalContent(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	s.emit(model.SkillEvent{
		Event:             model.EventStructuredData,
		Content:           content,
		StructuredDataKey: key,
	})
	return nil
}

// End closes the span successfully.
func (s *Span) End() {
	s.finish(model.StatusOK, "")
}

// Fail closes the span with an error.
func (s *Span) Fail(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	s.finish(model.StatusFailed, msg)
}

// Cancel closes the span as cancelled.
func (s *Span) Cancel() {
	s.finish(model.StatusCancelled, "")
}

// Ended reports whether the span has been closed.
func (s *Span) Ended() bool {
	s.em.mu.Lock()
	defer s.em.mu.Unlock()
	return s.ended
}

func (s *Span) emit(ev model.SkillEvent) {
	s.em.mu.Lock()
	defer s.em.mu.Unlock()

	if s.ended {
		return
	}
	s.em.sendLocked(ev, s)
}

func (s *Span) finish(status model.EndStatus, errMsg string) {
	s.em.mu.Lock()
	defer s.em.mu.Unlock()
	s.endLocked(status, errMsg)
}

// endLocked ends open descendants, newest first, then the span itself.
func (s *Span) endLocked(status model.EndStatus, errMsg string) {
	if s.ended {
		return
	}
	for i := len(s.children) - 1; i >= 0; i-- {
		s.children[i].endLocked(model.StatusCancelled, "")
	}
	s.ended = true
	s.em.sendLocked(model.SkillEvent{Event: model.EventEnd, Status: status, Error: errMsg}, s)
}
