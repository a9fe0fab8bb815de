// Package events streams typed skill events for one turn.
//
// Information Hiding:
// - Span bookkeeping and id generation hidden
// - Serialized delivery to the turn channel hidden
// - Descendant spans closed before their parent
package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zhfg/refly-sub011/model"
)

// DefaultBuffer is the channel capacity used when none is given.
const DefaultBuffer = 64

// Emitter owns the event channel of a single turn.
// Consumers must drain Events until it is closed.
type Emitter struct {
	turnID string
	out    chan model.SkillEvent

	mu     sync.Mutex
	root   *Span
	closed bool
}

// NewEmitter creates an emitter for a turn.
func NewEmitter(turnID string, buffer int) *Emitter {
	if buffer < 0 {
		buffer = DefaultBuffer
	}
	return &Emitter{
		turnID: turnID,
		out:    make(chan model.SkillEvent, buffer),
	}
}

// TurnID returns the turn this emitter belongs to.
func (e *Emitter) TurnID() string {
	return e.turnID
}

// Events returns the receive side of the turn channel.
func (e *Emitter) Events() <-chan model.SkillEvent {
	return e.out
}

// Root opens the top-level span. It may be called once.
func (e *Emitter) Root(meta model.SkillMeta) (*Span, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("emitter for turn %s is closed", e.turnID)
	}
	if e.root != nil {
		return nil, fmt.Errorf("turn %s already has a root span", e.turnID)
	}
	meta.ParentSpanID = ""
	e.root = e.openLocked(nil, meta)
	return e.root, nil
}

// Close ends every open span and closes the channel.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if e.root != nil {
		e.root.endLocked(model.StatusCancelled, "")
	}
	e.closed = true
	close(e.out)
}

func (e *Emitter) openLocked(parent *Span, meta model.SkillMeta) *Span {
	s := &Span{
		em:     e,
		id:     uuid.NewString(),
		meta:   meta,
		parent: parent,
	}
	if parent != nil {
		s.meta.ParentSpanID = parent.id
		parent.children = append(parent.children, s)
	}
	e.sendLocked(model.SkillEvent{Event: model.EventStart}, s)
	return s
}

func (e *Emitter) sendLocked(ev model.SkillEvent, s *Span) {
	if e.closed {
		return
	}
	ev.TurnID = e.turnID
	ev.SpanID = s.id
	ev.SkillMeta = s.meta
	e.out <- ev
}

func marshalContent(v any) (string, error) {
	switch c := v.(type) {
	case string:
		return c, nil
	case []byte:
		return string(c), nil
	case json.RawMessage:
		return string(c), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
