// Package scheduler runs one skill turn as a state machine.
//
// Information Hiding:
// - State transitions live in a dispatch table
// - Skill pipelines live in a second table keyed by model.SkillKind
// - Every turn owns its emitter, usage tracker and sources
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhfg/refly-sub011/events"
	"github.com/zhfg/refly-sub011/intent"
	"github.com/zhfg/refly-sub011/internal/logging"
	"github.com/zhfg/refly-sub011/llm"
	"github.com/zhfg/refly-sub011/model"
	"github.com/zhfg/refly-sub011/tools"
)

var (
	// ErrModel wraps failures of the main model call.
	ErrModel = errors.New("model invocation failed")
	// ErrCancelled is reported when the caller aborts a turn.
	ErrCancelled = errors.New("turn cancelled")
	// ErrContextRejected is reported when context items violate the filter.
	ErrContextRejected = errors.New("context items violate filter rules")
	// ErrUnknownItemType is reported for context items of an unsupported type.
	ErrUnknownItemType = errors.New("unknown context item type")

	errInternal = errors.New("internal error")
)

// Fetcher hydrates context items that only carry an id.
type Fetcher interface {
	GetDocument(ctx context.Context, id string) (model.Document, error)
	GetResource(ctx context.Context, id string) (model.Resource, error)
}

// Request is the input of one turn.
type Request struct {
	// TurnID identifies the turn; generated when empty.
	TurnID          string                `json:"turnId,omitempty"`
	Query           model.Query           `json:"query"`
	Items           []model.ContextItem   `json:"items,omitempty"`
	Filter          model.FilterConfig    `json:"filter,omitempty"`
	CurrentDocument *model.Document       `json:"currentDocument,omitempty"`
	EditConfig      *model.EditConfig     `json:"editConfig,omitempty"`
	ProjectID       string                `json:"projectId,omitempty"`
	// Skill names a skill to run without intent matching.
	Skill string `json:"skill,omitempty"`
}

// Scheduler runs turns. It is safe for concurrent use; configuration is
// read-only after Build.
type Scheduler struct {
	chat       llm.Tiered
	light      llm.Tiered
	matcher    *intent.Matcher
	search     *tools.WebSearch
	reader     *tools.URLReader
	embeddings *tools.Embeddings
	reranker   *tools.Reranker
	fetcher    Fetcher
	logger     logging.Logger
	opts       Options
}

// State is a step of the turn state machine.
type State int

const (
	StateInit State = iota
	StateContextFilter
	StateIntentMatch
	StateToolInvocation
	StateModelInvocation
	StateAggregate
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateContextFilter:
		return "contextFilter"
	case StateIntentMatch:
		return "intentMatch"
	case StateToolInvocation:
		return "toolInvocation"
	case StateModelInvocation:
		return "modelInvocation"
	case StateAggregate:
		return "aggregate"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) terminal() bool {
	return s == StateDone || s == StateError
}

type stepFunc func(t *turn, ctx context.Context) State

// steps is the transition table. Terminal steps emit the final end event.
var steps = map[State]stepFunc{
	StateInit:            (*turn).init,
	StateContextFilter:   (*turn).contextFilter,
	StateIntentMatch:     (*turn).intentMatch,
	StateToolInvocation:  (*turn).toolInvocation,
	StateModelInvocation: (*turn).modelInvocation,
	StateAggregate:       (*turn).aggregate,
	StateDone:            (*turn).done,
	StateError:           (*turn).fail,
}

// turn is the per-turn mutable state. It is never shared across turns.
type turn struct {
	s   *Scheduler
	req Request
	em  *events.Emitter
	log logging.Entry

	root      *events.Span
	skillSpan *events.Span
	usage     *events.UsageTracker

	items   []model.ContextItem
	kind    model.SkillKind
	skill   *skill
	sources []model.Source
	answer  strings.Builder
	err     error

	// visited records the states the turn passed through, for tests.
	visited []State
}

// Run starts a turn and returns its event channel. The channel is closed
// after the top-level end event. Callers must drain it.
func (s *Scheduler) Run(ctx context.Context, req Request) <-chan model.SkillEvent {
	ch, _ := s.start(ctx, req)
	return ch
}

func (s *Scheduler) start(ctx context.Context, req Request) (<-chan model.SkillEvent, *turn) {
	if req.TurnID == "" {
		req.TurnID = uuid.NewString()
	}
	t := &turn{
		s:     s,
		req:   req,
		em:    events.NewEmitter(req.TurnID, s.opts.EventBuffer),
		usage: &events.UsageTracker{},
		log:   s.logger.WithField("turn_id", req.TurnID),
	}
	go t.run(ctx)
	return t.em.Events(), t
}

func (t *turn) run(ctx context.Context) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			t.log.WithFields(logging.Fields{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("turn panicked")
			t.err = errInternal
			t.fail(ctx)
		}
		t.em.Close()
		recordTurn(t.kindLabel(), t.status(), time.Since(started))
	}()

	state := StateInit
	for {
		// Done is still checked so a cancel during aggregation is not
		// reported as ok.
		if state != StateError && ctx.Err() != nil {
			t.err = fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			state = StateError
		}
		t.visited = append(t.visited, state)
		next := steps[state](t, ctx)
		if state.terminal() {
			return
		}
		t.log.WithFields(logging.Fields{"from": state.String(), "to": next.String()}).Debug("state transition")
		state = next
	}
}

func (t *turn) kindLabel() string {
	if t.skill == nil {
		return "none"
	}
	return t.kind.String()
}

func (t *turn) status() model.EndStatus {
	switch {
	case t.err == nil:
		return model.StatusOK
	case errors.Is(t.err, ErrCancelled):
		return model.StatusCancelled
	default:
		return model.StatusFailed
	}
}

func (t *turn) init(ctx context.Context) State {
	root, err := t.em.Root(model.SkillMeta{Name: "scheduler", Kind: model.SpanScheduler})
	if err != nil {
		t.err = err
		return StateError
	}
	t.root = root
	t.log.WithField("query", t.req.Query.Text).Info("turn started")
	return StateContextFilter
}

func (t *turn) done(ctx context.Context) State {
	t.root.End()
	t.log.Info("turn finished")
	return StateDone
}

// fail ends the turn. Cancellation ends open spans as cancelled; any other
// error fails the skill span and the root.
func (t *turn) fail(ctx context.Context) State {
	if t.root == nil {
		root, err := t.em.Root(model.SkillMeta{Name: "scheduler", Kind: model.SpanScheduler})
		if err != nil {
			return StateError
		}
		t.root = root
	}

	if errors.Is(t.err, ErrCancelled) {
		t.log.Info("turn cancelled")
		t.root.Cancel()
		return StateError
	}

	t.log.WithError(t.err).Warn("turn failed")
	if t.skillSpan != nil {
		t.skillSpan.Fail(t.err)
	}
	t.root.Fail(t.err)
	return StateError
}
