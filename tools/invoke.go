package tools

import (
	"context"
	"errors"
	"time"

	"github.com/zhfg/refly-sub011/events"
)

// Call describes one adapter invocation.
type Call[T any] struct {
	// Tool names the span and the metric series.
	Tool string
	// Input is logged before the call.
	Input string
	Run   func(ctx context.Context) (T, error)
	// Describe summarizes a successful result for the closing log. Optional.
	Describe func(T) string
}

// Invoke runs call under its own span below parent.
//
// The span logs before and after the call. Transient errors are retried by
// exec; when the call ultimately fails the zero value and false are
// returned and the failure is only visible as a log event. A nil parent
// runs the call without events.
func Invoke[T any](ctx context.Context, exec *Executor, parent *events.Span, call Call[T]) (T, bool) {
	var span *events.Span
	if parent != nil {
		span = parent.Child(toolMeta(call.Tool))
		span.Log("%s started: %s", call.Tool, call.Input)
	}

	start := time.Now()
	result, attempts, err := execute(ctx, exec, call.Run)
	observe(call.Tool, err, attempts, time.Since(start))

	if err != nil {
		var zero T
		if span != nil {
			span.Log("%s failed after %d attempt(s): %v", call.Tool, attempts, err)
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				span.Cancel()
			} else {
				span.Fail(err)
			}
		}
		return zero, false
	}

	if span != nil {
		summary := "ok"
		if call.Describe != nil {
			summary = call.Describe(result)
		}
		span.Log("%s finished: %s", call.Tool, summary)
		span.End()
	}
	return result, true
}
