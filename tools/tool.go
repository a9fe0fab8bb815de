// Package tools provides the adapters the scheduler calls during a turn.
//
// Information Hiding:
// - External response shapes stay inside each adapter
// - Retry strategy and backoff hidden behind Executor
// - Failures surface as empty results plus log events, never as errors
package tools

import (
	"errors"
	"fmt"

	"github.com/zhfg/refly-sub011/model"
)

// Tool names, used as span names and metric labels.
const (
	ToolWebSearch  = "webSearch"
	ToolEmbeddings = "embeddings"
	ToolRerank     = "rerank"
	ToolURLReader  = "urlReader"
)

// ErrPermanent marks failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }

func (p *permanentError) Unwrap() []error { return []error{p.err, ErrPermanent} }

// Permanent wraps err so the executor does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Permanentf formats a permanent error.
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// toolMeta returns the span metadata for a tool call.
func toolMeta(name string) model.SkillMeta {
	return model.SkillMeta{Name: name, Kind: model.SpanTool}
}
