package tools

import (
	"context"
	"fmt"

	"github.com/zhfg/refly-sub011/events"
	"github.com/zhfg/refly-sub011/llm"
)

// Embeddings adapts an llm.Embedder.
type Embeddings struct {
	embedder llm.Embedder
	exec     *Executor
}

// NewEmbeddings creates an embeddings adapter.
func NewEmbeddings(embedder llm.Embedder, exec *Executor) *Embeddings {
	return &Embeddings{embedder: embedder, exec: exec}
}

// Embed returns one vector per text, or nil on failure.
func (e *Embeddings) Embed(ctx context.Context, parent *events.Span, texts []string) [][]float32 {
	if e == nil || e.embedder == nil || len(texts) == 0 {
		return nil
	}

	vectors, ok := Invoke(ctx, e.exec, parent, Call[[][]float32]{
		Tool:  ToolEmbeddings,
		Input: fmt.Sprintf("%d text(s) with %s", len(texts), e.embedder.Model()),
		Run: func(ctx context.Context) ([][]float32, error) {
			out, err := e.embedder.Embed(ctx, texts)
			if err != nil {
				return nil, err
			}
			if len(out) != len(texts) {
				return nil, Permanentf("embedder returned %d vectors for %d inputs", len(out), len(texts))
			}
			return out, nil
		},
		Describe: func(v [][]float32) string {
			if len(v) == 0 {
				return "0 vector(s)"
			}
			return fmt.Sprintf("%d vector(s) of dimension %d", len(v), len(v[0]))
		},
	})
	if !ok {
		return nil
	}
	return vectors
}
