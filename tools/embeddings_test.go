package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/zhfg/refly-sub011/events"
	"github.com/zhfg/refly-sub011/model"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Model() string { return "stub-embed" }

func (s *stubEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	s.calls++
	return s.vectors, s.err
}

func TestEmbeddingsReturnsVectors(t *testing.T) {
	stub := &stubEmbedder{vectors: [][]float32{{1, 0}, {0, 1}}}
	var got [][]float32
	stream := runUnderRoot(t, func(root *events.Span) {
		got = NewEmbeddings(stub, fastExecutor(0)).Embed(context.Background(), root, []string{"a", "b"})
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(got))
	}
	evs := toolEvents(stream, ToolEmbeddings)
	if len(evs) != 4 || evs[len(evs)-1].Status != model.StatusOK {
		t.Errorf("unexpected tool events %+v", evs)
	}
}

func TestEmbeddingsCountMismatchIsPermanent(t *testing.T) {
	stub := &stubEmbedder{vectors: [][]float32{{1, 0}}}
	got := NewEmbeddings(stub, fastExecutor(3)).Embed(context.Background(), nil, []string{"a", "b"})
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if stub.calls != 1 {
		t.Errorf("expected no retries, got %d calls", stub.calls)
	}
}

func TestEmbeddingsFailureIsEmpty(t *testing.T) {
	stub := &stubEmbedder{err: errors.New("rate limited")}
	if got := NewEmbeddings(stub, fastExecutor(1)).Embed(context.Background(), nil, []string{"a"}); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if stub.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", stub.calls)
	}
}

func TestEmbeddingsNilEmbedder(t *testing.T) {
	var e *Embeddings
	if e.Embed(context.Background(), nil, []string{"a"}) != nil {
		t.Error("expected nil")
	}
}
