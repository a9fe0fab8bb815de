// Package llm provides model provider abstractions.
//
// Provider is the model-invocation collaborator of the scheduler.
// Each implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Streaming protocol and usage reporting

package llm

import (
	"context"
)

// Provider defines the interface the scheduler uses to call a model.
type Provider interface {
	// Name returns the provider name (for usage records and logs).
	Name() string

	// Model returns the model identifier.
	Model() string

	// Chat sends a completion request. A nil format means plain text.
	Chat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error)

	// StreamChat streams a completion, sending text chunks to the channel.
	// The channel is not closed by the provider.
	// Returns token usage when the provider reports it.
	StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	// Model returns the embedding model identifier.
	Model() string

	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// send delivers a chunk unless the context is done.
func send(ctx context.Context, chunks chan<- string, text string) error {
	if text == "" {
		return nil
	}
	select {
	case chunks <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
