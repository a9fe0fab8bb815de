// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - System instruction and JSON MIME type via config
// - Streaming via the SDK iterator

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error // returned on first use
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	client, err := newGeminiClient(apiKey)
	return &GeminiProvider{
		client:      client,
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: temperature,
		initErr:     err,
	}
}

func newGeminiClient(apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	return client, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

func (p *GeminiProvider) prepare(messages []ChatMessage, format *ResponseFormat) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if p.initErr != nil {
		return nil, nil, p.initErr
	}

	system, rest := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if wantsJSON(format) {
		config.ResponseMIMEType = "application/json"
	}
	return contents, config, nil
}

// Chat sends a generate-content request.
func (p *GeminiProvider) Chat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error) {
	contents, config, err := p.prepare(messages, format)
	if err != nil {
		return Response{}, err
	}

	response, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return Response{}, fmt.Errorf("gemini chat completion failed: %w", err)
	}

	content := response.Text()
	if content == "" {
		return Response{}, fmt.Errorf("empty response from Gemini")
	}
	return Response{Content: content, Usage: geminiUsage(response)}, nil
}

// StreamChat streams a generate-content request.
func (p *GeminiProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	contents, config, err := p.prepare(messages, nil)
	if err != nil {
		return nil, err
	}

	var usage *TokenUsage
	for response, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
		if err != nil {
			return usage, fmt.Errorf("gemini stream error: %w", err)
		}
		if u := geminiUsage(response); u != nil {
			usage = u
		}
		if err := send(ctx, chunks, response.Text()); err != nil {
			return usage, err
		}
	}
	return usage, nil
}

func geminiUsage(response *genai.GenerateContentResponse) *TokenUsage {
	if response == nil || response.UsageMetadata == nil {
		return nil
	}
	return &TokenUsage{
		InputTokens:  uint32(response.UsageMetadata.PromptTokenCount),
		OutputTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
	}
}

// GeminiEmbedder implements Embedder with the Gemini embed endpoint.
type GeminiEmbedder struct {
	client  *genai.Client
	model   string
	initErr error
}

// NewGeminiEmbedder creates an embedder.
func NewGeminiEmbedder(apiKey, model string) *GeminiEmbedder {
	client, err := newGeminiClient(apiKey)
	return &GeminiEmbedder{client: client, model: model, initErr: err}
}

// Model returns the embedding model.
func (e *GeminiEmbedder) Model() string {
	return e.model
}

// Embed vectorizes inputs.
func (e *GeminiEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if e.initErr != nil {
		return nil, e.initErr
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(inputs))
	for i, input := range inputs {
		contents[i] = genai.NewContentFromText(input, genai.RoleUser)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings failed: %w", err)
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d inputs", len(resp.Embeddings), len(inputs))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb != nil {
			vectors[i] = emb.Values
		}
	}
	return vectors, nil
}

// Verify implementations
var (
	_ Provider = (*GeminiProvider)(nil)
	_ Embedder = (*GeminiEmbedder)(nil)
)
