// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - JSON mode emulated with an instruction and a prefilled brace

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicJSONInstruction = "Respond with a single JSON object and nothing else."

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32, opts ...option.RequestOption) *AnthropicProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

func (p *AnthropicProvider) params(messages []ChatMessage, jsonMode bool) anthropic.MessageNewParams {
	system, rest := splitSystem(messages)
	if jsonMode {
		system = strings.TrimSpace(system + "\n\n" + anthropicJSONInstruction)
	}

	converted := make([]anthropic.MessageParam, 0, len(rest)+1)
	for _, msg := range rest {
		switch msg.Role {
		case RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if jsonMode {
		converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    converted,
		Temperature: anthropic.Float(p.temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// Chat sends a messages request.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error) {
	jsonMode := wantsJSON(format)
	message, err := p.client.Messages.New(ctx, p.params(messages, jsonMode))
	if err != nil {
		return Response{}, fmt.Errorf("anthropic chat completion failed: %w", err)
	}

	var content strings.Builder
	if jsonMode {
		content.WriteString("{")
	}
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(text.Text)
		}
	}

	return Response{
		Content: content.String(),
		Usage: &TokenUsage{
			InputTokens:  uint32(message.Usage.InputTokens),
			OutputTokens: uint32(message.Usage.OutputTokens),
		},
	}, nil
}

// StreamChat streams a messages request.
func (p *AnthropicProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(messages, false))
	defer stream.Close()

	usage := &TokenUsage{}
	for stream.Next() {
		switch event := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.InputTokens = uint32(event.Message.Usage.InputTokens)
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := event.Delta.AsAny().(anthropic.TextDelta); ok {
				if err := send(ctx, chunks, delta.Text); err != nil {
					return usage, err
				}
			}
		case anthropic.MessageDeltaEvent:
			usage.OutputTokens = uint32(event.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		return usage, fmt.Errorf("anthropic stream error: %w", err)
	}
	return usage, nil
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
