package openai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/lectern/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	maxRetries  int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// newCompleter is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.CompletionHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.CompletionModel),
	)
	if err != nil {
		return nil, err
	}

	return &Completer{
		client:      client,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		maxRetries:  config.MaxRetries,
		retryDelay:  config.RetryBaseDelay,
		logger:      slog.Default().With("component", "openai-completer"),
	}, nil
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config)
}

// Complete generates a chat completion for the given messages. Rate limits
// are retried with exponential backoff; other HTTP failures surface
// immediately as *core.ProviderError with the status code attached.
func (c *Completer) Complete(ctx context.Context, messages []ai.Message, temperature float64, maxTokens int) (*ai.Completion, error) {
	if temperature == 0 {
		temperature = c.temperature
	}
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.MessageContent{
			Role:  chatRole(msg.Role),
			Parts: []llms.ContentPart{llms.TextPart(msg.Text)},
		})
	}

	var response *llms.ContentResponse
	err := ai.RetryWithBackoff(ctx, func() error {
		var genErr error
		response, genErr = c.client.GenerateContent(ctx, content,
			llms.WithTemperature(temperature),
			llms.WithMaxTokens(maxTokens),
		)
		return classifyErr("complete", genErr)
	}, c.maxRetries, c.retryDelay)
	if err != nil {
		c.logger.Error("completion failed", "err", err)
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, classifyErr("complete", errors.New("empty response"))
	}

	choice := response.Choices[0]
	completion := &ai.Completion{
		Text:         choice.Content,
		InputTokens:  tokenCount(choice.GenerationInfo, "PromptTokens"),
		OutputTokens: tokenCount(choice.GenerationInfo, "CompletionTokens"),
	}

	c.logger.Debug("completion generated",
		"inputTokens", completion.InputTokens,
		"outputTokens", completion.OutputTokens)
	return completion, nil
}

func chatRole(role ai.Role) llms.ChatMessageType {
	switch role {
	case ai.RoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// tokenCount reads a usage counter from the provider's generation info.
// Providers that omit usage report zero.
func tokenCount(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
