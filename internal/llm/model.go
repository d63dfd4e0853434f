// Package llm provides the assistant's text completion and image generation
// backends.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/chatsync-go/internal/config"
	"github.com/raphaelgruber/chatsync-go/internal/metrics"
	"github.com/raphaelgruber/chatsync-go/internal/models"
)

var (
	// ErrUnsupportedProvider is returned for unknown provider names.
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")

	// ErrFatalAPI marks provider errors that retrying will not fix, such as
	// bad credentials or an exhausted quota.
	ErrFatalAPI = errors.New("fatal API error")
)

// Model wraps a langchaingo model for chat completion.
type Model struct {
	llm       llms.Model
	modelName string
	metrics   *metrics.Collector
}

// NewModel creates a model based on configuration.
func NewModel(ctx context.Context, cfg config.Config, m *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.LLMProvider)
	}

	return &Model{llm: model, modelName: cfg.LLMModel, metrics: m}, nil
}

// Model returns the model name.
func (m *Model) Model() string {
	return m.modelName
}

// Complete answers the conversation so far. Image turns are skipped since
// they carry no text.
func (m *Model) Complete(ctx context.Context, conversation []models.AiMessage) (string, error) {
	messages := make([]llms.MessageContent, 0, len(conversation))
	for _, msg := range conversation {
		if msg.Content == "" {
			continue
		}
		role := llms.ChatMessageTypeHuman
		if msg.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("complete: empty conversation")
	}

	resp, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("complete: %w", wrapFatalError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	choice := resp.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	m.metrics.RecordLLMUsage(metrics.OpLLMComplete, in, out)
	return choice.Content, nil
}

// tokenUsage reads the token counts providers report under differing keys.
func tokenUsage(info map[string]any) (in, out int64) {
	for _, k := range []string{"PromptTokens", "InputTokens", "input_tokens"} {
		if v, ok := asInt(info[k]); ok {
			in = v
			break
		}
	}
	for _, k := range []string{"CompletionTokens", "OutputTokens", "output_tokens"} {
		if v, ok := asInt(info[k]); ok {
			out = v
			break
		}
	}
	return in, out
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"credit balance", "rate limit", "quota", "billing",
		"invalid api key", "authentication", "unauthorized", "401", "403",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}
