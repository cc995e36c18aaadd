// Package draft turns a message into a suggested reply using an OpenAI chat
// completion.
package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daviddao/autodraft/internal/types"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultModel       = string(openai.ChatModelGPT3_5Turbo)
	DefaultMaxTokens   = 150
	DefaultTemperature = 0.5

	// SystemPrompt frames every request.
	SystemPrompt = "You are an email drafting expert. You are given an email subject and body. You must write a draft response to the email."
)

// ErrNoChoices is returned when the service answers without a completion.
var ErrNoChoices = errors.New("no completion choices returned")

// Prompt builds the user message for a fetched email.
func Prompt(msg types.Message) string {
	return fmt.Sprintf("Email subject: %s\nEmail body: %s\nSuggest a draft response:", msg.Subject, msg.Body)
}

// Options configures a Generator. Zero values take the package defaults.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64

	// ClientOptions are appended after the options derived above.
	ClientOptions []option.RequestOption
}

// Generator drafts replies with the chat completions API.
type Generator struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// New creates a Generator. An API key is required.
func New(opts Options) (*Generator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required (set OPENAI_API_KEY)")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	reqOpts = append(reqOpts, opts.ClientOptions...)

	return &Generator{
		client:      openai.NewClient(reqOpts...),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}, nil
}

// Generate sends the system instruction and prompt and returns the first
// completion with surrounding whitespace removed.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(g.model),
		MaxTokens:   openai.Int(g.maxTokens),
		Temperature: openai.Float(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
