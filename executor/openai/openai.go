// Package openai provides a core.Executor backed by the OpenAI Chat
// Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/executor"
)

// Options configures the OpenAI executor.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	Instructions        string
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0,
		MaxCompletionTokens: 1024,
		Instructions:        executor.DefaultInstructions,
	}
}

// Executor sends every operation to a chat model and decodes the first
// choice as the operation result.
type Executor struct {
	client *openai.Client
	opts   Options
}

// New creates an executor with its own client. Without an explicit APIKey
// the client reads OPENAI_API_KEY from the environment.
func New(optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)
	return &Executor{client: &client, opts: opts}
}

// NewFromClient creates an executor from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{client: client, opts: opts}
}

// Execute implements core.Executor.
func (e *Executor) Execute(ctx context.Context, provider string, op core.Operation) (core.Result, error) {
	prompt, err := executor.Prompt(provider, op)
	if err != nil {
		return nil, err
	}

	system, err := executor.RenderInstructions(e.opts.Instructions, provider, op)
	if err != nil {
		return nil, err
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               e.opts.Model,
		Temperature:         openai.Float(e.opts.Temperature),
		MaxCompletionTokens: openai.Int(e.opts.MaxCompletionTokens),
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices returned")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("model refused operation: %s", msg.Refusal)
	}
	return executor.ParseResult(msg.Content), nil
}

var _ core.Executor = (*Executor)(nil)
