// Package anthropic provides a core.Executor backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/executor"
)

// Options configures the Anthropic executor (model id, temperature, max
// tokens, API key, system instructions).
type Options struct {
	Model        anthropic.Model
	Temperature  float64
	MaxTokens    int64
	APIKey       string
	Instructions string
}

func defaultOptions() Options {
	return Options{
		Model:        anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:  0,
		MaxTokens:    1024,
		Instructions: executor.DefaultInstructions,
	}
}

// Executor sends every operation to Claude and decodes the reply as the
// operation result.
type Executor struct {
	client *anthropic.Client
	opts   Options
}

// New creates an executor with its own client. Without an explicit APIKey
// the client reads ANTHROPIC_API_KEY from the environment.
func New(optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Executor{client: &client, opts: opts}
}

// NewFromClient creates an executor from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Executor {
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

	params := anthropic.MessageNewParams{
		Model:       e.opts.Model,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		MaxTokens:   e.opts.MaxTokens,
		Temperature: anthropic.Float(e.opts.Temperature),
	}
	system, err := executor.RenderInstructions(e.opts.Instructions, provider, op)
	if err != nil {
		return nil, err
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("anthropic api returned no text content")
	}
	return executor.ParseResult(text.String()), nil
}

var _ core.Executor = (*Executor)(nil)
