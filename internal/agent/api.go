package agent

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

// APIRunner drives an agent turn directly against the Anthropic Messages
// API instead of shelling out to a CLI. It is an alternative transport for
// deployments where a coding-agent subprocess isn't available (e.g. a
// sandboxed CI worker); the researcher/coder prompt contract is unchanged
// from SubprocessRunner's — only the wire transport differs.
type APIRunner struct {
	client anthropic.Client
	model  anthropic.Model
	log    zerolog.Logger
}

// NewAPIRunner returns a Runner backed by the Anthropic API using apiKey
// and model.
func NewAPIRunner(apiKey string, model anthropic.Model, log zerolog.Logger) *APIRunner {
	return &APIRunner{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		log:    log,
	}
}

// Run sends req as a single-turn (or continued, via a caller-supplied
// transcript embedded in Prompt) Messages.New call and maps the response
// into the transport-agnostic Response shape.
func (r *APIRunner) Run(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("agent: anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{
		SessionID:  string(msg.ID),
		Model:      string(msg.Model),
		FinalText:  text,
		StreamText: text,
		Usage: Usage{
			InputTokens:         int(msg.Usage.InputTokens),
			OutputTokens:        int(msg.Usage.OutputTokens),
			CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
			CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
		},
	}, nil
}
