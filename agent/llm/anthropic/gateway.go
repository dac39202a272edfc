// Package anthropic implements llm.Gateway over the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

const jsonInstruction = "Respond with a single valid JSON object and nothing else."

type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
}

type Gateway struct {
	client *anthropic.Client
	opts   Options
}

var _ llmx.Gateway = (*Gateway)(nil)

func New(client *anthropic.Client, optFns ...func(o *Options)) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("anthropic client is required")
	}
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.5,
		MaxTokens:   2000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if strings.TrimSpace(string(opts.Model)) == "" {
		return nil, errors.New("anthropic model is required")
	}
	return &Gateway{client: client, opts: opts}, nil
}

func (g *Gateway) Complete(ctx context.Context, messages []llmx.Message, opts llmx.Options) (string, error) {
	if len(messages) == 0 {
		return "", contractx.InvalidInput("no messages to complete")
	}

	temperature := g.opts.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := g.opts.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = int64(*opts.MaxTokens)
	}

	system, turns := split(messages)
	if opts.JSON() {
		system = append(system, anthropic.TextBlockParam{Text: jsonInstruction})
	}
	if len(turns) == 0 {
		return "", contractx.InvalidInput("anthropic requires at least one user or assistant message")
	}

	params := anthropic.MessageNewParams{
		Model:       g.opts.Model,
		Messages:    turns,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	if len(system) > 0 {
		params.System = system
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(ctx, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", contractx.Unavailable(llmx.ErrEmptyCompletion, "anthropic returned no text content")
	}
	return text, nil
}

func split(messages []llmx.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role() {
		case llmx.RoleSystem:
			if text := m.PlainText(); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		case llmx.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.PlainText())))
		default:
			turns = append(turns, anthropic.NewUserMessage(userBlocks(m)...))
		}
	}
	return system, turns
}

func userBlocks(m llmx.Message) []anthropic.ContentBlockParamUnion {
	parts := m.Parts()
	out := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, p := range parts {
		switch p.Kind() {
		case llmx.PartText:
			out = append(out, anthropic.NewTextBlock(p.Text()))
		case llmx.PartImage:
			out = append(out, anthropic.NewImageBlockBase64(p.MediaType(), p.Base64()))
		case llmx.PartImageRef:
			out = append(out, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: p.URL()}))
		}
	}
	return out
}

func classify(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		te := contractx.FromHTTPStatus(apiErr.StatusCode, "", nil)
		te.Cause = err
		return te
	}
	return contractx.FromTransport(ctx, err, "anthropic messages")
}
