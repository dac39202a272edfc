// Package openai implements llm.Gateway over the OpenAI Chat Completions API
// (or any compatible endpoint such as OpenRouter).
package openai

import (
	"context"
	"errors"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

type Gateway struct {
	client *openaisdk.Client
	opts   Options
}

var _ llmx.Gateway = (*Gateway)(nil)

func New(client *openaisdk.Client, optFns ...func(o *Options)) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	opts := Options{
		Model:               openaisdk.ChatModelGPT4oMini,
		Temperature:         0.5,
		MaxCompletionTokens: 2000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("openai model is required")
	}
	return &Gateway{client: client, opts: opts}, nil
}

func (g *Gateway) Complete(ctx context.Context, messages []llmx.Message, opts llmx.Options) (string, error) {
	if len(messages) == 0 {
		return "", contractx.InvalidInput("no messages to complete")
	}

	resp, err := g.client.Chat.Completions.New(ctx, g.buildParams(messages, opts))
	if err != nil {
		return "", classify(ctx, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", contractx.Unavailable(llmx.ErrEmptyCompletion, "openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", contractx.Unavailable(llmx.ErrEmptyCompletion, "openai returned empty content")
	}
	return text, nil
}

func (g *Gateway) buildParams(messages []llmx.Message, opts llmx.Options) openaisdk.ChatCompletionNewParams {
	temperature := g.opts.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := g.opts.MaxCompletionTokens
	if opts.MaxTokens != nil {
		maxTokens = int64(*opts.MaxTokens)
	}

	params := openaisdk.ChatCompletionNewParams{
		Messages:            buildMessages(messages),
		Model:               g.opts.Model,
		Temperature:         openaisdk.Float(temperature),
		MaxCompletionTokens: openaisdk.Int(maxTokens),
	}
	if opts.JSON() {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func buildMessages(messages []llmx.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role() {
		case llmx.RoleSystem:
			out = append(out, openaisdk.SystemMessage(m.PlainText()))
		case llmx.RoleAssistant:
			out = append(out, openaisdk.AssistantMessage(m.PlainText()))
		default:
			if !m.HasImages() {
				out = append(out, openaisdk.UserMessage(m.PlainText()))
				continue
			}
			out = append(out, openaisdk.UserMessage(userParts(m)))
		}
	}
	return out
}

func userParts(m llmx.Message) []openaisdk.ChatCompletionContentPartUnionParam {
	parts := m.Parts()
	out := make([]openaisdk.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, p := range parts {
		switch p.Kind() {
		case llmx.PartText:
			out = append(out, openaisdk.TextContentPart(p.Text()))
		case llmx.PartImage:
			out = append(out, openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{
				URL: p.DataURL(),
			}))
		case llmx.PartImageRef:
			out = append(out, openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{
				URL: p.URL(),
			}))
		}
	}
	return out
}

func classify(ctx context.Context, err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		te := contractx.FromHTTPStatus(apiErr.StatusCode, apiErr.Message, nil)
		te.Cause = err
		return te
	}
	return contractx.FromTransport(ctx, err, "openai chat completion")
}
