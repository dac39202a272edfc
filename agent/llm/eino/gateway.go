// Package eino implements llm.Gateway over a cloudwego/eino chat model.
package eino

import (
	"context"
	"errors"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/meguminnnnnnnnn/go-openai"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

const jsonInstruction = "Respond with a single valid JSON object and nothing else."

type Gateway struct {
	model einomodel.BaseChatModel
}

var _ llmx.Gateway = (*Gateway)(nil)

func New(model einomodel.BaseChatModel) (*Gateway, error) {
	if model == nil {
		return nil, errors.New("eino chat model is required")
	}
	return &Gateway{model: model}, nil
}

func (g *Gateway) Complete(ctx context.Context, messages []llmx.Message, opts llmx.Options) (string, error) {
	if len(messages) == 0 {
		return "", contractx.InvalidInput("no messages to complete")
	}

	input := toSchemaMessages(messages, opts.JSON())

	var modelOpts []einomodel.Option
	if opts.Temperature != nil {
		modelOpts = append(modelOpts, einomodel.WithTemperature(float32(*opts.Temperature)))
	}
	if opts.MaxTokens != nil {
		modelOpts = append(modelOpts, einomodel.WithMaxTokens(*opts.MaxTokens))
	}

	out, err := g.model.Generate(ctx, input, modelOpts...)
	if err != nil {
		return "", classify(ctx, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", contractx.Unavailable(llmx.ErrEmptyCompletion, "eino chat model returned empty content")
	}
	return strings.TrimSpace(out.Content), nil
}

func toSchemaMessages(messages []llmx.Message, jsonMode bool) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages)+1)
	if jsonMode {
		out = append(out, schema.SystemMessage(jsonInstruction))
	}
	for _, m := range messages {
		switch m.Role() {
		case llmx.RoleSystem:
			out = append(out, schema.SystemMessage(m.PlainText()))
		case llmx.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.PlainText(), nil))
		default:
			if !m.HasImages() {
				out = append(out, schema.UserMessage(m.PlainText()))
				continue
			}
			out = append(out, &schema.Message{
				Role:         schema.User,
				MultiContent: multiContent(m),
			})
		}
	}
	return out
}

func multiContent(m llmx.Message) []schema.ChatMessagePart {
	parts := m.Parts()
	out := make([]schema.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		switch p.Kind() {
		case llmx.PartText:
			out = append(out, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeText,
				Text: p.Text(),
			})
		case llmx.PartImage:
			out = append(out, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      p.DataURL(),
					MIMEType: p.MediaType(),
				},
			})
		case llmx.PartImageRef:
			out = append(out, schema.ChatMessagePart{
				Type:     schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{URL: p.URL()},
			})
		}
	}
	return out
}

// classify maps the OpenAI-compatible status carried by eino-ext model errors,
// so 4xx responses are not mistaken for a transient outage.
func classify(ctx context.Context, err error) error {
	var te *contractx.ToolError
	if errors.As(err, &te) {
		return te
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		te = contractx.FromHTTPStatus(apiErr.HTTPStatusCode, apiErr.Message, nil)
		te.Cause = err
		return te
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		te = contractx.FromHTTPStatus(reqErr.HTTPStatusCode, "", nil)
		te.Cause = err
		return te
	}
	return contractx.FromTransport(ctx, err, "eino chat model")
}
