package tool

import (
	"context"
	"errors"
	"strings"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

type promptedTool struct {
	gateway llmx.Gateway
	prompt  string
}

func newPromptedTool(gateway llmx.Gateway, prompt string) (promptedTool, error) {
	if gateway == nil {
		return promptedTool{}, errors.New("llm gateway is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return promptedTool{}, contractx.ErrPromptMissing
	}
	return promptedTool{gateway: gateway, prompt: prompt}, nil
}

type RefineContent struct{ promptedTool }

var _ contractx.RefineContent = (*RefineContent)(nil)

func NewRefineContent(gateway llmx.Gateway, prompt string) (*RefineContent, error) {
	base, err := newPromptedTool(gateway, prompt)
	if err != nil {
		return nil, err
	}
	return &RefineContent{base}, nil
}

func (t *RefineContent) Refine(ctx context.Context, in contractx.RefineInput) (contractx.RefineOutput, error) {
	if err := requireText("description", in.Description); err != nil {
		return contractx.RefineOutput{}, err
	}

	res, err := completeJSON(ctx, t.gateway, t.prompt, in, llmx.Options{})
	if err != nil {
		return contractx.RefineOutput{}, err
	}

	out := contractx.RefineOutput{
		Title:       strings.TrimSpace(res.Get("title").String()),
		Description: strings.TrimSpace(res.Get("description").String()),
	}
	if out.Title == "" {
		out.Title = strings.TrimSpace(in.Title)
	}
	if out.Description == "" {
		return contractx.RefineOutput{}, contractx.Unavailable(ErrMalformedCompletion, "refine reply has no description")
	}
	return out, nil
}

type AudienceDefinition struct{ promptedTool }

var _ contractx.AudienceDefinition = (*AudienceDefinition)(nil)

func NewAudienceDefinition(gateway llmx.Gateway, prompt string) (*AudienceDefinition, error) {
	base, err := newPromptedTool(gateway, prompt)
	if err != nil {
		return nil, err
	}
	return &AudienceDefinition{base}, nil
}

func (t *AudienceDefinition) Define(ctx context.Context, in contractx.AudienceInput) (contractx.AudienceOutput, error) {
	if err := requireText("description", in.Description); err != nil {
		return contractx.AudienceOutput{}, err
	}

	res, err := completeJSON(ctx, t.gateway, t.prompt, in, llmx.Options{})
	if err != nil {
		return contractx.AudienceOutput{}, err
	}

	out := contractx.AudienceOutput{
		Segment:  strings.TrimSpace(res.Get("segment").String()),
		Personas: stringList(res.Get("personas")),
	}
	if out.Segment == "" {
		return contractx.AudienceOutput{}, contractx.Unavailable(ErrMalformedCompletion, "audience reply has no segment")
	}
	return out, nil
}

type Caption struct {
	promptedTool
	maxHashtags int
}

var _ contractx.Caption = (*Caption)(nil)

func NewCaption(gateway llmx.Gateway, prompt string, maxHashtags int) (*Caption, error) {
	base, err := newPromptedTool(gateway, prompt)
	if err != nil {
		return nil, err
	}
	if maxHashtags <= 0 {
		maxHashtags = MaxHashtags
	}
	return &Caption{promptedTool: base, maxHashtags: maxHashtags}, nil
}

func (t *Caption) Caption(ctx context.Context, in contractx.CaptionInput) (contractx.CaptionOutput, error) {
	if err := requireText("title", in.Title); err != nil {
		return contractx.CaptionOutput{}, err
	}

	res, err := completeJSON(ctx, t.gateway, t.prompt, in, llmx.Options{})
	if err != nil {
		return contractx.CaptionOutput{}, err
	}

	tags := NormalizeHashtags(stringList(res.Get("hashtags")), t.maxHashtags)
	if tags == "" {
		return contractx.CaptionOutput{}, contractx.Unavailable(ErrMalformedCompletion, "caption reply has no hashtags")
	}
	return contractx.CaptionOutput{Hashtags: tags}, nil
}
