package description

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
	"github.com/tanpawarit/marketplace-listing-agent/agent/prompt"
	"github.com/tanpawarit/marketplace-listing-agent/agent/tool"
)

var ErrEmptyReply = errors.New("model returned an empty reply")

// Product is the seller-supplied input to GenerateDescription.
type Product struct {
	Title       string   `json:"title"`
	Category    string   `json:"category,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Features    []string `json:"features,omitempty"`
	Price       float64  `json:"price,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Preferences string   `json:"preferences,omitempty"`
}

// Prompts are the system prompts for each call.
type Prompts struct {
	Description       string
	RefineDescription string
	Hashtags          string
	CallToAction      string
}

func PromptsFrom(set prompt.PromptSet) Prompts {
	return Prompts{
		Description:       set.Description,
		RefineDescription: set.RefineDescription,
		Hashtags:          set.Hashtags,
		CallToAction:      set.CallToAction,
	}
}

// Copy is the auxiliary text produced for a final description.
type Copy struct {
	Hashtags     string `json:"hashtags"`
	CallToAction string `json:"call_to_action"`
}

// Agent drives description generation. Every method is one gateway
// round-trip; the evolving description is passed in by the caller.
type Agent struct {
	gateway     llmx.Gateway
	prompts     Prompts
	options     llmx.Options
	maxHashtags int
}

type Option func(*Agent)

// WithCompletionOptions sets the hints sent with every text call.
func WithCompletionOptions(opts llmx.Options) Option {
	return func(a *Agent) { a.options = opts }
}

func WithMaxHashtags(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxHashtags = n
		}
	}
}

func New(gateway llmx.Gateway, prompts Prompts, opts ...Option) (*Agent, error) {
	if gateway == nil {
		return nil, errors.New("llm gateway is required")
	}
	if err := prompt.Require(map[string]string{
		"description":        prompts.Description,
		"refine_description": prompts.RefineDescription,
		"hashtags":           prompts.Hashtags,
		"call_to_action":     prompts.CallToAction,
	}); err != nil {
		return nil, err
	}

	a := &Agent{gateway: gateway, prompts: prompts, maxHashtags: tool.MaxHashtags}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

func (a *Agent) GenerateDescription(ctx context.Context, p Product) (string, error) {
	if strings.TrimSpace(p.Title) == "" {
		return "", contractx.InvalidInput("product title is required")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", contractx.Unknown(err, "encode product")
	}
	return a.completeText(ctx, a.prompts.Description, string(raw))
}

// RefineDescription applies feedback to current. The caller decides when to stop.
func (a *Agent) RefineDescription(ctx context.Context, current, feedback string) (string, error) {
	current = strings.TrimSpace(current)
	if current == "" {
		return "", contractx.InvalidInput("current description is required")
	}
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return "", contractx.InvalidInput("feedback is required")
	}

	raw, err := json.Marshal(struct {
		Description string `json:"description"`
		Feedback    string `json:"feedback"`
	}{current, feedback})
	if err != nil {
		return "", contractx.Unknown(err, "encode refinement")
	}
	return a.completeText(ctx, a.prompts.RefineDescription, string(raw))
}

// GenerateHashtags returns normalised '#'-prefixed tags joined by spaces.
func (a *Agent) GenerateHashtags(ctx context.Context, description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", contractx.InvalidInput("description is required")
	}

	reply, err := a.complete(ctx, a.prompts.Hashtags, description, llmx.Options{ResponseFormat: llmx.FormatJSONObject})
	if err != nil {
		return "", err
	}
	res, err := tool.ParseJSONObject(reply)
	if err != nil {
		return "", err
	}

	var raw []string
	for _, v := range res.Get("hashtags").Array() {
		raw = append(raw, v.String())
	}
	tags := tool.NormalizeHashtags(raw, a.maxHashtags)
	if tags == "" {
		return "", contractx.Unavailable(ErrEmptyReply, "hashtag reply has no usable tags")
	}
	return tags, nil
}

func (a *Agent) GenerateCallToAction(ctx context.Context, description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", contractx.InvalidInput("description is required")
	}
	return a.completeText(ctx, a.prompts.CallToAction, description)
}

// Finalize runs the hashtag and call-to-action calls concurrently.
func (a *Agent) Finalize(ctx context.Context, description string) (Copy, error) {
	var out Copy
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tags, err := a.GenerateHashtags(gctx, description)
		out.Hashtags = tags
		return err
	})
	g.Go(func() error {
		cta, err := a.GenerateCallToAction(gctx, description)
		out.CallToAction = cta
		return err
	})
	if err := g.Wait(); err != nil {
		return Copy{}, err
	}
	return out, nil
}

func (a *Agent) completeText(ctx context.Context, system, user string) (string, error) {
	opts := a.options
	opts.ResponseFormat = llmx.FormatText
	return a.complete(ctx, system, user, opts)
}

func (a *Agent) complete(ctx context.Context, system, user string, opts llmx.Options) (string, error) {
	if opts.Temperature == nil {
		opts.Temperature = a.options.Temperature
	}
	if opts.MaxTokens == nil {
		opts.MaxTokens = a.options.MaxTokens
	}

	reply, err := a.gateway.Complete(ctx, []llmx.Message{llmx.SystemText(system), llmx.UserText(user)}, opts)
	if err != nil {
		return "", contractx.Classify(err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", contractx.Unavailable(ErrEmptyReply, "empty completion")
	}
	return reply, nil
}
