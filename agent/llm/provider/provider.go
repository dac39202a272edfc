// Package provider builds the configured llm.Gateway for a caller purpose.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
	anthropicgw "github.com/tanpawarit/marketplace-listing-agent/agent/llm/anthropic"
	einogw "github.com/tanpawarit/marketplace-listing-agent/agent/llm/eino"
	openaigw "github.com/tanpawarit/marketplace-listing-agent/agent/llm/openai"
	openrouterx "github.com/tanpawarit/marketplace-listing-agent/pkg/openrouter"
)

// Limiter returns the shared client-side limiter for cfg, or nil when disabled.
func Limiter(cfg llmx.Config) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
}

// New builds a gateway for purpose. Pass the same limiter to every purpose
// so they share one budget against the provider.
func New(ctx context.Context, cfg llmx.Config, purpose llmx.Purpose, limiter *rate.Limiter) (llmx.Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	modelName, temp := cfg.ModelFor(purpose)
	var (
		gw  llmx.Gateway
		err error
	)

	switch cfg.Provider {
	case llmx.ProviderOpenAI:
		client := openrouterx.NewClient(cfg.OpenRouterFor(purpose))
		gw, err = openaigw.New(client, func(o *openaigw.Options) {
			o.Model = modelName
			o.Temperature = float64(temp)
			o.MaxCompletionTokens = int64(cfg.MaxCompletionToken)
		})
	case llmx.ProviderOpenRouter:
		orCfg := cfg.OpenRouterFor(purpose)
		chatModel, buildErr := orCfg.New(ctx)
		if buildErr != nil {
			return nil, buildErr
		}
		gw, err = einogw.New(chatModel)
	case llmx.ProviderAnthropic:
		opts := []anthropicopt.RequestOption{
			anthropicopt.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
			anthropicopt.WithMaxRetries(0),
		}
		if base := strings.TrimRight(cfg.AnthropicBaseURL, "/"); base != "" {
			opts = append(opts, anthropicopt.WithBaseURL(base))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, anthropicopt.WithRequestTimeout(cfg.Timeout))
		}
		client := anthropic.NewClient(opts...)
		gw, err = anthropicgw.New(&client, func(o *anthropicgw.Options) {
			o.Model = anthropic.Model(modelName)
			o.Temperature = float64(temp)
			o.MaxTokens = int64(cfg.MaxCompletionToken)
		})
	default:
		return nil, fmt.Errorf("llm provider %q is not supported", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s gateway for %s: %w", cfg.Provider, purpose, err)
	}

	return llmx.RateLimited(gw, limiter), nil
}
