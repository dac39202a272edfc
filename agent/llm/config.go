package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	openrouterx "github.com/tanpawarit/marketplace-listing-agent/pkg/openrouter"
)

// Purpose selects per-caller model overrides.
type Purpose string

const (
	PurposeVision      Purpose = "vision"
	PurposeListing     Purpose = "listing"
	PurposeDescription Purpose = "description"
	PurposeChat        Purpose = "chat"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter-eino"
	ProviderAnthropic  = "anthropic"
)

type Config struct {
	Provider           string        `envconfig:"PROVIDER" split_words:"true" default:"openai"`
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	// AnthropicBaseURL is only read by the anthropic provider; empty uses the SDK default.
	AnthropicBaseURL string `envconfig:"ANTHROPIC_BASE_URL" split_words:"true"`

	// RequestsPerSecond <= 0 disables client-side rate limiting.
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" split_words:"true" default:"0"`
	Burst             int     `envconfig:"BURST" split_words:"true" default:"1"`

	VisionModel            string  `envconfig:"VISION_MODEL" split_words:"true"`
	ListingModel           string  `envconfig:"LISTING_MODEL" split_words:"true"`
	DescriptionModel       string  `envconfig:"DESCRIPTION_MODEL" split_words:"true"`
	ChatModel              string  `envconfig:"CHAT_MODEL" split_words:"true"`
	VisionTemperature      float32 `envconfig:"VISION_TEMPERATURE" split_words:"true" default:"-1"`
	ListingTemperature     float32 `envconfig:"LISTING_TEMPERATURE" split_words:"true" default:"-1"`
	DescriptionTemperature float32 `envconfig:"DESCRIPTION_TEMPERATURE" split_words:"true" default:"-1"`
	ChatTemperature        float32 `envconfig:"CHAT_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	switch c.Provider {
	case ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic:
	default:
		return fmt.Errorf("%w: unsupported llm provider=%q", contractx.ErrValidation, c.Provider)
	}
	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		return fmt.Errorf("%w: burst must be >= 1 when rate limiting", contractx.ErrValidation)
	}
	return nil
}

// ModelFor resolves the model name and temperature for purpose.
func (c Config) ModelFor(purpose Purpose) (string, float32) {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(m string, t float32) {
		if v := strings.TrimSpace(m); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch purpose {
	case PurposeVision:
		override(c.VisionModel, c.VisionTemperature)
	case PurposeListing:
		override(c.ListingModel, c.ListingTemperature)
	case PurposeDescription:
		override(c.DescriptionModel, c.DescriptionTemperature)
	case PurposeChat:
		override(c.ChatModel, c.ChatTemperature)
	}
	return modelName, temp
}

func (c Config) OpenRouterFor(purpose Purpose) openrouterx.Config {
	modelName, temp := c.ModelFor(purpose)
	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
