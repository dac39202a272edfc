package tool

import (
	"context"
	"errors"
	"math"
	"strings"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

type MarketAnalysis struct {
	gateway llmx.Gateway
	prompt  string
	rule    PricingRule
}

var _ contractx.MarketAnalysis = (*MarketAnalysis)(nil)

func NewMarketAnalysis(gateway llmx.Gateway, prompt string, rule PricingRule) (*MarketAnalysis, error) {
	if gateway == nil {
		return nil, errors.New("llm gateway is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	if rule.source == "" {
		var err error
		if rule, err = ParsePricingRule(DefaultPricingRule); err != nil {
			return nil, err
		}
	}
	return &MarketAnalysis{gateway: gateway, prompt: prompt, rule: rule}, nil
}

// Analyze merges whatever research is available into a price. The pricing
// rule over competitor statistics covers a missing or non-positive model price.
func (t *MarketAnalysis) Analyze(ctx context.Context, in contractx.MarketAnalysisInput) (contractx.MarketAnalysisOutput, error) {
	if err := requireText("title", in.Title); err != nil {
		return contractx.MarketAnalysisOutput{}, err
	}
	if err := requireText("currency", in.Currency); err != nil {
		return contractx.MarketAnalysisOutput{}, err
	}

	var (
		prices  []float64
		sources []string
	)
	if in.Competitors != nil {
		for _, c := range in.Competitors.Competitors {
			if sameCurrency(c.Currency, in.Currency) {
				prices = append(prices, c.Price)
			}
		}
		sources = append(sources, NameWebScraper)
	}
	if in.ReverseMatches != nil {
		for _, m := range in.ReverseMatches.Matches {
			if m.Price != nil && sameCurrency(m.Currency, in.Currency) {
				prices = append(prices, *m.Price)
			}
		}
		sources = append(sources, NameReverseImageSearch)
	}
	stats := NewPriceStats(prices)

	payload := struct {
		Input contractx.MarketAnalysisInput `json:"product"`
		Stats struct {
			Count  int     `json:"count"`
			Min    float64 `json:"min"`
			Max    float64 `json:"max"`
			Mean   float64 `json:"mean"`
			Median float64 `json:"median"`
		} `json:"price_stats"`
	}{Input: in}
	payload.Stats.Count = stats.Count
	payload.Stats.Min = stats.Min
	payload.Stats.Max = stats.Max
	payload.Stats.Mean = round2(stats.Mean)
	payload.Stats.Median = stats.Median

	res, err := completeJSON(ctx, t.gateway, t.prompt, payload, llmx.Options{})
	if err != nil {
		return contractx.MarketAnalysisOutput{}, err
	}

	out := contractx.MarketAnalysisOutput{
		RecommendedPrice: round2(res.Get("recommended_price").Float()),
		Currency:         strings.ToUpper(strings.TrimSpace(in.Currency)),
		Rationale:        strings.TrimSpace(res.Get("rationale").String()),
		SourcesUsed:      sources,
		Partial:          in.Competitors == nil || in.ReverseMatches == nil,
	}
	if out.SourcesUsed == nil {
		out.SourcesUsed = []string{}
	}

	if out.RecommendedPrice <= 0 {
		price, ok := t.rule.Apply(stats)
		if !ok {
			return contractx.MarketAnalysisOutput{}, contractx.Unavailable(nil, "no price signal from model or competitors")
		}
		out.RecommendedPrice = price
		out.Rationale = "derived from competitor prices with rule " + t.rule.String()
	}
	return out, nil
}

func sameCurrency(observed, want string) bool {
	return observed == "" || strings.EqualFold(observed, want)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
