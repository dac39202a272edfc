package tool

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

type ValidationRules struct {
	MaxTitleLength       int `envconfig:"MAX_TITLE_LENGTH" split_words:"true" default:"80"`
	MinDescriptionLength int `envconfig:"MIN_DESCRIPTION_LENGTH" split_words:"true" default:"30"`
	MaxDescriptionLength int `envconfig:"MAX_DESCRIPTION_LENGTH" split_words:"true" default:"5000"`
	MaxHashtags          int `envconfig:"MAX_HASHTAGS" split_words:"true" default:"10"`
}

func DefaultValidationRules() ValidationRules {
	return ValidationRules{
		MaxTitleLength:       80,
		MinDescriptionLength: 30,
		MaxDescriptionLength: 5000,
		MaxHashtags:          MaxHashtags,
	}
}

// Validation checks listing content locally; it has no collaborator.
type Validation struct {
	rules ValidationRules
}

var _ contractx.Validation = (*Validation)(nil)

func NewValidation(rules ValidationRules) *Validation {
	d := DefaultValidationRules()
	if rules.MaxTitleLength <= 0 {
		rules.MaxTitleLength = d.MaxTitleLength
	}
	if rules.MinDescriptionLength < 0 {
		rules.MinDescriptionLength = d.MinDescriptionLength
	}
	if rules.MaxDescriptionLength <= 0 {
		rules.MaxDescriptionLength = d.MaxDescriptionLength
	}
	if rules.MaxHashtags <= 0 {
		rules.MaxHashtags = d.MaxHashtags
	}
	return &Validation{rules: rules}
}

// Validate fails with InvalidInput listing every violated rule. Soft issues
// come back as warnings on a passing result.
func (t *Validation) Validate(ctx context.Context, in contractx.ValidationInput) (contractx.ValidationOutput, error) {
	if err := ctx.Err(); err != nil {
		return contractx.ValidationOutput{}, contractx.FromTransport(ctx, err, "validation")
	}

	var violations, warnings []string

	title := strings.TrimSpace(in.Title)
	switch n := utf8.RuneCountInString(title); {
	case n == 0:
		violations = append(violations, "title is empty")
	case n > t.rules.MaxTitleLength:
		violations = append(violations, fmt.Sprintf("title has %d characters, limit %d", n, t.rules.MaxTitleLength))
	}

	desc := strings.TrimSpace(in.Description)
	switch n := utf8.RuneCountInString(desc); {
	case n < t.rules.MinDescriptionLength:
		violations = append(violations, fmt.Sprintf("description has %d characters, minimum %d", n, t.rules.MinDescriptionLength))
	case n > t.rules.MaxDescriptionLength:
		violations = append(violations, fmt.Sprintf("description has %d characters, limit %d", n, t.rules.MaxDescriptionLength))
	}

	if in.Price <= 0 {
		violations = append(violations, "price must be positive")
	}
	if strings.TrimSpace(in.Currency) == "" {
		violations = append(violations, "currency is required")
	}
	if len(in.Photos) == 0 {
		violations = append(violations, "at least one photo is required")
	}

	switch n := CountHashtags(in.Hashtags); {
	case n > t.rules.MaxHashtags:
		violations = append(violations, fmt.Sprintf("%d hashtags, limit %d", n, t.rules.MaxHashtags))
	case n == 0:
		warnings = append(warnings, "listing has no hashtags")
	}

	if len(violations) > 0 {
		return contractx.ValidationOutput{}, contractx.InvalidInput("listing failed validation: %s", strings.Join(violations, "; "))
	}
	return contractx.ValidationOutput{Passed: true, Warnings: warnings}, nil
}
