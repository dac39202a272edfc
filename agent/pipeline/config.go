package pipeline

import (
	"fmt"
	"time"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

type Config struct {
	MaxRetries     int           `envconfig:"MAX_RETRIES" split_words:"true" default:"2"`
	InitialBackoff time.Duration `envconfig:"INITIAL_BACKOFF" split_words:"true" default:"250ms"`
	Multiplier     float64       `envconfig:"BACKOFF_MULTIPLIER" split_words:"true" default:"2"`
	MaxBackoff     time.Duration `envconfig:"MAX_BACKOFF" split_words:"true" default:"5s"`
	StageTimeout   time.Duration `envconfig:"STAGE_TIMEOUT" split_words:"true" default:"30s"`
	MaxConcurrency int           `envconfig:"MAX_CONCURRENCY" split_words:"true" default:"0"`
}

func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", contractx.ErrValidation)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("%w: backoff multiplier must be >= 1", contractx.ErrValidation)
	}
	if c.StageTimeout < 0 || c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("%w: durations must be >= 0", contractx.ErrValidation)
	}
	return nil
}

// Options turns the config into pipeline options.
func (c Config) Options() []Option {
	return []Option{
		WithRetryPolicy(RetryPolicy{
			MaxRetries:     c.MaxRetries,
			InitialBackoff: c.InitialBackoff,
			Multiplier:     c.Multiplier,
			MaxBackoff:     c.MaxBackoff,
		}),
		WithStageTimeout(c.StageTimeout),
		WithMaxConcurrency(c.MaxConcurrency),
	}
}
