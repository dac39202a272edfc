package llm

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

type rateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

// RateLimited throttles calls to next. A nil limiter returns next unchanged.
func RateLimited(next Gateway, limiter *rate.Limiter) Gateway {
	if limiter == nil {
		return next
	}
	return &rateLimited{next: next, limiter: limiter}
}

func (r *rateLimited) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == nil {
			// Wait also fails fast when the deadline would pass before a token frees up.
			return "", contractx.Timeout(err, "rate limit wait")
		}
		return "", contractx.Unknown(err, "rate limit wait aborted")
	}
	return r.next.Complete(ctx, messages, opts)
}
