package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
	"github.com/tanpawarit/marketplace-listing-agent/agent/memory"
	nodex "github.com/tanpawarit/marketplace-listing-agent/agent/nodes/chat"
)

var (
	ErrInvalidMessage      = nodex.ErrInvalidMessage
	ErrInvalidConversation = nodex.ErrInvalidConversation
)

const defaultEntryTTL = 24 * time.Hour

// Agent answers one turn at a time on top of a bounded memory window.
type Agent struct {
	gateway  llmx.Gateway
	memory   memory.Store
	preamble string
	options  llmx.Options
	ttl      time.Duration
	now      func() time.Time

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]
}

type Option func(*Agent)

func WithCompletionOptions(opts llmx.Options) Option {
	return func(a *Agent) { a.options = opts }
}

// WithEntryTTL sets the expiry stamped on new entries; 0 disables it.
func WithEntryTTL(ttl time.Duration) Option {
	return func(a *Agent) {
		if ttl >= 0 {
			a.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

func New(gateway llmx.Gateway, store memory.Store, preamble string, opts ...Option) (*Agent, error) {
	if gateway == nil {
		return nil, errors.New("llm gateway is required")
	}
	if store == nil {
		return nil, errors.New("memory store is required")
	}
	if strings.TrimSpace(preamble) == "" {
		return nil, contractx.ErrPromptMissing
	}

	a := &Agent{
		gateway:  gateway,
		memory:   store,
		preamble: preamble,
		ttl:      defaultEntryTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	graphRunner, err := a.compileNextTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	a.graphRunner = graphRunner

	return a, nil
}

// NextTurn returns the assistant reply. Nothing is written to memory unless
// the completion succeeded.
func (a *Agent) NextTurn(ctx context.Context, conversationID, userMessage string) (string, error) {
	out, err := a.graphRunner.Invoke(ctx, nodex.GraphInput{
		ConversationID: conversationID,
		Text:           userMessage,
	})
	if err != nil {
		return "", unwrapGraphError(err)
	}
	return out.Reply, nil
}

// unwrapGraphError prefers the node's own ToolError over the graph wrapper;
// anything else is classified so callers always get a *ToolError.
func unwrapGraphError(err error) error {
	return contractx.Classify(err)
}
