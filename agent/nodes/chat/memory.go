package chatnode

import (
	"context"
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
	"github.com/tanpawarit/marketplace-listing-agent/agent/memory"
)

func ReadMemory(
	ctx context.Context,
	in *GraphState,
	store memory.Store,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	window, err := store.Window(ctx, in.ConversationID)
	if err != nil {
		return nil, classifyStore(ctx, err, "read memory window")
	}
	in.Window = window
	return in, nil
}

// WriteMemory appends the user turn and the reply in a single call.
func WriteMemory(
	ctx context.Context,
	in *GraphState,
	store memory.Store,
	ttl time.Duration,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Reply == "" {
		return nil, ErrEmptyReply
	}

	replyAt := in.Now.Add(time.Microsecond)
	err := store.Append(ctx, in.ConversationID,
		memory.NewEntry(in.ConversationID, llmx.RoleUser, in.Text, in.Now, ttl),
		memory.NewEntry(in.ConversationID, llmx.RoleAssistant, in.Reply, replyAt, ttl),
	)
	if err != nil {
		return nil, classifyStore(ctx, err, "write memory")
	}
	return in, nil
}

// classifyStore keeps store ToolErrors and maps anything else as a transport failure.
func classifyStore(ctx context.Context, err error, what string) error {
	var te *contractx.ToolError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, memory.ErrInvalidConversation) || errors.Is(err, memory.ErrInvalidEntry) {
		return &contractx.ToolError{Kind: contractx.KindInvalidInput, Message: what, Cause: err}
	}
	return contractx.FromTransport(ctx, err, what)
}
