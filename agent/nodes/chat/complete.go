package chatnode

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

// ComposeMessages builds [system] + window oldest-first + current user turn.
func ComposeMessages(in *GraphState, systemPrompt string) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	messages := make([]llmx.Message, 0, len(in.Window)+2)
	if p := strings.TrimSpace(systemPrompt); p != "" {
		messages = append(messages, llmx.SystemText(p))
	}
	for _, e := range in.Window {
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		switch e.Role {
		case llmx.RoleUser:
			messages = append(messages, llmx.UserText(e.Content))
		case llmx.RoleAssistant:
			messages = append(messages, llmx.AssistantText(e.Content))
		}
	}
	messages = append(messages, llmx.UserText(in.Text))

	in.Messages = messages
	return in, nil
}

func Complete(
	ctx context.Context,
	in *GraphState,
	gateway llmx.Gateway,
	opts llmx.Options,
) (*GraphState, error) {
	if in == nil || len(in.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages to complete", contractx.ErrValidation)
	}

	reply, err := gateway.Complete(ctx, in.Messages, opts)
	if err != nil {
		return nil, contractx.Classify(err)
	}
	in.Reply = strings.TrimSpace(reply)
	if in.Reply == "" {
		return nil, contractx.Unavailable(ErrEmptyReply, "chat completion is empty")
	}
	return in, nil
}

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return GraphOutput{}, ErrEmptyReply
	}
	return GraphOutput{Reply: reply}, nil
}
