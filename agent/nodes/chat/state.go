package chatnode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
	"github.com/tanpawarit/marketplace-listing-agent/agent/memory"
)

var (
	ErrInvalidMessage      = errors.New("message is empty")
	ErrInvalidConversation = errors.New("conversation id is empty")
	ErrEmptyReply          = errors.New("assistant reply is empty")
)

type GraphInput struct {
	ConversationID string
	Text           string
}

type GraphOutput struct {
	Reply string
}

type GraphState struct {
	ConversationID string
	Text           string
	Now            time.Time

	Window   []memory.Entry
	Messages []llmx.Message
	Reply    string
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		return nil, invalidTurn(ErrInvalidConversation)
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, invalidTurn(ErrInvalidMessage)
	}

	return &GraphState{
		ConversationID: conversationID,
		Text:           text,
		Now:            nowFn().UTC(),
	}, nil
}

// invalidTurn keeps the sentinel reachable through errors.Is.
func invalidTurn(cause error) *contractx.ToolError {
	return &contractx.ToolError{
		Kind:    contractx.KindInvalidInput,
		Message: "chat turn rejected",
		Cause:   cause,
	}
}
