package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

var (
	ErrInvalidConversation = errors.New("conversation id is empty")
	ErrInvalidEntry        = errors.New("memory entry is invalid")
)

const (
	defaultKeyPrefix  = "mla:memory:"
	defaultWindowSize = 20
	defaultTTL        = 24 * time.Hour
)

// Entry is one persisted conversation turn. Entries are append-only.
type Entry struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           llmx.Role `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// NewEntry stamps a fresh entry. A ttl <= 0 means the entry never expires.
func NewEntry(conversationID string, role llmx.Role, content string, now time.Time, ttl time.Duration) Entry {
	e := Entry{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now.UTC(),
	}
	if ttl > 0 {
		e.ExpiresAt = e.CreatedAt.Add(ttl)
	}
	return e
}

// Expired reports whether the entry must be treated as absent at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.Join(ErrInvalidEntry, errors.New("id is empty"))
	}
	if strings.TrimSpace(e.ConversationID) == "" {
		return errors.Join(ErrInvalidEntry, ErrInvalidConversation)
	}
	switch e.Role {
	case llmx.RoleUser, llmx.RoleAssistant, llmx.RoleSystem:
	default:
		return errors.Join(ErrInvalidEntry, llmx.ErrInvalidRole)
	}
	return nil
}

// Store is the memory-store contract the chat agent relies on. Each call is
// atomic for its conversation key; expired entries never appear in Window.
type Store interface {
	// Window returns the live entries for a conversation, oldest first,
	// bounded by the store's own size policy.
	Window(ctx context.Context, conversationID string) ([]Entry, error)
	// Append adds all entries in one atomic write.
	Append(ctx context.Context, conversationID string, entries ...Entry) error
	Delete(ctx context.Context, conversationID string) error
}

// KV is the raw per-conversation blob view of a memory store. Get reports
// false once the ttl has passed.
type KV interface {
	Get(ctx context.Context, conversationID string) (string, bool, error)
	Store(ctx context.Context, conversationID, data string, ttl time.Duration) error
	Delete(ctx context.Context, conversationID string) error
}

// Ephemeral is a cache-tier store the reconciler can walk and prune.
type Ephemeral interface {
	Store
	Conversations(ctx context.Context) ([]string, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Durable is the long-term tier. Save must be idempotent on Entry.ID.
type Durable interface {
	Save(ctx context.Context, entries []Entry) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

func checkConversation(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidConversation
	}
	return id, nil
}

func checkEntries(conversationID string, entries []Entry) error {
	if len(entries) == 0 {
		return errors.Join(ErrInvalidEntry, errors.New("no entries to append"))
	}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return err
		}
		if e.ConversationID != conversationID {
			return errors.Join(ErrInvalidEntry, errors.New("entry belongs to another conversation"))
		}
	}
	return nil
}

func liveEntries(entries []Entry, now time.Time) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Expired(now) {
			out = append(out, e)
		}
	}
	return out
}

func lastN(entries []Entry, n int) []Entry {
	if n > 0 && len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}
