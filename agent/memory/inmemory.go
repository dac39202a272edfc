package memory

import (
	"context"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type conversation struct {
	entries   []Entry
	expiresAt time.Time
}

type blob struct {
	data      string
	expiresAt time.Time
}

func expiredAt(deadline, now time.Time) bool {
	return !deadline.IsZero() && !now.Before(deadline)
}

// InMemoryStore is a process-local memory store with the same window and ttl
// policy as RedisStore. Per-key atomicity comes from xsync Compute.
type InMemoryStore struct {
	turns *xsync.MapOf[string, conversation]
	blobs *xsync.MapOf[string, blob]
	settings
}

var (
	_ Ephemeral = (*InMemoryStore)(nil)
	_ KV        = (*InMemoryStore)(nil)
)

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	return &InMemoryStore{
		turns:    xsync.NewMapOf[string, conversation](),
		blobs:    xsync.NewMapOf[string, blob](),
		settings: applyOptions(opts),
	}
}

func (s *InMemoryStore) Window(ctx context.Context, conversationID string) ([]Entry, error) {
	id, err := checkConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	c, ok := s.turns.Load(id)
	if !ok || expiredAt(c.expiresAt, now) {
		return []Entry{}, nil
	}
	return lastN(liveEntries(c.entries, now), s.windowSize), nil
}

func (s *InMemoryStore) Append(ctx context.Context, conversationID string, entries ...Entry) error {
	id, err := checkConversation(conversationID)
	if err != nil {
		return err
	}
	if err := checkEntries(id, entries); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now()
	s.turns.Compute(id, func(old conversation, loaded bool) (conversation, bool) {
		if loaded && expiredAt(old.expiresAt, now) {
			old = conversation{}
		}
		next := make([]Entry, 0, len(old.entries)+len(entries))
		next = append(next, old.entries...)
		next = append(next, entries...)
		c := conversation{entries: lastN(next, s.windowSize), expiresAt: old.expiresAt}
		if s.ttl > 0 {
			c.expiresAt = now.Add(s.ttl)
		}
		return c, false
	})
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, conversationID string) error {
	id, err := checkConversation(conversationID)
	if err != nil {
		return err
	}
	s.turns.Delete(id)
	s.blobs.Delete(id)
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, conversationID string) (string, bool, error) {
	id, err := checkConversation(conversationID)
	if err != nil {
		return "", false, err
	}
	b, ok := s.blobs.Load(id)
	if !ok || expiredAt(b.expiresAt, s.now()) {
		return "", false, nil
	}
	return b.data, true, nil
}

func (s *InMemoryStore) Store(ctx context.Context, conversationID, data string, ttl time.Duration) error {
	id, err := checkConversation(conversationID)
	if err != nil {
		return err
	}
	b := blob{data: data}
	if ttl > 0 {
		b.expiresAt = s.now().Add(ttl)
	}
	s.blobs.Store(id, b)
	return nil
}

func (s *InMemoryStore) Conversations(ctx context.Context) ([]string, error) {
	var ids []string
	s.turns.Range(func(id string, _ conversation) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	return ids, ctx.Err()
}

func (s *InMemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.Conversations(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		s.turns.Compute(id, func(old conversation, loaded bool) (conversation, bool) {
			if !loaded {
				return old, true
			}
			if expiredAt(old.expiresAt, now) {
				removed += len(old.entries)
				return conversation{}, true
			}
			live := liveEntries(old.entries, now)
			removed += len(old.entries) - len(live)
			old.entries = live
			return old, len(live) == 0
		})
	}

	s.blobs.Range(func(id string, b blob) bool {
		if expiredAt(b.expiresAt, now) {
			s.blobs.Delete(id)
		}
		return true
	})
	return removed, nil
}
