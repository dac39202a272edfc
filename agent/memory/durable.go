package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

type entryRow struct {
	bun.BaseModel `bun:"table:memory_entries,alias:me"`

	ID             string     `bun:"id,pk"`
	ConversationID string     `bun:"conversation_id,notnull"`
	Role           string     `bun:"role,notnull"`
	Content        string     `bun:"content,notnull"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	ExpiresAt      *time.Time `bun:"expires_at,nullzero"`
}

func rowFromEntry(e Entry) entryRow {
	r := entryRow{
		ID:             e.ID,
		ConversationID: e.ConversationID,
		Role:           string(e.Role),
		Content:        e.Content,
		CreatedAt:      e.CreatedAt.UTC(),
	}
	if !e.ExpiresAt.IsZero() {
		t := e.ExpiresAt.UTC()
		r.ExpiresAt = &t
	}
	return r
}

func (r entryRow) entry() Entry {
	e := Entry{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           llmx.Role(r.Role),
		Content:        r.Content,
		CreatedAt:      r.CreatedAt,
	}
	if r.ExpiresAt != nil {
		e.ExpiresAt = *r.ExpiresAt
	}
	return e
}

// DurableStore is the Postgres tier, written through bun. Inserts are keyed
// on the entry id so re-syncing the same entries is a no-op.
type DurableStore struct {
	db *bun.DB
	settings
}

var (
	_ Durable = (*DurableStore)(nil)
	_ Store   = (*DurableStore)(nil)
)

func NewDurableStore(db *bun.DB, opts ...Option) (*DurableStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &DurableStore{db: db, settings: applyOptions(opts)}, nil
}

// Init creates the entries table when it does not exist yet.
func (s *DurableStore) Init(ctx context.Context) error {
	if _, err := s.createTableQuery().Exec(ctx); err != nil {
		return fmt.Errorf("create memory_entries: %w", err)
	}
	if _, err := s.createIndexQuery().Exec(ctx); err != nil {
		return fmt.Errorf("create memory_entries index: %w", err)
	}
	return nil
}

func (s *DurableStore) Save(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	rows := make([]entryRow, 0, len(entries))
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return 0, err
		}
		rows = append(rows, rowFromEntry(e))
	}

	res, err := s.insertQuery(&rows).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert memory entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *DurableStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.deleteExpiredQuery(now).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired memory entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *DurableStore) Window(ctx context.Context, conversationID string) ([]Entry, error) {
	id, err := checkConversation(conversationID)
	if err != nil {
		return nil, err
	}

	var rows []entryRow
	if err := s.windowQuery(&rows, id, s.now()).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select memory window: %w", err)
	}

	// Query returns newest first so the limit keeps the latest turns.
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.entry()
	}
	return out, nil
}

func (s *DurableStore) Append(ctx context.Context, conversationID string, entries ...Entry) error {
	id, err := checkConversation(conversationID)
	if err != nil {
		return err
	}
	if err := checkEntries(id, entries); err != nil {
		return err
	}
	_, err = s.Save(ctx, entries)
	return err
}

func (s *DurableStore) Delete(ctx context.Context, conversationID string) error {
	id, err := checkConversation(conversationID)
	if err != nil {
		return err
	}
	if _, err := s.deleteConversationQuery(id).Exec(ctx); err != nil {
		return fmt.Errorf("delete memory conversation: %w", err)
	}
	return nil
}

func (s *DurableStore) createTableQuery() *bun.CreateTableQuery {
	return s.db.NewCreateTable().Model((*entryRow)(nil)).IfNotExists()
}

func (s *DurableStore) createIndexQuery() *bun.CreateIndexQuery {
	return s.db.NewCreateIndex().
		Model((*entryRow)(nil)).
		Index("memory_entries_conversation_idx").
		Column("conversation_id", "created_at").
		IfNotExists()
}

func (s *DurableStore) insertQuery(rows *[]entryRow) *bun.InsertQuery {
	return s.db.NewInsert().Model(rows).On("CONFLICT (id) DO NOTHING")
}

func (s *DurableStore) deleteExpiredQuery(now time.Time) *bun.DeleteQuery {
	return s.db.NewDelete().
		Model((*entryRow)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now.UTC())
}

func (s *DurableStore) deleteConversationQuery(id string) *bun.DeleteQuery {
	return s.db.NewDelete().Model((*entryRow)(nil)).Where("conversation_id = ?", id)
}

func (s *DurableStore) windowQuery(rows *[]entryRow, id string, now time.Time) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(rows).
		Where("conversation_id = ?", id).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("expires_at IS NULL").WhereOr("expires_at > ?", now.UTC())
		}).
		OrderExpr("created_at DESC, id DESC").
		Limit(s.windowSize)
}
