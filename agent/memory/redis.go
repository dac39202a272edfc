package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	maxWatchRetries = 5
	scanBatchSize   = 100
)

// RedisStore keeps each conversation as a capped redis list of JSON entries
// plus an optional blob key for the KV view.
type RedisStore struct {
	client redis.UniversalClient
	settings
}

var (
	_ Ephemeral = (*RedisStore)(nil)
	_ KV        = (*RedisStore)(nil)
)

func NewRedisStore(client redis.UniversalClient, opts ...Option) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisStore{client: client, settings: applyOptions(opts)}, nil
}

func (s *RedisStore) Window(ctx context.Context, conversationID string) ([]Entry, error) {
	id, err := checkConversation(conversationID)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, s.turnsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis memory window: %w", err)
	}
	entries, _ := decodeEntries(id, raw)
	return lastN(liveEntries(entries, s.now()), s.windowSize), nil
}

// Append pushes entries, trims the list to the window and refreshes the ttl
// inside one MULTI/EXEC.
func (s *RedisStore) Append(ctx context.Context, conversationID string, entries ...Entry) error {
	id, err := checkConversation(conversationID)
	if err != nil {
		return err
	}
	if err := checkEntries(id, entries); err != nil {
		return err
	}
	values, err := encodeEntries(entries)
	if err != nil {
		return err
	}

	key := s.turnsKey(id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -int64(s.windowSize), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis memory append: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	id, err := checkConversation(conversationID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.turnsKey(id), s.blobKey(id)).Err(); err != nil {
		return fmt.Errorf("redis memory delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, conversationID string) (string, bool, error) {
	id, err := checkConversation(conversationID)
	if err != nil {
		return "", false, err
	}
	v, err := s.client.Get(ctx, s.blobKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis memory get: %w", err)
	}
	return v, true, nil
}

// Store overwrites the blob; ttl <= 0 keeps it until deleted.
func (s *RedisStore) Store(ctx context.Context, conversationID, data string, ttl time.Duration) error {
	id, err := checkConversation(conversationID)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.blobKey(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis memory store: %w", err)
	}
	return nil
}

func (s *RedisStore) Conversations(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		ids    []string
		seen   = make(map[string]bool)
	)
	match := s.keyPrefix + "conv:*:turns"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("redis memory scan: %w", err)
		}
		for _, k := range keys {
			if id, ok := s.conversationFromTurnsKey(k); ok && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}

// PurgeExpired rewrites every conversation list without its expired or
// undecodable entries and reports how many were dropped.
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.Conversations(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		n, err := s.purgeConversation(ctx, id, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *RedisStore) purgeConversation(ctx context.Context, id string, now time.Time) (int, error) {
	key := s.turnsKey(id)
	var removed int

	txf := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		entries, kept := decodeEntries(id, raw)
		keep := make([]any, 0, len(entries))
		for i, e := range entries {
			if !e.Expired(now) {
				keep = append(keep, kept[i])
			}
		}
		removed = len(raw) - len(keep)
		if removed == 0 {
			return nil
		}

		ttl, err := tx.PTTL(ctx, key).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(keep) > 0 {
				pipe.RPush(ctx, key, keep...)
				if ttl > 0 {
					pipe.PExpire(ctx, key, ttl)
				}
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("redis memory purge %s: %w", id, err)
		}
		return removed, nil
	}
	return 0, fmt.Errorf("redis memory purge %s: %w", id, redis.TxFailedErr)
}

func encodeEntries(entries []Entry) ([]any, error) {
	values := make([]any, 0, len(entries))
	for _, e := range entries {
		e.CreatedAt = e.CreatedAt.UTC()
		if !e.ExpiresAt.IsZero() {
			e.ExpiresAt = e.ExpiresAt.UTC()
		}
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal memory entry: %w", err)
		}
		values = append(values, string(raw))
	}
	return values, nil
}

// decodeEntries returns the decodable entries and their raw encodings,
// index-aligned. Corrupt items are logged and skipped.
func decodeEntries(conversationID string, raw []string) ([]Entry, []string) {
	entries := make([]Entry, 0, len(raw))
	kept := make([]string, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("skipping undecodable memory entry")
			continue
		}
		entries = append(entries, e)
		kept = append(kept, item)
	}
	return entries, kept
}
