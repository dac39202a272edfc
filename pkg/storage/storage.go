// Package storage holds corrected product photos.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectStorage interface {
	// Upload stores data under key and returns its public URL.
	Upload(ctx context.Context, key, mediaType string, data []byte) (string, error)
	// Presign returns a time-limited URL for key.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	Download(ctx context.Context, key string) ([]byte, string, error)
}

type Config struct {
	PublicBaseURL string        `envconfig:"PUBLIC_BASE_URL" split_words:"true" default:"memory://photos"`
	PresignTTL    time.Duration `envconfig:"PRESIGN_TTL" split_words:"true" default:"15m"`
}

type object struct {
	mediaType string
	data      []byte
}

// MemoryStorage keeps objects in process memory.
type MemoryStorage struct {
	baseURL string
	objects *xsync.MapOf[string, object]
	now     func() time.Time
}

var _ ObjectStorage = (*MemoryStorage)(nil)

func NewMemoryStorage(baseURL string) *MemoryStorage {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "memory://photos"
	}
	return &MemoryStorage{
		baseURL: baseURL,
		objects: xsync.NewMapOf[string, object](),
		now:     time.Now,
	}
}

func (s *MemoryStorage) Upload(ctx context.Context, key, mediaType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("storage key is required")
	}
	s.objects.Store(key, object{mediaType: mediaType, data: append([]byte(nil), data...)})
	return s.URL(key), nil
}

func (s *MemoryStorage) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = strings.Trim(strings.TrimSpace(key), "/")
	if _, ok := s.objects.Load(key); !ok {
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	expires := s.now().Add(ttl).Unix()
	return s.URL(key) + "?expires=" + strconv.FormatInt(expires, 10), nil
}

func (s *MemoryStorage) Download(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	key = strings.Trim(strings.TrimSpace(key), "/")
	obj, ok := s.objects.Load(key)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return append([]byte(nil), obj.data...), obj.mediaType, nil
}

func (s *MemoryStorage) URL(key string) string {
	return s.baseURL + "/" + url.PathEscape(key)
}

// KeyFromURL reverses URL for objects held by s.
func (s *MemoryStorage) KeyFromURL(raw string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(raw, prefix)
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	key, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return key, true
}
