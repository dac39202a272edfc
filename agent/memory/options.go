package memory

import (
	"strings"
	"time"
)

type Config struct {
	KeyPrefix  string        `envconfig:"KEY_PREFIX" split_words:"true" default:"mla:memory:"`
	WindowSize int           `envconfig:"WINDOW_SIZE" split_words:"true" default:"20"`
	TTL        time.Duration `envconfig:"TTL" split_words:"true" default:"24h"`
}

type settings struct {
	keyPrefix  string
	windowSize int
	ttl        time.Duration
	now        func() time.Time
}

func defaultSettings() settings {
	return settings{
		keyPrefix:  defaultKeyPrefix,
		windowSize: defaultWindowSize,
		ttl:        defaultTTL,
		now:        time.Now,
	}
}

// Option customizes any of the memory stores.
type Option func(*settings)

func WithConfig(cfg Config) Option {
	return func(s *settings) {
		WithKeyPrefix(cfg.KeyPrefix)(s)
		WithWindowSize(cfg.WindowSize)(s)
		WithTTL(cfg.TTL)(s)
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(s *settings) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

// WithWindowSize bounds how many of the newest entries a conversation keeps.
func WithWindowSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.windowSize = n
		}
	}
}

// WithTTL sets the key expiry refreshed on every append; 0 disables it.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func applyOptions(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

func (s settings) turnsKey(conversationID string) string {
	return s.keyPrefix + "conv:" + conversationID + ":turns"
}

func (s settings) blobKey(conversationID string) string {
	return s.keyPrefix + "conv:" + conversationID + ":blob"
}

func (s settings) conversationFromTurnsKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, s.keyPrefix+"conv:")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ":turns")
	return id, ok && id != ""
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
