package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 2 << 20

type UpstashConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// UpstashStore is the memory store over the Upstash Redis REST API. Appends
// use the /multi-exec endpoint so push, trim and expire land together.
type UpstashStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	settings
}

var (
	_ Store = (*UpstashStore)(nil)
	_ KV    = (*UpstashStore)(nil)
)

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstashStore(cfg UpstashConfig, httpClient *http.Client, opts ...Option) (*UpstashStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &UpstashStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		settings:   applyOptions(opts),
	}, nil
}

func (s *UpstashStore) Window(ctx context.Context, conversationID string) ([]Entry, error) {
	id, err := checkConversation(conversationID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"LRANGE", s.turnsKey(id), 0, -1})
	if err != nil {
		return nil, err
	}

	var raw []string
	if result := bytes.TrimSpace(resp.Result); len(result) > 0 && !bytes.Equal(result, []byte("null")) {
		if err := json.Unmarshal(result, &raw); err != nil {
			return nil, fmt.Errorf("decode memory window: %w", err)
		}
	}
	entries, _ := decodeEntries(id, raw)
	return lastN(liveEntries(entries, s.now()), s.windowSize), nil
}

func (s *UpstashStore) Append(ctx context.Context, conversationID string, entries ...Entry) error {
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
	push := append([]any{"RPUSH", key}, values...)
	commands := [][]any{
		push,
		{"LTRIM", key, -s.windowSize, -1},
	}
	if s.ttl > 0 {
		commands = append(commands, []any{"EXPIRE", key, ttlSeconds(s.ttl)})
	}
	return s.multiExec(ctx, commands)
}

func (s *UpstashStore) Delete(ctx context.Context, conversationID string) error {
	id, err := checkConversation(conversationID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, []any{"DEL", s.turnsKey(id), s.blobKey(id)})
	return err
}

func (s *UpstashStore) Get(ctx context.Context, conversationID string) (string, bool, error) {
	id, err := checkConversation(conversationID)
	if err != nil {
		return "", false, err
	}

	resp, err := s.exec(ctx, []any{"GET", s.blobKey(id)})
	if err != nil {
		return "", false, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return "", false, nil
	}
	var data string
	if err := json.Unmarshal(result, &data); err != nil {
		return "", false, fmt.Errorf("decode memory blob: %w", err)
	}
	return data, true, nil
}

func (s *UpstashStore) Store(ctx context.Context, conversationID, data string, ttl time.Duration) error {
	id, err := checkConversation(conversationID)
	if err != nil {
		return err
	}
	cmd := []any{"SET", s.blobKey(id), data}
	if ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(ttl))
	}
	_, err = s.exec(ctx, cmd)
	return err
}

func (s *UpstashStore) exec(ctx context.Context, command []any) (*restResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}
	raw, err := s.post(ctx, s.baseURL, command)
	if err != nil {
		return nil, err
	}

	var parsed restResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func (s *UpstashStore) multiExec(ctx context.Context, commands [][]any) error {
	raw, err := s.post(ctx, s.baseURL+"/multi-exec", commands)
	if err != nil {
		return err
	}

	var parsed []restResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode redis transaction response: %w", err)
	}
	for i, r := range parsed {
		if r.Error != "" {
			return fmt.Errorf("redis transaction command %d: %s", i, r.Error)
		}
	}
	return nil
}

func (s *UpstashStore) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
