package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

const maxResponseSizeBytes = 2 << 20

type Config struct {
	BaseURL    string        `envconfig:"BASE_URL" split_words:"true" required:"true"`
	APIKey     string        `envconfig:"API_KEY" split_words:"true"`
	MaxResults int           `envconfig:"MAX_RESULTS" split_words:"true" default:"10"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Client talks to a JSON search API exposing /search and /reverse-image.
type Client struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
}

var _ contractx.SearchBackend = (*Client)(nil)

func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("search base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid search url: %w", err)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		maxResults: maxResults,
		httpClient: httpClient,
	}, nil
}

func MustNew(cfg Config, httpClient *http.Client) *Client {
	c, err := NewClient(cfg, httpClient)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Client) Search(ctx context.Context, query string) ([]contractx.SearchMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, contractx.InvalidInput("search query is empty")
	}
	return c.get(ctx, "/search", url.Values{"q": {query}}, "search")
}

func (c *Client) ReverseImage(ctx context.Context, imageURL string) ([]contractx.SearchMatch, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, contractx.InvalidInput("image url is empty")
	}
	return c.get(ctx, "/reverse-image", url.Values{"image_url": {imageURL}}, "reverse image search")
}

func (c *Client) get(ctx context.Context, path string, params url.Values, what string) ([]contractx.SearchMatch, error) {
	params.Set("limit", strconv.Itoa(c.maxResults))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, contractx.Unknown(err, "build %s request", what)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, contractx.FromTransport(ctx, err, what)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, contractx.FromTransport(ctx, err, what)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, contractx.FromHTTPStatus(resp.StatusCode, string(raw), nil)
	}
	if !gjson.ValidBytes(raw) {
		return nil, contractx.Unavailable(nil, "%s returned invalid json", what)
	}
	return parseMatches(gjson.GetBytes(raw, "results")), nil
}

func parseMatches(results gjson.Result) []contractx.SearchMatch {
	matches := make([]contractx.SearchMatch, 0, len(results.Array()))
	for _, r := range results.Array() {
		m := contractx.SearchMatch{
			Title:    strings.TrimSpace(r.Get("title").String()),
			URL:      strings.TrimSpace(r.Get("url").String()),
			Snippet:  strings.TrimSpace(r.Get("snippet").String()),
			Source:   strings.TrimSpace(r.Get("source").String()),
			Currency: strings.ToUpper(strings.TrimSpace(r.Get("currency").String())),
		}
		if m.URL == "" {
			continue
		}
		if m.Source == "" {
			if u, err := url.Parse(m.URL); err == nil {
				m.Source = u.Hostname()
			}
		}
		if p := r.Get("price"); p.Exists() && p.Float() > 0 {
			v := p.Float()
			m.Price = &v
		}
		matches = append(matches, m)
	}
	return matches
}
