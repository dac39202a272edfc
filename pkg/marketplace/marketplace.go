package marketplace

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

	"github.com/tidwall/gjson"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

const maxResponseSizeBytes = 1 << 20

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

// Client publishes listings over the marketplace REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

var _ contractx.Marketplace = (*Client)(nil)

func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("marketplace base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid marketplace url: %w", err)
	}

	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, now: time.Now}, nil
}

func MustNew(cfg Config, httpClient *http.Client) *Client {
	c, err := NewClient(cfg, httpClient)
	if err != nil {
		panic(err)
	}
	return c
}

// CreateListing POSTs /v1/listings. Business-rule refusals come back as
// UpstreamRejected with the body's code and reason in Detail.
func (c *Client) CreateListing(ctx context.Context, credential string, listing contractx.Listing) (contractx.PublishOutput, error) {
	body, err := json.Marshal(listing)
	if err != nil {
		return contractx.PublishOutput{}, contractx.InvalidInput("encode listing: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/listings", bytes.NewReader(body))
	if err != nil {
		return contractx.PublishOutput{}, contractx.Unknown(err, "build marketplace request")
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(credential))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if listing.SKU != "" {
		req.Header.Set("Idempotency-Key", listing.SKU)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contractx.PublishOutput{}, contractx.FromTransport(ctx, err, "marketplace request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return contractx.PublishOutput{}, contractx.FromTransport(ctx, err, "read marketplace response")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contractx.PublishOutput{}, contractx.FromHTTPStatus(resp.StatusCode, string(raw), rejectionDetail(raw))
	}

	res := gjson.ParseBytes(raw)
	out := contractx.PublishOutput{
		ListingID: firstString(res, "id", "listing_id"),
		URL:       firstString(res, "url", "permalink"),
		CreatedAt: c.now().UTC(),
	}
	if ts := res.Get("created_at"); ts.Exists() {
		if t, err := time.Parse(time.RFC3339, ts.String()); err == nil {
			out.CreatedAt = t.UTC()
		}
	}
	return out, nil
}

func rejectionDetail(raw []byte) map[string]string {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	res := gjson.ParseBytes(raw)
	if e := res.Get("error"); e.IsObject() {
		res = e
	}
	detail := make(map[string]string)
	for _, field := range []string{"code", "reason", "field"} {
		if v := strings.TrimSpace(res.Get(field).String()); v != "" {
			detail[field] = v
		}
	}
	if len(detail) == 0 {
		return nil
	}
	return detail
}

func firstString(res gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := strings.TrimSpace(res.Get(p).String()); v != "" {
			return v
		}
	}
	return ""
}
