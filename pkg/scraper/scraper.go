package scraper

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

type Config struct {
	Timeout           time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	MaxBodyBytes      int64         `envconfig:"MAX_BODY_BYTES" split_words:"true" default:"1048576"`
	MaxTextRunes      int           `envconfig:"MAX_TEXT_RUNES" split_words:"true" default:"20000"`
	UserAgent         string        `envconfig:"USER_AGENT" split_words:"true" default:"marketplace-listing-agent/1.0"`
	RequestsPerSecond float64       `envconfig:"REQUESTS_PER_SECOND" split_words:"true" default:"2"`
}

// Fetcher downloads a page and reduces it to its title and visible text.
type Fetcher struct {
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxBodyBytes int64
	maxTextRunes int
	userAgent    string
}

var _ contractx.PageFetcher = (*Fetcher)(nil)

func NewFetcher(cfg Config, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	f := &Fetcher{
		httpClient:   httpClient,
		maxBodyBytes: cfg.MaxBodyBytes,
		maxTextRunes: cfg.MaxTextRunes,
		userAgent:    strings.TrimSpace(cfg.UserAgent),
	}
	if f.maxBodyBytes <= 0 {
		f.maxBodyBytes = 1 << 20
	}
	if f.maxTextRunes <= 0 {
		f.maxTextRunes = 20000
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return f
}

func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (contractx.Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return contractx.Page{}, contractx.FromTransport(ctx, err, "scrape rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return contractx.Page{}, contractx.InvalidInput("invalid page url %q: %v", pageURL, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return contractx.Page{}, contractx.FromTransport(ctx, err, "page fetch")
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, f.maxBodyBytes)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return contractx.Page{}, contractx.FromHTTPStatus(resp.StatusCode, string(snippet), nil)
	}
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil &&
		mediaType != "text/html" && mediaType != "application/xhtml+xml" && !strings.HasPrefix(mediaType, "text/") {
		return contractx.Page{}, contractx.InvalidInput("page %s has content type %s", pageURL, mediaType)
	}

	doc, err := html.Parse(body)
	if err != nil {
		return contractx.Page{}, contractx.Unavailable(err, "parse page %s", pageURL)
	}
	title, text := extract(doc, f.maxTextRunes)
	return contractx.Page{URL: pageURL, Title: title, Text: text}, nil
}

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
}

// extract walks the tree once, returning the <title> and whitespace-collapsed
// body text capped at maxRunes.
func extract(doc *html.Node, maxRunes int) (string, string) {
	var (
		title string
		b     strings.Builder
		runes int
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if runes >= maxRunes {
			return
		}
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Title && title == "" && n.FirstChild != nil {
				title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
			}
			if skipped[n.DataAtom] {
				if n.DataAtom == atom.Head {
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						if c.DataAtom == atom.Title {
							walk(c)
						}
					}
				}
				return
			}
		}
		if n.Type == html.TextNode && (n.Parent == nil || n.Parent.DataAtom != atom.Title) {
			for _, w := range strings.Fields(n.Data) {
				if runes >= maxRunes {
					return
				}
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(w)
				runes += len([]rune(w)) + 1
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, b.String()
}
