package tool

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

const defaultScrapePages = 5

type ReverseImageSearch struct {
	backend contractx.SearchBackend
}

var _ contractx.ReverseImageSearch = (*ReverseImageSearch)(nil)

func NewReverseImageSearch(backend contractx.SearchBackend) (*ReverseImageSearch, error) {
	if backend == nil {
		return nil, errors.New("search backend is required")
	}
	return &ReverseImageSearch{backend: backend}, nil
}

// SearchByImage queries every public photo and merges matches by URL.
func (t *ReverseImageSearch) SearchByImage(ctx context.Context, in contractx.ReverseSearchInput) (contractx.ReverseSearchOutput, error) {
	var urls []string
	for _, p := range in.Photos {
		if isPublicURL(p.URL) {
			urls = append(urls, p.URL)
		}
	}
	if len(urls) == 0 {
		return contractx.ReverseSearchOutput{}, contractx.InvalidInput("no publicly reachable photo to search with")
	}

	seen := make(map[string]bool)
	out := contractx.ReverseSearchOutput{Matches: []contractx.SearchMatch{}}
	for _, u := range urls {
		matches, err := t.backend.ReverseImage(ctx, u)
		if err != nil {
			return contractx.ReverseSearchOutput{}, classifyCollaborator(ctx, err, "reverse image search")
		}
		for _, m := range matches {
			if m.URL == "" || seen[m.URL] {
				continue
			}
			seen[m.URL] = true
			out.Matches = append(out.Matches, m)
		}
	}
	return out, nil
}

type WebScraper struct {
	backend  contractx.SearchBackend
	fetcher  contractx.PageFetcher
	maxPages int
}

var _ contractx.WebScraper = (*WebScraper)(nil)

func NewWebScraper(backend contractx.SearchBackend, fetcher contractx.PageFetcher, maxPages int) (*WebScraper, error) {
	if backend == nil {
		return nil, errors.New("search backend is required")
	}
	if fetcher == nil {
		return nil, errors.New("page fetcher is required")
	}
	if maxPages <= 0 {
		maxPages = defaultScrapePages
	}
	return &WebScraper{backend: backend, fetcher: fetcher, maxPages: maxPages}, nil
}

// Scrape searches for competing listings and reads a price from each. Results
// that already carry a price skip the page fetch.
func (t *WebScraper) Scrape(ctx context.Context, in contractx.ScrapeInput) (contractx.ScrapeOutput, error) {
	if err := requireText("query", in.Query); err != nil {
		return contractx.ScrapeOutput{}, err
	}

	results, err := t.backend.Search(ctx, strings.TrimSpace(in.Query))
	if err != nil {
		return contractx.ScrapeOutput{}, classifyCollaborator(ctx, err, "competitor search")
	}
	if len(results) > t.maxPages {
		results = results[:t.maxPages]
	}

	out := contractx.ScrapeOutput{Competitors: []contractx.CompetitorPrice{}}
	var (
		fetchErr error
		fetched  int
	)
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return contractx.ScrapeOutput{}, contractx.FromTransport(ctx, err, "competitor scrape")
		}

		if r.Price != nil && *r.Price > 0 {
			out.Competitors = append(out.Competitors, contractx.CompetitorPrice{
				Source: r.Source, Title: r.Title, URL: r.URL, Price: *r.Price, Currency: r.Currency,
			})
			continue
		}
		if !isPublicURL(r.URL) {
			continue
		}

		page, err := t.fetcher.Fetch(ctx, r.URL)
		if err != nil {
			fetchErr = err
			log.Debug().Str("url", r.URL).Err(err).Msg("competitor page fetch failed")
			continue
		}
		fetched++

		price, currency, ok := ExtractPrice(page.Text)
		if !ok {
			continue
		}
		title := page.Title
		if title == "" {
			title = r.Title
		}
		out.Competitors = append(out.Competitors, contractx.CompetitorPrice{
			Source: r.Source, Title: title, URL: r.URL, Price: price, Currency: currency,
		})
	}

	// Nothing usable and every fetch failed: surface the fetch error so the stage can retry.
	if len(out.Competitors) == 0 && fetched == 0 && fetchErr != nil {
		return contractx.ScrapeOutput{}, classifyCollaborator(ctx, fetchErr, "competitor page fetch")
	}
	return out, nil
}

var (
	pricePrefixPattern = regexp.MustCompile(`(?i)(US\$|\$|€|£|฿|USD|EUR|GBP|THB)\s?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`)
	priceSuffixPattern = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)\s?(USD|EUR|GBP|THB|baht)\b`)

	currencySymbols = map[string]string{
		"$": "USD", "us$": "USD", "usd": "USD",
		"€": "EUR", "eur": "EUR",
		"£": "GBP", "gbp": "GBP",
		"฿": "THB", "thb": "THB", "baht": "THB",
	}
)

// ExtractPrice returns the first price found in text.
func ExtractPrice(text string) (float64, string, bool) {
	type hit struct {
		pos      int
		amount   string
		currency string
	}
	var best *hit
	if m := pricePrefixPattern.FindStringSubmatchIndex(text); m != nil {
		best = &hit{pos: m[0], currency: text[m[2]:m[3]], amount: text[m[4]:m[5]]}
	}
	if m := priceSuffixPattern.FindStringSubmatchIndex(text); m != nil && (best == nil || m[0] < best.pos) {
		best = &hit{pos: m[0], amount: text[m[2]:m[3]], currency: text[m[4]:m[5]]}
	}
	if best == nil {
		return 0, "", false
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(best.amount, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, "", false
	}
	return v, currencySymbols[strings.ToLower(best.currency)], true
}
