package tool

import (
	"context"
	"errors"
	"sync"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

type fakeGateway struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	last    []llmx.Message
	opts    llmx.Options
}

func (f *fakeGateway) Complete(ctx context.Context, messages []llmx.Message, opts llmx.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.last = messages
	f.opts = opts
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", contractx.Unavailable(llmx.ErrEmptyCompletion, "no scripted reply")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r, nil
}

type fakeSearch struct {
	results    []contractx.SearchMatch
	reverse    map[string][]contractx.SearchMatch
	err        error
	queries    []string
	imageCalls []string
}

func (f *fakeSearch) Search(ctx context.Context, query string) ([]contractx.SearchMatch, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

func (f *fakeSearch) ReverseImage(ctx context.Context, imageURL string) ([]contractx.SearchMatch, error) {
	f.imageCalls = append(f.imageCalls, imageURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.reverse[imageURL], nil
}

type fakeFetcher struct {
	pages map[string]contractx.Page
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (contractx.Page, error) {
	f.calls++
	if f.err != nil {
		return contractx.Page{}, f.err
	}
	p, ok := f.pages[url]
	if !ok {
		return contractx.Page{}, errors.New("not found")
	}
	return p, nil
}

type fakeMarketplace struct {
	out   contractx.PublishOutput
	err   error
	calls int
	got   contractx.Listing
	cred  string
}

func (f *fakeMarketplace) CreateListing(ctx context.Context, credential string, listing contractx.Listing) (contractx.PublishOutput, error) {
	f.calls++
	f.cred = credential
	f.got = listing
	return f.out, f.err
}

type upperCorrector struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *upperCorrector) CorrectImage(ctx context.Context, img contractx.Image) (contractx.Image, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return contractx.Image{}, c.err
	}
	out := img
	out.Data = append([]byte("fixed:"), img.Data...)
	return out, nil
}

func ptr(v float64) *float64 { return &v }
