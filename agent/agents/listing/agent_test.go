package listing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
	"github.com/tanpawarit/marketplace-listing-agent/agent/pipeline"
	"github.com/tanpawarit/marketplace-listing-agent/agent/tool"
	storagex "github.com/tanpawarit/marketplace-listing-agent/pkg/storage"
)

// routedGateway answers by system prompt so every LLM-backed tool can share it.
type routedGateway struct {
	mu      sync.Mutex
	replies map[string]string
	calls   map[string]int
}

func (g *routedGateway) Complete(ctx context.Context, messages []llmx.Message, opts llmx.Options) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	system := messages[0].PlainText()
	g.calls[system]++
	reply, ok := g.replies[system]
	if !ok {
		return "", contractx.Unavailable(llmx.ErrEmptyCompletion, "no reply for %s", system)
	}
	return reply, nil
}

type stubSearch struct {
	mu         sync.Mutex
	searchErr  error
	results    []contractx.SearchMatch
	searches   int
	imageCalls int
}

func (s *stubSearch) Search(ctx context.Context, query string) ([]contractx.SearchMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches++
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.results, nil
}

func (s *stubSearch) ReverseImage(ctx context.Context, imageURL string) ([]contractx.SearchMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageCalls++
	return nil, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, url string) (contractx.Page, error) {
	return contractx.Page{URL: url, Title: "Competitor kettle", Text: "Sale price $44.00 today"}, nil
}

type stubMarketplace struct {
	mu    sync.Mutex
	err   error
	calls int
	got   contractx.Listing
}

func (m *stubMarketplace) CreateListing(ctx context.Context, credential string, l contractx.Listing) (contractx.PublishOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.got = l
	if m.err != nil {
		return contractx.PublishOutput{}, m.err
	}
	return contractx.PublishOutput{ListingID: "12345", URL: "https://market.example/l/12345", CreatedAt: time.Now()}, nil
}

type fixture struct {
	gateway     *routedGateway
	search      *stubSearch
	marketplace *stubMarketplace
	agent       *Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		gateway: &routedGateway{
			calls: make(map[string]int),
			replies: map[string]string{
				"vision":   `{"title":"Red enamel kettle","description":"A red enamel kettle, 1.5L.","keywords":["kettle","enamel"]}`,
				"market":   `{"recommended_price":42.5,"rationale":"slightly under the competitor"}`,
				"refine":   `{"title":"Red Enamel Kettle 1.5L","description":"Classic red enamel stovetop kettle holding 1.5 litres, lightly used."}`,
				"audience": `{"segment":"home cooks","personas":["tea lovers"]}`,
				"caption":  `{"hashtags":["kettle","enamel","kitchen"]}`,
			},
		},
		search: &stubSearch{results: []contractx.SearchMatch{
			{URL: "https://shop.example/kettle", Title: "Kettle", Source: "shop"},
		}},
		marketplace: &stubMarketplace{},
	}

	store := storagex.NewMemoryStorage("https://cdn.example.com")
	r := tool.NewRegistry()
	must := func(v any, err error) any {
		t.Helper()
		if err != nil {
			t.Fatalf("build tool: %v", err)
		}
		return v
	}
	r.MustRegister(tool.NamePhotoCorrection, must(tool.NewPhotoCorrection(nil, store, 2)))
	r.MustRegister(tool.NameVision, must(tool.NewVision(f.gateway, store, "vision")))
	r.MustRegister(tool.NameReverseImageSearch, must(tool.NewReverseImageSearch(f.search)))
	r.MustRegister(tool.NameWebScraper, must(tool.NewWebScraper(f.search, stubFetcher{}, 3)))
	r.MustRegister(tool.NameMarketAnalysis, must(tool.NewMarketAnalysis(f.gateway, "market", tool.PricingRule{})))
	r.MustRegister(tool.NameRefineContent, must(tool.NewRefineContent(f.gateway, "refine")))
	r.MustRegister(tool.NameAudienceDefinition, must(tool.NewAudienceDefinition(f.gateway, "audience")))
	r.MustRegister(tool.NameCaption, must(tool.NewCaption(f.gateway, "caption", 0)))
	r.MustRegister(tool.NameValidation, tool.NewValidation(tool.DefaultValidationRules()))
	r.MustRegister(tool.NamePublishing, must(tool.NewPublishing(f.marketplace)))

	agent, err := NewFromRegistry(r,
		pipeline.WithLogger(zerolog.Nop()),
		pipeline.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
		pipeline.WithRunID(func() string { return "run-1" }),
	)
	if err != nil {
		t.Fatalf("NewFromRegistry() error = %v", err)
	}
	f.agent = agent
	return f
}

func request() Request {
	return Request{
		SKU:        "SKU-42",
		Title:      "kettle",
		Currency:   "USD",
		Credential: "seller-token",
		Images: []contractx.Image{
			{MediaType: "image/jpeg", Data: []byte("front")},
			{MediaType: "image/jpeg", Data: []byte("side")},
		},
	}
}

func TestAgentDeclaresTenStages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	want := []string{
		tool.NamePhotoCorrection, tool.NameVision, tool.NameReverseImageSearch, tool.NameWebScraper,
		tool.NameMarketAnalysis, tool.NameRefineContent, tool.NameAudienceDefinition, tool.NameCaption,
		tool.NameValidation, tool.NamePublishing,
	}
	got := f.agent.StageNames()
	if len(got) != len(want) {
		t.Fatalf("StageNames() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("StageNames()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunPublishesListing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.agent.Run(context.Background(), request())

	if res.Status != pipeline.StatusSucceeded || res.Partial {
		t.Fatalf("Run() status = %s partial = %v err = %v", res.Status, res.Partial, res.Err)
	}
	for _, s := range res.Stages {
		if s.Status != pipeline.StageSucceeded {
			t.Fatalf("stage %s = %s (%v)", s.Name, s.Status, s.Err)
		}
	}
	if len(res.Stages) != 10 || res.Context.Len() != 10 {
		t.Fatalf("stages = %d context = %d, want 10", len(res.Stages), res.Context.Len())
	}

	photos, _ := pipeline.Value[contractx.PhotoCorrectionOutput](res.Context, tool.NamePhotoCorrection)
	if len(photos.Photos) != 2 {
		t.Fatalf("corrected photos = %d, want 2", len(photos.Photos))
	}
	reverse, _ := pipeline.Value[contractx.ReverseSearchOutput](res.Context, tool.NameReverseImageSearch)
	if len(reverse.Matches) != 0 {
		t.Fatalf("reverse matches = %d, want 0", len(reverse.Matches))
	}
	scraped, _ := pipeline.Value[contractx.ScrapeOutput](res.Context, tool.NameWebScraper)
	if len(scraped.Competitors) != 1 || scraped.Competitors[0].Price != 44 {
		t.Fatalf("competitors = %+v", scraped.Competitors)
	}

	out, err := OutcomeOf(res)
	if err != nil {
		t.Fatalf("OutcomeOf() error = %v", err)
	}
	if out.ListingID != "12345" || out.Price != 42.5 || out.Hashtags != "#kettle #enamel #kitchen" {
		t.Fatalf("OutcomeOf() = %+v", out)
	}

	sent := f.marketplace.got
	if sent.SKU != "SKU-42" || sent.Title != "Red Enamel Kettle 1.5L" || len(sent.PhotoURLs) != 2 || sent.Audience != "home cooks" {
		t.Fatalf("published listing = %+v", sent)
	}
}

func TestRunScraperExhaustedIsPartial(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.search.searchErr = contractx.Unavailable(nil, "search backend down")

	res := f.agent.Run(context.Background(), request())

	if res.Status != pipeline.StatusSucceeded || !res.Partial {
		t.Fatalf("Run() status = %s partial = %v, want partial success", res.Status, res.Partial)
	}
	scraper, _ := res.Stage(tool.NameWebScraper)
	if scraper.Status != pipeline.StageFailed || scraper.Attempts != 3 || scraper.Err.Kind != contractx.KindUpstreamUnavailable {
		t.Fatalf("web_scraper report = %+v", scraper)
	}
	market, ok := pipeline.Value[contractx.MarketAnalysisOutput](res.Context, tool.NameMarketAnalysis)
	if !ok || !market.Partial || len(market.SourcesUsed) != 1 || market.SourcesUsed[0] != tool.NameReverseImageSearch {
		t.Fatalf("market analysis = %+v", market)
	}
	if f.marketplace.calls != 1 {
		t.Fatalf("marketplace calls = %d, want 1", f.marketplace.calls)
	}
}

func TestRunDuplicateSKURejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.marketplace.err = contractx.Rejected(nil, map[string]string{"code": "duplicate_sku"}, "listing exists")

	res := f.agent.Run(context.Background(), request())

	if res.Status != pipeline.StatusFailed || res.FailedStage != tool.NamePublishing {
		t.Fatalf("Run() status = %s failed stage = %s", res.Status, res.FailedStage)
	}
	if res.Err.Kind != contractx.KindUpstreamRejected || res.Err.Detail["code"] != "duplicate_sku" {
		t.Fatalf("Run() err = %+v", res.Err)
	}
	if f.marketplace.calls != 1 {
		t.Fatalf("marketplace calls = %d, rejection must not be retried", f.marketplace.calls)
	}
	if res.Context.Len() != 9 || res.Context.Has(tool.NamePublishing) {
		t.Fatalf("context keys = %v, want the nine prior outputs", res.Context.Keys())
	}
	if _, err := OutcomeOf(res); !errors.Is(err, contractx.ErrUpstreamRejected) {
		t.Fatalf("OutcomeOf() error = %v", err)
	}
}

func TestRunInvalidRequestStopsAtFirstStage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := request()
	req.Images = nil

	res := f.agent.Run(context.Background(), req)
	if res.FailedStage != tool.NamePhotoCorrection || res.Err.Kind != contractx.KindInvalidInput {
		t.Fatalf("Run() failed stage = %s err = %v", res.FailedStage, res.Err)
	}
	vision, _ := res.Stage(tool.NameVision)
	if vision.Status != pipeline.StageSkipped || f.gateway.calls["vision"] != 0 {
		t.Fatalf("vision = %+v calls = %d", vision, f.gateway.calls["vision"])
	}
}
