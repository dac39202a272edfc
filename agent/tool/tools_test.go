package tool

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
	storagex "github.com/tanpawarit/marketplace-listing-agent/pkg/storage"
)

func TestPhotoCorrectionUploadsInOrder(t *testing.T) {
	t.Parallel()

	store := storagex.NewMemoryStorage("https://cdn.example.com")
	corrector := &upperCorrector{}
	tool, err := NewPhotoCorrection(corrector, store, 2)
	if err != nil {
		t.Fatalf("NewPhotoCorrection() error = %v", err)
	}

	out, err := tool.Correct(context.Background(), contractx.PhotoCorrectionInput{
		SKU: "SKU-1",
		Images: []contractx.Image{
			{MediaType: "image/jpeg", Data: []byte("a")},
			{MediaType: "image/png", Data: []byte("b")},
			{MediaType: "image/jpeg", Data: []byte("c")},
		},
	})
	if err != nil {
		t.Fatalf("Correct() error = %v", err)
	}
	if len(out.Photos) != 3 || corrector.calls != 3 {
		t.Fatalf("photos = %d corrector calls = %d", len(out.Photos), corrector.calls)
	}
	wantKeys := []string{"SKU-1/00.jpg", "SKU-1/01.png", "SKU-1/02.jpg"}
	for i, p := range out.Photos {
		if p.Key != wantKeys[i] {
			t.Fatalf("photo %d key = %s, want %s", i, p.Key, wantKeys[i])
		}
	}
	data, _, err := store.Download(context.Background(), "SKU-1/01.png")
	if err != nil || string(data) != "fixed:b" {
		t.Fatalf("stored data = %q, %v", data, err)
	}
}

func TestPhotoCorrectionValidatesInput(t *testing.T) {
	t.Parallel()

	tool, _ := NewPhotoCorrection(nil, storagex.NewMemoryStorage(""), 0)
	cases := []contractx.PhotoCorrectionInput{
		{Images: []contractx.Image{{MediaType: "image/png", Data: []byte{1}}}},
		{SKU: "x"},
		{SKU: "x", Images: []contractx.Image{{MediaType: "image/png"}}},
		{SKU: "x", Images: []contractx.Image{{MediaType: "text/plain", Data: []byte{1}}}},
	}
	for i, in := range cases {
		if _, err := tool.Correct(context.Background(), in); !errors.Is(err, contractx.ErrInvalidInput) {
			t.Fatalf("case %d: error = %v, want invalid input", i, err)
		}
	}
}

func TestPhotoCorrectionCorrectorFailureIsClassified(t *testing.T) {
	t.Parallel()

	tool, _ := NewPhotoCorrection(&upperCorrector{err: errors.New("connection reset")}, storagex.NewMemoryStorage(""), 1)
	_, err := tool.Correct(context.Background(), contractx.PhotoCorrectionInput{
		SKU:    "x",
		Images: []contractx.Image{{MediaType: "image/png", Data: []byte{1}}},
	})
	if !errors.Is(err, contractx.ErrUpstreamUnavailable) {
		t.Fatalf("Correct() error = %v, want upstream unavailable", err)
	}
}

func TestVisionBuildsMultiModalMessage(t *testing.T) {
	t.Parallel()

	store := storagex.NewMemoryStorage("")
	if _, err := store.Upload(context.Background(), "sku/00.png", "image/png", []byte{9}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	gw := &fakeGateway{replies: []string{"```json\n{\"title\":\"Red kettle\",\"description\":\"A red kettle.\",\"keywords\":[\"kettle\",\"red\"]}\n```"}}
	tool, err := NewVision(gw, store, "describe")
	if err != nil {
		t.Fatalf("NewVision() error = %v", err)
	}

	out, err := tool.Describe(context.Background(), contractx.VisionInput{
		Title: "kettle",
		Photos: []contractx.PhotoRef{
			{Key: "sku/00.png", URL: store.URL("sku/00.png"), MediaType: "image/png"},
			{URL: "https://cdn.example.com/1.jpg"},
		},
	})
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if out.Title != "Red kettle" || len(out.Keywords) != 2 {
		t.Fatalf("Describe() = %+v", out)
	}
	if !gw.opts.JSON() {
		t.Fatal("vision must request json output")
	}
	parts := gw.last[1].Parts()
	if len(parts) != 3 || parts[1].Kind() != llmx.PartImage || parts[2].Kind() != llmx.PartImageRef {
		t.Fatalf("unexpected user parts: %d", len(parts))
	}
}

func TestVisionMalformedReplyIsRetryable(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{replies: []string{"not json"}}
	tool, _ := NewVision(gw, nil, "describe")
	_, err := tool.Describe(context.Background(), contractx.VisionInput{
		Photos: []contractx.PhotoRef{{URL: "https://cdn.example.com/1.jpg"}},
	})
	if !errors.Is(err, ErrMalformedCompletion) || !contractx.KindOf(err).Retryable() {
		t.Fatalf("Describe() error = %v, want retryable malformed completion", err)
	}
}

func TestVisionRejectsUnreachablePhoto(t *testing.T) {
	t.Parallel()

	tool, _ := NewVision(&fakeGateway{}, nil, "describe")
	_, err := tool.Describe(context.Background(), contractx.VisionInput{
		Photos: []contractx.PhotoRef{{URL: "memory://photos/a"}},
	})
	if !errors.Is(err, contractx.ErrInvalidInput) {
		t.Fatalf("Describe() error = %v, want invalid input", err)
	}
}

func TestReverseImageSearchMergesMatches(t *testing.T) {
	t.Parallel()

	backend := &fakeSearch{reverse: map[string][]contractx.SearchMatch{
		"https://cdn/a.jpg": {{URL: "https://shop/1", Title: "one"}, {URL: "https://shop/2"}},
		"https://cdn/b.jpg": {{URL: "https://shop/2"}, {URL: ""}},
	}}
	tool, _ := NewReverseImageSearch(backend)

	out, err := tool.SearchByImage(context.Background(), contractx.ReverseSearchInput{Photos: []contractx.PhotoRef{
		{URL: "https://cdn/a.jpg"}, {URL: "https://cdn/b.jpg"}, {URL: "memory://private"},
	}})
	if err != nil {
		t.Fatalf("SearchByImage() error = %v", err)
	}
	if len(out.Matches) != 2 || len(backend.imageCalls) != 2 {
		t.Fatalf("matches = %d calls = %v", len(out.Matches), backend.imageCalls)
	}
}

func TestReverseImageSearchZeroMatchesIsSuccess(t *testing.T) {
	t.Parallel()

	tool, _ := NewReverseImageSearch(&fakeSearch{})
	out, err := tool.SearchByImage(context.Background(), contractx.ReverseSearchInput{Photos: []contractx.PhotoRef{{URL: "https://cdn/a.jpg"}}})
	if err != nil || out.Matches == nil || len(out.Matches) != 0 {
		t.Fatalf("SearchByImage() = %+v, %v", out, err)
	}
}

func TestWebScraperCollectsPrices(t *testing.T) {
	t.Parallel()

	backend := &fakeSearch{results: []contractx.SearchMatch{
		{URL: "https://a.example/item", Title: "A", Source: "a"},
		{URL: "https://b.example/item", Title: "B", Source: "b", Price: ptr(42), Currency: "USD"},
		{URL: "https://c.example/item", Title: "C", Source: "c"},
	}}
	fetcher := &fakeFetcher{pages: map[string]contractx.Page{
		"https://a.example/item": {Title: "A page", Text: "Great kettle now only $1,299.50 incl. tax"},
		"https://c.example/item": {Text: "no price here"},
	}}
	tool, _ := NewWebScraper(backend, fetcher, 10)

	out, err := tool.Scrape(context.Background(), contractx.ScrapeInput{Query: "red kettle"})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(out.Competitors) != 2 {
		t.Fatalf("competitors = %+v", out.Competitors)
	}
	if out.Competitors[0].Price != 1299.5 || out.Competitors[0].Currency != "USD" || out.Competitors[0].Title != "A page" {
		t.Fatalf("first competitor = %+v", out.Competitors[0])
	}
	if fetcher.calls != 2 {
		t.Fatalf("fetch calls = %d, priced result must not be fetched", fetcher.calls)
	}
}

func TestWebScraperAllFetchesFailing(t *testing.T) {
	t.Parallel()

	backend := &fakeSearch{results: []contractx.SearchMatch{{URL: "https://a.example/item"}}}
	tool, _ := NewWebScraper(backend, &fakeFetcher{err: contractx.Unavailable(nil, "site down")}, 0)

	_, err := tool.Scrape(context.Background(), contractx.ScrapeInput{Query: "kettle"})
	if !errors.Is(err, contractx.ErrUpstreamUnavailable) {
		t.Fatalf("Scrape() error = %v, want upstream unavailable", err)
	}
}

func TestExtractPrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text     string
		price    float64
		currency string
		ok       bool
	}{
		{"price: €19.99", 19.99, "EUR", true},
		{"Only 450 THB today", 450, "THB", true},
		{"US$ 12", 12, "USD", true},
		{"ships in 3 days", 0, "", false},
	}
	for _, tc := range cases {
		p, c, ok := ExtractPrice(tc.text)
		if ok != tc.ok || p != tc.price || c != tc.currency {
			t.Fatalf("ExtractPrice(%q) = %v %q %v", tc.text, p, c, ok)
		}
	}
}

func TestMarketAnalysisUsesModelPrice(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{replies: []string{`{"recommended_price": 39.999, "rationale": "below median"}`}}
	tool, _ := NewMarketAnalysis(gw, "price it", PricingRule{})

	out, err := tool.Analyze(context.Background(), contractx.MarketAnalysisInput{
		Title:          "Kettle",
		Currency:       "usd",
		ReverseMatches: &contractx.ReverseSearchOutput{},
		Competitors: &contractx.ScrapeOutput{Competitors: []contractx.CompetitorPrice{
			{Price: 40, Currency: "USD"}, {Price: 44},
		}},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if out.RecommendedPrice != 40 || out.Currency != "USD" || out.Partial {
		t.Fatalf("Analyze() = %+v", out)
	}
	if len(out.SourcesUsed) != 2 {
		t.Fatalf("SourcesUsed = %v", out.SourcesUsed)
	}
	if !strings.Contains(gw.last[1].PlainText(), `"median":42`) {
		t.Fatalf("payload must carry price stats: %s", gw.last[1].PlainText())
	}
}

func TestMarketAnalysisFallsBackToRuleOnPartialResearch(t *testing.T) {
	t.Parallel()

	rule, _ := ParsePricingRule("{median} - 1")
	gw := &fakeGateway{replies: []string{`{"rationale": "unsure"}`}}
	tool, _ := NewMarketAnalysis(gw, "price it", rule)

	out, err := tool.Analyze(context.Background(), contractx.MarketAnalysisInput{
		Title:    "Kettle",
		Currency: "USD",
		Competitors: &contractx.ScrapeOutput{Competitors: []contractx.CompetitorPrice{
			{Price: 10}, {Price: 20}, {Price: 30, Currency: "EUR"},
		}},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if out.RecommendedPrice != 14 || !out.Partial {
		t.Fatalf("Analyze() = %+v", out)
	}
}

func TestMarketAnalysisWithoutAnySignal(t *testing.T) {
	t.Parallel()

	tool, _ := NewMarketAnalysis(&fakeGateway{replies: []string{`{}`}}, "price it", PricingRule{})
	_, err := tool.Analyze(context.Background(), contractx.MarketAnalysisInput{Title: "Kettle", Currency: "USD"})
	if !errors.Is(err, contractx.ErrUpstreamUnavailable) {
		t.Fatalf("Analyze() error = %v, want upstream unavailable", err)
	}
}

func TestContentToolsParseReplies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	refine, _ := NewRefineContent(&fakeGateway{replies: []string{`{"title":"Kettle, red","description":"Polished."}`}}, "refine")
	r, err := refine.Refine(ctx, contractx.RefineInput{Title: "kettle", Description: "draft"})
	if err != nil || r.Title != "Kettle, red" || r.Description != "Polished." {
		t.Fatalf("Refine() = %+v, %v", r, err)
	}

	audience, _ := NewAudienceDefinition(&fakeGateway{replies: []string{`{"segment":"home cooks","personas":["student","parent"]}`}}, "audience")
	a, err := audience.Define(ctx, contractx.AudienceInput{Title: "Kettle", Description: "Polished."})
	if err != nil || a.Segment != "home cooks" || len(a.Personas) != 2 {
		t.Fatalf("Define() = %+v, %v", a, err)
	}

	caption, _ := NewCaption(&fakeGateway{replies: []string{`{"hashtags":["kettle","#Kitchen","kitchen","tea time!"]}`}}, "caption", 3)
	c, err := caption.Caption(ctx, contractx.CaptionInput{Title: "Kettle"})
	if err != nil || c.Hashtags != "#kettle #Kitchen #tea" {
		t.Fatalf("Caption() = %+v, %v", c, err)
	}
}

func TestContentToolsPassGatewayErrorsThrough(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{err: contractx.Timeout(nil, "slow")}
	refine, _ := NewRefineContent(gw, "refine")
	if _, err := refine.Refine(context.Background(), contractx.RefineInput{Description: "x"}); !errors.Is(err, contractx.ErrTimeout) {
		t.Fatalf("Refine() error = %v, want timeout", err)
	}
	if _, err := NewCaption(gw, " ", 0); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("NewCaption() error = %v, want ErrPromptMissing", err)
	}
}

func TestValidationRules(t *testing.T) {
	t.Parallel()

	v := NewValidation(DefaultValidationRules())
	good := contractx.ValidationInput{
		Title:       "Red kettle",
		Description: strings.Repeat("x", 40),
		Price:       10,
		Currency:    "USD",
		Photos:      []contractx.PhotoRef{{URL: "https://cdn/a.jpg"}},
	}
	out, err := v.Validate(context.Background(), good)
	if err != nil || !out.Passed || len(out.Warnings) != 1 {
		t.Fatalf("Validate(good) = %+v, %v", out, err)
	}

	bad := good
	bad.Title = strings.Repeat("t", 81)
	bad.Price = 0
	bad.Hashtags = strings.Repeat("#a ", 11)
	_, err = v.Validate(context.Background(), bad)
	if !errors.Is(err, contractx.ErrInvalidInput) {
		t.Fatalf("Validate(bad) error = %v, want invalid input", err)
	}
	for _, want := range []string{"title has 81", "price must be positive", "11 hashtags"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q must mention %q", err, want)
		}
	}
}

func TestPublishingPreservesRejectionDetail(t *testing.T) {
	t.Parallel()

	mp := &fakeMarketplace{err: contractx.Rejected(nil, map[string]string{"code": "duplicate_sku"}, "duplicate listing")}
	tool, _ := NewPublishing(mp)

	_, err := tool.Publish(context.Background(), contractx.PublishInput{
		Credential: " token ",
		Listing:    contractx.Listing{SKU: "SKU-1", PhotoURLs: []string{"https://cdn/a.jpg"}},
	})
	var te *contractx.ToolError
	if !errors.As(err, &te) || te.Kind != contractx.KindUpstreamRejected || te.Detail["code"] != "duplicate_sku" {
		t.Fatalf("Publish() error = %v", err)
	}
	if mp.cred != "token" {
		t.Fatalf("credential = %q, want trimmed", mp.cred)
	}
}

func TestPublishingRequiresCredential(t *testing.T) {
	t.Parallel()

	mp := &fakeMarketplace{}
	tool, _ := NewPublishing(mp)
	_, err := tool.Publish(context.Background(), contractx.PublishInput{Listing: contractx.Listing{SKU: "x", PhotoURLs: []string{"u"}}})
	if !errors.Is(err, contractx.ErrInvalidInput) || mp.calls != 0 {
		t.Fatalf("Publish() error = %v calls = %d", err, mp.calls)
	}
}
