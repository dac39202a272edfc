package listing

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	"github.com/tanpawarit/marketplace-listing-agent/agent/pipeline"
	"github.com/tanpawarit/marketplace-listing-agent/agent/tool"
)

const PipelineName = "listing"

// Request is one describe-and-publish job for a single product.
type Request struct {
	SKU         string            `json:"sku"`
	Title       string            `json:"title,omitempty"`
	Category    string            `json:"category,omitempty"`
	Condition   string            `json:"condition,omitempty"`
	Marketplace string            `json:"marketplace,omitempty"`
	Currency    string            `json:"currency"`
	Images      []contractx.Image `json:"images"`
	Preferences string            `json:"preferences,omitempty"`
	Credential  string            `json:"-"`
}

// Agent runs the fixed listing graph:
//
//	photo_correction -> vision -> {reverse_image_search, web_scraper}
//	  -> market_analysis -> refine_content -> audience_definition
//	  -> caption -> validation -> publishing
//
// The two research stages run concurrently and are optional.
type Agent struct {
	tools    tool.Toolset
	pipeline *pipeline.Pipeline[Request]
}

func New(tools tool.Toolset, opts ...pipeline.Option) (*Agent, error) {
	a := &Agent{tools: tools}
	p, err := pipeline.New(PipelineName, a.stages(), opts...)
	if err != nil {
		return nil, err
	}
	a.pipeline = p
	return a, nil
}

// NewFromRegistry resolves the toolset from r first.
func NewFromRegistry(r *tool.Registry, opts ...pipeline.Option) (*Agent, error) {
	tools, err := r.Toolset()
	if err != nil {
		return nil, err
	}
	return New(tools, opts...)
}

func (a *Agent) Run(ctx context.Context, req Request) *pipeline.Result {
	return a.pipeline.Run(ctx, req)
}

func (a *Agent) StageNames() []string {
	return a.pipeline.StageNames()
}

func (a *Agent) stages() []pipeline.Stage[Request] {
	return []pipeline.Stage[Request]{
		{Name: tool.NamePhotoCorrection, Run: a.correctPhotos},
		{Name: tool.NameVision, DependsOn: []string{tool.NamePhotoCorrection}, Run: a.describe},
		{Name: tool.NameReverseImageSearch, DependsOn: []string{tool.NameVision}, Optional: true, Run: a.reverseSearch},
		{Name: tool.NameWebScraper, DependsOn: []string{tool.NameVision}, Optional: true, Run: a.scrape},
		{
			Name:      tool.NameMarketAnalysis,
			DependsOn: []string{tool.NameReverseImageSearch, tool.NameWebScraper},
			Run:       a.analyzeMarket,
		},
		{Name: tool.NameRefineContent, DependsOn: []string{tool.NameMarketAnalysis}, Run: a.refine},
		{Name: tool.NameAudienceDefinition, DependsOn: []string{tool.NameRefineContent}, Run: a.defineAudience},
		{Name: tool.NameCaption, DependsOn: []string{tool.NameAudienceDefinition}, Run: a.caption},
		{Name: tool.NameValidation, DependsOn: []string{tool.NameCaption}, Run: a.validate},
		{Name: tool.NamePublishing, DependsOn: []string{tool.NameValidation}, Run: a.publish},
	}
}

func (a *Agent) correctPhotos(ctx context.Context, req Request, _ *pipeline.Context) (any, error) {
	return a.tools.PhotoCorrection.Correct(ctx, contractx.PhotoCorrectionInput{SKU: req.SKU, Images: req.Images})
}

func (a *Agent) describe(ctx context.Context, req Request, pc *pipeline.Context) (any, error) {
	photos, err := need[contractx.PhotoCorrectionOutput](pc, tool.NamePhotoCorrection)
	if err != nil {
		return nil, err
	}
	return a.tools.Vision.Describe(ctx, contractx.VisionInput{
		Title:       req.Title,
		Category:    req.Category,
		Condition:   req.Condition,
		Preferences: req.Preferences,
		Photos:      photos.Photos,
	})
}

func (a *Agent) reverseSearch(ctx context.Context, _ Request, pc *pipeline.Context) (any, error) {
	photos, err := need[contractx.PhotoCorrectionOutput](pc, tool.NamePhotoCorrection)
	if err != nil {
		return nil, err
	}
	return a.tools.ReverseImageSearch.SearchByImage(ctx, contractx.ReverseSearchInput{Photos: photos.Photos})
}

func (a *Agent) scrape(ctx context.Context, req Request, pc *pipeline.Context) (any, error) {
	draft, err := need[contractx.VisionOutput](pc, tool.NameVision)
	if err != nil {
		return nil, err
	}
	return a.tools.WebScraper.Scrape(ctx, contractx.ScrapeInput{Query: searchQuery(draft, req)})
}

func (a *Agent) analyzeMarket(ctx context.Context, req Request, pc *pipeline.Context) (any, error) {
	draft, err := need[contractx.VisionOutput](pc, tool.NameVision)
	if err != nil {
		return nil, err
	}
	in := contractx.MarketAnalysisInput{
		Title:       draft.Title,
		Description: draft.Description,
		Currency:    req.Currency,
	}
	if v, ok := pipeline.Value[contractx.ReverseSearchOutput](pc, tool.NameReverseImageSearch); ok {
		in.ReverseMatches = &v
	}
	if v, ok := pipeline.Value[contractx.ScrapeOutput](pc, tool.NameWebScraper); ok {
		in.Competitors = &v
	}
	return a.tools.MarketAnalysis.Analyze(ctx, in)
}

func (a *Agent) refine(ctx context.Context, req Request, pc *pipeline.Context) (any, error) {
	draft, err := need[contractx.VisionOutput](pc, tool.NameVision)
	if err != nil {
		return nil, err
	}
	market, err := need[contractx.MarketAnalysisOutput](pc, tool.NameMarketAnalysis)
	if err != nil {
		return nil, err
	}
	return a.tools.RefineContent.Refine(ctx, contractx.RefineInput{
		Title:       draft.Title,
		Description: draft.Description,
		Preferences: req.Preferences,
		Price:       market.RecommendedPrice,
		Currency:    market.Currency,
	})
}

func (a *Agent) defineAudience(ctx context.Context, _ Request, pc *pipeline.Context) (any, error) {
	content, err := need[contractx.RefineOutput](pc, tool.NameRefineContent)
	if err != nil {
		return nil, err
	}
	market, err := need[contractx.MarketAnalysisOutput](pc, tool.NameMarketAnalysis)
	if err != nil {
		return nil, err
	}
	return a.tools.AudienceDefinition.Define(ctx, contractx.AudienceInput{
		Title:       content.Title,
		Description: content.Description,
		Price:       market.RecommendedPrice,
		Currency:    market.Currency,
	})
}

func (a *Agent) caption(ctx context.Context, _ Request, pc *pipeline.Context) (any, error) {
	content, err := need[contractx.RefineOutput](pc, tool.NameRefineContent)
	if err != nil {
		return nil, err
	}
	audience, err := need[contractx.AudienceOutput](pc, tool.NameAudienceDefinition)
	if err != nil {
		return nil, err
	}
	return a.tools.Caption.Caption(ctx, contractx.CaptionInput{
		Title:       content.Title,
		Description: content.Description,
		Segment:     audience.Segment,
	})
}

func (a *Agent) validate(ctx context.Context, req Request, pc *pipeline.Context) (any, error) {
	l, err := assemble(req, pc)
	if err != nil {
		return nil, err
	}
	photos, _ := pipeline.Value[contractx.PhotoCorrectionOutput](pc, tool.NamePhotoCorrection)
	return a.tools.Validation.Validate(ctx, contractx.ValidationInput{
		Title:       l.Title,
		Description: l.Description,
		Price:       l.Price,
		Currency:    l.Currency,
		Photos:      photos.Photos,
		Hashtags:    l.Hashtags,
	})
}

func (a *Agent) publish(ctx context.Context, req Request, pc *pipeline.Context) (any, error) {
	l, err := assemble(req, pc)
	if err != nil {
		return nil, err
	}
	return a.tools.Publishing.Publish(ctx, contractx.PublishInput{Listing: l, Credential: req.Credential})
}

// assemble builds the marketplace payload from the published stage outputs.
func assemble(req Request, pc *pipeline.Context) (contractx.Listing, error) {
	photos, err := need[contractx.PhotoCorrectionOutput](pc, tool.NamePhotoCorrection)
	if err != nil {
		return contractx.Listing{}, err
	}
	content, err := need[contractx.RefineOutput](pc, tool.NameRefineContent)
	if err != nil {
		return contractx.Listing{}, err
	}
	market, err := need[contractx.MarketAnalysisOutput](pc, tool.NameMarketAnalysis)
	if err != nil {
		return contractx.Listing{}, err
	}
	audience, _ := pipeline.Value[contractx.AudienceOutput](pc, tool.NameAudienceDefinition)
	caption, _ := pipeline.Value[contractx.CaptionOutput](pc, tool.NameCaption)

	urls := make([]string, 0, len(photos.Photos))
	for _, p := range photos.Photos {
		urls = append(urls, p.URL)
	}
	return contractx.Listing{
		SKU:         req.SKU,
		Marketplace: req.Marketplace,
		Title:       content.Title,
		Description: content.Description,
		Category:    req.Category,
		Condition:   req.Condition,
		Price:       market.RecommendedPrice,
		Currency:    market.Currency,
		PhotoURLs:   urls,
		Hashtags:    caption.Hashtags,
		Audience:    audience.Segment,
	}, nil
}

func searchQuery(draft contractx.VisionOutput, req Request) string {
	parts := []string{strings.TrimSpace(draft.Title)}
	if parts[0] == "" {
		parts[0] = strings.TrimSpace(req.Title)
	}
	for i, k := range draft.Keywords {
		if i == 3 {
			break
		}
		parts = append(parts, k)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// need reads a required upstream output. Its absence is a wiring defect.
func need[T any](pc *pipeline.Context, stage string) (T, error) {
	v, ok := pipeline.Value[T](pc, stage)
	if !ok {
		var zero T
		return zero, contractx.Unknown(nil, "%s output is missing", stage)
	}
	return v, nil
}

// Outcome is the caller-facing summary of a listing run.
type Outcome struct {
	ListingID string
	URL       string
	Price     float64
	Currency  string
	Hashtags  string
	Partial   bool
}

// OutcomeOf extracts the published listing from a finished run.
func OutcomeOf(res *pipeline.Result) (Outcome, error) {
	if res == nil {
		return Outcome{}, fmt.Errorf("listing: nil result")
	}
	if !res.Succeeded() {
		return Outcome{}, fmt.Errorf("listing run %s %s at %s: %w", res.RunID, res.Status, res.FailedStage, errOrCancelled(res))
	}

	published, ok := pipeline.Value[contractx.PublishOutput](res.Context, tool.NamePublishing)
	if !ok {
		return Outcome{}, fmt.Errorf("listing run %s has no publishing output", res.RunID)
	}
	market, _ := pipeline.Value[contractx.MarketAnalysisOutput](res.Context, tool.NameMarketAnalysis)
	caption, _ := pipeline.Value[contractx.CaptionOutput](res.Context, tool.NameCaption)
	return Outcome{
		ListingID: published.ListingID,
		URL:       published.URL,
		Price:     market.RecommendedPrice,
		Currency:  market.Currency,
		Hashtags:  caption.Hashtags,
		Partial:   res.Partial,
	}, nil
}

func errOrCancelled(res *pipeline.Result) error {
	if res.Err != nil {
		return res.Err
	}
	return context.Canceled
}
