package contract

import "context"

// One narrow interface per tool. Every returned error is a *ToolError.

type PhotoCorrection interface {
	Correct(ctx context.Context, in PhotoCorrectionInput) (PhotoCorrectionOutput, error)
}

type VisionPipeline interface {
	Describe(ctx context.Context, in VisionInput) (VisionOutput, error)
}

type ReverseImageSearch interface {
	SearchByImage(ctx context.Context, in ReverseSearchInput) (ReverseSearchOutput, error)
}

type WebScraper interface {
	Scrape(ctx context.Context, in ScrapeInput) (ScrapeOutput, error)
}

type MarketAnalysis interface {
	Analyze(ctx context.Context, in MarketAnalysisInput) (MarketAnalysisOutput, error)
}

type RefineContent interface {
	Refine(ctx context.Context, in RefineInput) (RefineOutput, error)
}

type AudienceDefinition interface {
	Define(ctx context.Context, in AudienceInput) (AudienceOutput, error)
}

type Caption interface {
	Caption(ctx context.Context, in CaptionInput) (CaptionOutput, error)
}

type Validation interface {
	Validate(ctx context.Context, in ValidationInput) (ValidationOutput, error)
}

type Publishing interface {
	Publish(ctx context.Context, in PublishInput) (PublishOutput, error)
}

// Collaborators wrapped by the tools above.

// ImageCorrector fixes exposure, crop and background of a single photo.
type ImageCorrector interface {
	CorrectImage(ctx context.Context, img Image) (Image, error)
}

type SearchBackend interface {
	Search(ctx context.Context, query string) ([]SearchMatch, error)
	ReverseImage(ctx context.Context, imageURL string) ([]SearchMatch, error)
}

// Page is the readable text of a fetched web page.
type Page struct {
	URL   string
	Title string
	Text  string
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

type Marketplace interface {
	CreateListing(ctx context.Context, credential string, listing Listing) (PublishOutput, error)
}
