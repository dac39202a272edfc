package contract

import "time"

// Image is a raw product photo supplied by the caller.
type Image struct {
	Filename  string `json:"filename,omitempty"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// PhotoRef points at a corrected photo held in object storage.
type PhotoRef struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	MediaType string `json:"media_type"`
}

type PhotoCorrectionInput struct {
	SKU    string  `json:"sku"`
	Images []Image `json:"images"`
}

type PhotoCorrectionOutput struct {
	Photos []PhotoRef `json:"photos"`
}

type VisionInput struct {
	Title       string     `json:"title,omitempty"`
	Category    string     `json:"category,omitempty"`
	Condition   string     `json:"condition,omitempty"`
	Preferences string     `json:"preferences,omitempty"`
	Photos      []PhotoRef `json:"photos"`
}

type VisionOutput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
}

type ReverseSearchInput struct {
	Photos []PhotoRef `json:"photos"`
}

// SearchMatch is one hit returned by the search backend.
type SearchMatch struct {
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Snippet  string   `json:"snippet,omitempty"`
	Source   string   `json:"source,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

type ReverseSearchOutput struct {
	Matches []SearchMatch `json:"matches"`
}

type ScrapeInput struct {
	Query string `json:"query"`
}

// CompetitorPrice is a price observed on a competing listing.
type CompetitorPrice struct {
	Source   string  `json:"source"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
}

type ScrapeOutput struct {
	Competitors []CompetitorPrice `json:"competitors"`
}

// MarketAnalysisInput is assembled from whatever research stages succeeded;
// nil research fields mean the stage produced nothing.
type MarketAnalysisInput struct {
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	Currency       string               `json:"currency"`
	ReverseMatches *ReverseSearchOutput `json:"reverse_matches,omitempty"`
	Competitors    *ScrapeOutput        `json:"competitors,omitempty"`
}

type MarketAnalysisOutput struct {
	RecommendedPrice float64  `json:"recommended_price"`
	Currency         string   `json:"currency"`
	Rationale        string   `json:"rationale,omitempty"`
	SourcesUsed      []string `json:"sources_used"`
	Partial          bool     `json:"partial"`
}

type RefineInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Preferences string  `json:"preferences,omitempty"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
}

type RefineOutput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type AudienceInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
}

type AudienceOutput struct {
	Segment  string   `json:"segment"`
	Personas []string `json:"personas,omitempty"`
}

type CaptionInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Segment     string `json:"segment"`
}

type CaptionOutput struct {
	Hashtags string `json:"hashtags"`
}

type ValidationInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Price       float64    `json:"price"`
	Currency    string     `json:"currency"`
	Photos      []PhotoRef `json:"photos"`
	Hashtags    string     `json:"hashtags"`
}

type ValidationOutput struct {
	Passed   bool     `json:"passed"`
	Warnings []string `json:"warnings,omitempty"`
}

// Listing is the payload sent to the marketplace.
type Listing struct {
	SKU         string   `json:"sku"`
	Marketplace string   `json:"marketplace,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	PhotoURLs   []string `json:"photo_urls"`
	Hashtags    string   `json:"hashtags,omitempty"`
	Audience    string   `json:"audience,omitempty"`
}

type PublishInput struct {
	Listing    Listing `json:"listing"`
	Credential string  `json:"-"`
}

type PublishOutput struct {
	ListingID string    `json:"listing_id"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
