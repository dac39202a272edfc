package tool

import (
	"context"
	"errors"
	"strings"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

type Publishing struct {
	marketplace contractx.Marketplace
}

var _ contractx.Publishing = (*Publishing)(nil)

func NewPublishing(marketplace contractx.Marketplace) (*Publishing, error) {
	if marketplace == nil {
		return nil, errors.New("marketplace client is required")
	}
	return &Publishing{marketplace: marketplace}, nil
}

func (t *Publishing) Publish(ctx context.Context, in contractx.PublishInput) (contractx.PublishOutput, error) {
	if err := requireText("credential", in.Credential); err != nil {
		return contractx.PublishOutput{}, err
	}
	if err := requireText("sku", in.Listing.SKU); err != nil {
		return contractx.PublishOutput{}, err
	}
	if len(in.Listing.PhotoURLs) == 0 {
		return contractx.PublishOutput{}, contractx.InvalidInput("listing has no photos")
	}

	out, err := t.marketplace.CreateListing(ctx, strings.TrimSpace(in.Credential), in.Listing)
	if err != nil {
		return contractx.PublishOutput{}, classifyCollaborator(ctx, err, "marketplace publish")
	}
	if strings.TrimSpace(out.ListingID) == "" {
		return contractx.PublishOutput{}, contractx.Unknown(nil, "marketplace returned no listing id")
	}
	return out, nil
}
