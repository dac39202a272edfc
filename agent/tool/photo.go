package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	storagex "github.com/tanpawarit/marketplace-listing-agent/pkg/storage"
)

const defaultPhotoParallelism = 4

// PassthroughCorrector returns images unchanged.
type PassthroughCorrector struct{}

func (PassthroughCorrector) CorrectImage(ctx context.Context, img contractx.Image) (contractx.Image, error) {
	return img, ctx.Err()
}

type PhotoCorrection struct {
	corrector   contractx.ImageCorrector
	storage     storagex.ObjectStorage
	parallelism int
}

var _ contractx.PhotoCorrection = (*PhotoCorrection)(nil)

func NewPhotoCorrection(corrector contractx.ImageCorrector, storage storagex.ObjectStorage, parallelism int) (*PhotoCorrection, error) {
	if storage == nil {
		return nil, errors.New("object storage is required")
	}
	if corrector == nil {
		corrector = PassthroughCorrector{}
	}
	if parallelism <= 0 {
		parallelism = defaultPhotoParallelism
	}
	return &PhotoCorrection{corrector: corrector, storage: storage, parallelism: parallelism}, nil
}

type indexedPhoto struct {
	index int
	ref   contractx.PhotoRef
}

// Correct fixes and uploads every image; output order matches input order.
func (t *PhotoCorrection) Correct(ctx context.Context, in contractx.PhotoCorrectionInput) (contractx.PhotoCorrectionOutput, error) {
	if err := requireText("sku", in.SKU); err != nil {
		return contractx.PhotoCorrectionOutput{}, err
	}
	if len(in.Images) == 0 {
		return contractx.PhotoCorrectionOutput{}, contractx.InvalidInput("at least one image is required")
	}
	for i, img := range in.Images {
		if len(img.Data) == 0 {
			return contractx.PhotoCorrectionOutput{}, contractx.InvalidInput("image %d is empty", i)
		}
		if !strings.HasPrefix(img.MediaType, "image/") {
			return contractx.PhotoCorrectionOutput{}, contractx.InvalidInput("image %d has media type %q", i, img.MediaType)
		}
	}

	p := pool.NewWithResults[indexedPhoto]().
		WithContext(ctx).
		WithMaxGoroutines(t.parallelism).
		WithCancelOnError().
		WithFirstError()

	for i, img := range in.Images {
		i, img := i, img
		p.Go(func(ctx context.Context) (indexedPhoto, error) {
			fixed, err := t.corrector.CorrectImage(ctx, img)
			if err != nil {
				return indexedPhoto{}, classifyCollaborator(ctx, err, "image correction")
			}
			if fixed.MediaType == "" {
				fixed.MediaType = img.MediaType
			}

			key := photoKey(in.SKU, i, fixed.MediaType)
			url, err := t.storage.Upload(ctx, key, fixed.MediaType, fixed.Data)
			if err != nil {
				return indexedPhoto{}, classifyCollaborator(ctx, err, "photo upload")
			}
			return indexedPhoto{index: i, ref: contractx.PhotoRef{Key: key, URL: url, MediaType: fixed.MediaType}}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return contractx.PhotoCorrectionOutput{}, contractx.Classify(err)
	}

	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
	out := contractx.PhotoCorrectionOutput{Photos: make([]contractx.PhotoRef, 0, len(results))}
	for _, r := range results {
		out.Photos = append(out.Photos, r.ref)
	}
	return out, nil
}

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

func photoKey(sku string, i int, mediaType string) string {
	ext, ok := photoExtensions[mediaType]
	if !ok {
		ext = ".img"
	}
	return fmt.Sprintf("%s/%02d%s", strings.TrimSpace(sku), i, ext)
}

// classifyCollaborator keeps ToolErrors and maps anything else to a transport failure.
func classifyCollaborator(ctx context.Context, err error, what string) error {
	var te *contractx.ToolError
	if errors.As(err, &te) {
		return te
	}
	return contractx.FromTransport(ctx, err, what)
}
