package tool

import (
	"context"
	"errors"
	"strings"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

// PhotoReader loads stored photo bytes when a reference is not publicly reachable.
type PhotoReader interface {
	Download(ctx context.Context, key string) ([]byte, string, error)
}

type Vision struct {
	gateway llmx.Gateway
	photos  PhotoReader
	prompt  string
}

var _ contractx.VisionPipeline = (*Vision)(nil)

func NewVision(gateway llmx.Gateway, photos PhotoReader, prompt string) (*Vision, error) {
	if gateway == nil {
		return nil, errors.New("llm gateway is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	return &Vision{gateway: gateway, photos: photos, prompt: prompt}, nil
}

func (t *Vision) Describe(ctx context.Context, in contractx.VisionInput) (contractx.VisionOutput, error) {
	if len(in.Photos) == 0 {
		return contractx.VisionOutput{}, contractx.InvalidInput("at least one photo is required")
	}

	notes, err := userJSON(struct {
		Title       string `json:"seller_title,omitempty"`
		Category    string `json:"category,omitempty"`
		Condition   string `json:"condition,omitempty"`
		Preferences string `json:"preferences,omitempty"`
	}{in.Title, in.Category, in.Condition, in.Preferences})
	if err != nil {
		return contractx.VisionOutput{}, err
	}

	parts := []llmx.Part{llmx.Text(notes.PlainText())}
	for i, ref := range in.Photos {
		part, ok, err := t.photoPart(ctx, ref)
		if err != nil {
			return contractx.VisionOutput{}, err
		}
		if !ok {
			return contractx.VisionOutput{}, contractx.InvalidInput("photo %d has neither a public url nor a storage key", i)
		}
		parts = append(parts, part)
	}
	user, err := llmx.NewMessage(llmx.RoleUser, parts...)
	if err != nil {
		return contractx.VisionOutput{}, contractx.InvalidInput("build vision message: %v", err)
	}

	res, err := completeJSONMessages(ctx, t.gateway, []llmx.Message{llmx.SystemText(t.prompt), user}, llmx.Options{})
	if err != nil {
		return contractx.VisionOutput{}, err
	}

	out := contractx.VisionOutput{
		Title:       strings.TrimSpace(res.Get("title").String()),
		Description: strings.TrimSpace(res.Get("description").String()),
		Keywords:    stringList(res.Get("keywords")),
	}
	if out.Title == "" {
		out.Title = strings.TrimSpace(in.Title)
	}
	if out.Description == "" {
		return contractx.VisionOutput{}, contractx.Unavailable(ErrMalformedCompletion, "vision reply has no description")
	}
	return out, nil
}

func (t *Vision) photoPart(ctx context.Context, ref contractx.PhotoRef) (llmx.Part, bool, error) {
	if isPublicURL(ref.URL) {
		return llmx.ImageRef(ref.URL), true, nil
	}
	if t.photos == nil || strings.TrimSpace(ref.Key) == "" {
		return llmx.Part{}, false, nil
	}
	data, mediaType, err := t.photos.Download(ctx, ref.Key)
	if err != nil {
		return llmx.Part{}, false, classifyCollaborator(ctx, err, "photo download")
	}
	if mediaType == "" {
		mediaType = ref.MediaType
	}
	return llmx.Image(data, mediaType), true, nil
}

func isPublicURL(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://")
}
