package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

var (
	//go:embed template/vision.txt
	visionRaw string

	//go:embed template/market.txt
	marketRaw string

	//go:embed template/refine.txt
	refineRaw string

	//go:embed template/audience.txt
	audienceRaw string

	//go:embed template/caption.txt
	captionRaw string

	//go:embed template/description.txt
	descriptionRaw string

	//go:embed template/refine_description.txt
	refineDescriptionRaw string

	//go:embed template/hashtags.txt
	hashtagsRaw string

	//go:embed template/call_to_action.txt
	callToActionRaw string

	//go:embed template/chat.txt
	chatRaw string
)

// PromptSet holds the system prompts used by tools and agents.
type PromptSet struct {
	Vision            string
	Market            string
	Refine            string
	Audience          string
	Caption           string
	Description       string
	RefineDescription string
	Hashtags          string
	CallToAction      string
	Chat              string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Vision:            strings.TrimSpace(visionRaw),
		Market:            strings.TrimSpace(marketRaw),
		Refine:            strings.TrimSpace(refineRaw),
		Audience:          strings.TrimSpace(audienceRaw),
		Caption:           strings.TrimSpace(captionRaw),
		Description:       strings.TrimSpace(descriptionRaw),
		RefineDescription: strings.TrimSpace(refineDescriptionRaw),
		Hashtags:          strings.TrimSpace(hashtagsRaw),
		CallToAction:      strings.TrimSpace(callToActionRaw),
		Chat:              strings.TrimSpace(chatRaw),
	}
}

// Require fails with ErrPromptMissing naming the first empty prompt.
func Require(named map[string]string) error {
	for name, p := range named {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
		}
	}
	return nil
}
