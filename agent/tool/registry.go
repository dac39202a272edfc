package tool

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
)

// Tool names double as listing stage names.
const (
	NamePhotoCorrection    = "photo_correction"
	NameVision             = "vision"
	NameReverseImageSearch = "reverse_image_search"
	NameWebScraper         = "web_scraper"
	NameMarketAnalysis     = "market_analysis"
	NameRefineContent      = "refine_content"
	NameAudienceDefinition = "audience_definition"
	NameCaption            = "caption"
	NameValidation         = "validation"
	NamePublishing         = "publishing"
)

var (
	ErrDuplicateTool  = errors.New("tool already registered")
	ErrUnknownTool    = errors.New("unknown tool name")
	ErrIncompleteTool = errors.New("toolset is incomplete")
)

var knownNames = map[string]bool{
	NamePhotoCorrection:    true,
	NameVision:             true,
	NameReverseImageSearch: true,
	NameWebScraper:         true,
	NameMarketAnalysis:     true,
	NameRefineContent:      true,
	NameAudienceDefinition: true,
	NameCaption:            true,
	NameValidation:         true,
	NamePublishing:         true,
}

// Toolset is the typed view the listing agent consumes.
type Toolset struct {
	PhotoCorrection    contractx.PhotoCorrection
	Vision             contractx.VisionPipeline
	ReverseImageSearch contractx.ReverseImageSearch
	WebScraper         contractx.WebScraper
	MarketAnalysis     contractx.MarketAnalysis
	RefineContent      contractx.RefineContent
	AudienceDefinition contractx.AudienceDefinition
	Caption            contractx.Caption
	Validation         contractx.Validation
	Publishing         contractx.Publishing
}

// Registry maps tool names to implementations for wiring.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]any
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]any)}
}

func (r *Registry) Register(name string, tool any) error {
	name = strings.TrimSpace(name)
	if !knownNames[name] {
		return fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if tool == nil {
		return fmt.Errorf("tool %s is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = tool
	return nil
}

func (r *Registry) MustRegister(name string, tool any) {
	if err := r.Register(name, tool); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Toolset resolves every known tool or reports all missing and mistyped names.
func (r *Registry) Toolset() (Toolset, error) {
	var (
		ts       Toolset
		problems []string
	)

	resolve := func(name string, assign func(any) bool) {
		t, ok := r.Lookup(name)
		if !ok {
			problems = append(problems, name+" (missing)")
			return
		}
		if !assign(t) {
			problems = append(problems, fmt.Sprintf("%s (unexpected type %T)", name, t))
		}
	}

	resolve(NamePhotoCorrection, func(t any) (ok bool) { ts.PhotoCorrection, ok = t.(contractx.PhotoCorrection); return })
	resolve(NameVision, func(t any) (ok bool) { ts.Vision, ok = t.(contractx.VisionPipeline); return })
	resolve(NameReverseImageSearch, func(t any) (ok bool) { ts.ReverseImageSearch, ok = t.(contractx.ReverseImageSearch); return })
	resolve(NameWebScraper, func(t any) (ok bool) { ts.WebScraper, ok = t.(contractx.WebScraper); return })
	resolve(NameMarketAnalysis, func(t any) (ok bool) { ts.MarketAnalysis, ok = t.(contractx.MarketAnalysis); return })
	resolve(NameRefineContent, func(t any) (ok bool) { ts.RefineContent, ok = t.(contractx.RefineContent); return })
	resolve(NameAudienceDefinition, func(t any) (ok bool) { ts.AudienceDefinition, ok = t.(contractx.AudienceDefinition); return })
	resolve(NameCaption, func(t any) (ok bool) { ts.Caption, ok = t.(contractx.Caption); return })
	resolve(NameValidation, func(t any) (ok bool) { ts.Validation, ok = t.(contractx.Validation); return })
	resolve(NamePublishing, func(t any) (ok bool) { ts.Publishing, ok = t.(contractx.Publishing); return })

	if len(problems) > 0 {
		return Toolset{}, fmt.Errorf("%w: %s", ErrIncompleteTool, strings.Join(problems, ", "))
	}
	return ts, nil
}
