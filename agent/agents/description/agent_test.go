package description

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
	"github.com/tanpawarit/marketplace-listing-agent/agent/prompt"
)

type recordingGateway struct {
	mu    sync.Mutex
	reply func(system, user string) (string, error)
	calls int
	opts  []llmx.Options
}

func (g *recordingGateway) Complete(ctx context.Context, messages []llmx.Message, opts llmx.Options) (string, error) {
	g.mu.Lock()
	g.calls++
	g.opts = append(g.opts, opts)
	g.mu.Unlock()
	return g.reply(messages[0].PlainText(), messages[1].PlainText())
}

func testPrompts() Prompts {
	return Prompts{
		Description:       "describe",
		RefineDescription: "refine",
		Hashtags:          "hashtags",
		CallToAction:      "cta",
	}
}

func newTestAgent(t *testing.T, gw llmx.Gateway, opts ...Option) *Agent {
	t.Helper()
	a, err := New(gw, testPrompts(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestNewRequiresPrompts(t *testing.T) {
	t.Parallel()

	gw := &recordingGateway{}
	p := testPrompts()
	p.CallToAction = " "
	if _, err := New(gw, p); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("New() error = %v, want ErrPromptMissing", err)
	}
	if _, err := New(gw, PromptsFrom(prompt.LoadPromptSet())); err != nil {
		t.Fatalf("New(embedded prompts) error = %v", err)
	}
}

func TestGenerateDescriptionSendsProduct(t *testing.T) {
	t.Parallel()

	var gotSystem, gotUser string
	gw := &recordingGateway{reply: func(system, user string) (string, error) {
		gotSystem, gotUser = system, user
		return "  A sturdy oak table.  ", nil
	}}
	a := newTestAgent(t, gw, WithCompletionOptions(llmx.Options{Temperature: llmx.Temperature(0.2)}))

	got, err := a.GenerateDescription(context.Background(), Product{Title: "Oak table", Features: []string{"solid wood"}})
	if err != nil {
		t.Fatalf("GenerateDescription() error = %v", err)
	}
	if got != "A sturdy oak table." {
		t.Fatalf("GenerateDescription() = %q", got)
	}
	if gotSystem != "describe" || !strings.Contains(gotUser, `"title":"Oak table"`) {
		t.Fatalf("system = %q user = %q", gotSystem, gotUser)
	}
	if gw.opts[0].ResponseFormat != llmx.FormatText || gw.opts[0].Temperature == nil || *gw.opts[0].Temperature != 0.2 {
		t.Fatalf("opts = %+v", gw.opts[0])
	}

	if _, err := a.GenerateDescription(context.Background(), Product{}); !errors.Is(err, contractx.ErrInvalidInput) {
		t.Fatalf("GenerateDescription(empty) error = %v", err)
	}
}

func TestRefineDescriptionIsDeterministic(t *testing.T) {
	t.Parallel()

	gw := &recordingGateway{reply: func(system, user string) (string, error) {
		return "refined:" + user, nil
	}}
	a := newTestAgent(t, gw)
	ctx := context.Background()

	first, err := a.RefineDescription(ctx, "A red kettle.", "mention capacity")
	if err != nil {
		t.Fatalf("RefineDescription() error = %v", err)
	}
	second, err := a.RefineDescription(ctx, "A red kettle.", "mention capacity")
	if err != nil {
		t.Fatalf("RefineDescription() error = %v", err)
	}
	if first != second {
		t.Fatalf("RefineDescription() = %q then %q", first, second)
	}
	if gw.calls != 2 {
		t.Fatalf("calls = %d, want one round-trip per call", gw.calls)
	}

	if _, err := a.RefineDescription(ctx, "A red kettle.", ""); !errors.Is(err, contractx.ErrInvalidInput) {
		t.Fatalf("RefineDescription(no feedback) error = %v", err)
	}
}

func TestGenerateHashtagsNormalizes(t *testing.T) {
	t.Parallel()

	gw := &recordingGateway{reply: func(system, user string) (string, error) {
		return `{"hashtags":["#Kettle","kettle","tea time","vintage!"]}`, nil
	}}
	a := newTestAgent(t, gw, WithMaxHashtags(3))

	got, err := a.GenerateHashtags(context.Background(), "A red kettle.")
	if err != nil {
		t.Fatalf("GenerateHashtags() error = %v", err)
	}
	if got != "#Kettle #tea #time" {
		t.Fatalf("GenerateHashtags() = %q", got)
	}
	if !gw.opts[0].JSON() {
		t.Fatalf("hashtags must use json mode, opts = %+v", gw.opts[0])
	}
}

func TestGenerateHashtagsAcceptsFencedReply(t *testing.T) {
	t.Parallel()

	gw := &recordingGateway{reply: func(system, user string) (string, error) {
		return "```json\n{\"hashtags\":[\"kettle\",\"enamel\"]}\n```", nil
	}}
	a := newTestAgent(t, gw)

	got, err := a.GenerateHashtags(context.Background(), "A red kettle.")
	if err != nil {
		t.Fatalf("GenerateHashtags() error = %v", err)
	}
	if got != "#kettle #enamel" {
		t.Fatalf("GenerateHashtags() = %q", got)
	}
}

func TestGenerateHashtagsMalformedIsRetryable(t *testing.T) {
	t.Parallel()

	gw := &recordingGateway{reply: func(system, user string) (string, error) {
		return `["not","an","object"]`, nil
	}}
	a := newTestAgent(t, gw)

	_, err := a.GenerateHashtags(context.Background(), "A red kettle.")
	if contractx.KindOf(err) != contractx.KindUpstreamUnavailable {
		t.Fatalf("GenerateHashtags() error = %v, want upstream unavailable", err)
	}
}

func TestFinalizeRunsBothCalls(t *testing.T) {
	t.Parallel()

	gw := &recordingGateway{reply: func(system, user string) (string, error) {
		switch system {
		case "hashtags":
			return `{"hashtags":["kettle"]}`, nil
		case "cta":
			return "Grab it before it's gone!", nil
		}
		return "", errors.New("unexpected prompt")
	}}
	a := newTestAgent(t, gw)

	got, err := a.Finalize(context.Background(), "A red kettle.")
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if got.Hashtags != "#kettle" || got.CallToAction != "Grab it before it's gone!" {
		t.Fatalf("Finalize() = %+v", got)
	}
}

func TestGatewayErrorsAreClassified(t *testing.T) {
	t.Parallel()

	gw := &recordingGateway{reply: func(system, user string) (string, error) {
		if system == "cta" {
			return "", contractx.Rejected(nil, nil, "content policy")
		}
		return `{"hashtags":["kettle"]}`, nil
	}}
	a := newTestAgent(t, gw)

	_, err := a.Finalize(context.Background(), "A red kettle.")
	if !errors.Is(err, contractx.ErrUpstreamRejected) {
		t.Fatalf("Finalize() error = %v, want rejected", err)
	}

	empty := newTestAgent(t, &recordingGateway{reply: func(string, string) (string, error) { return "   ", nil }})
	if _, err := empty.GenerateCallToAction(context.Background(), "x"); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("GenerateCallToAction() error = %v, want ErrEmptyReply", err)
	}
}
