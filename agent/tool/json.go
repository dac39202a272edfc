package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	contractx "github.com/tanpawarit/marketplace-listing-agent/agent/contract"
	llmx "github.com/tanpawarit/marketplace-listing-agent/agent/llm"
)

// ErrMalformedCompletion marks a JSON-mode completion that is not an object.
var ErrMalformedCompletion = errors.New("completion is not a JSON object")

func userJSON(payload any) (llmx.Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return llmx.Message{}, contractx.Unknown(err, "encode model payload")
	}
	return llmx.UserText(string(raw)), nil
}

// completeJSON sends system + payload in JSON mode and parses the reply.
func completeJSON(ctx context.Context, gw llmx.Gateway, system string, payload any, opts llmx.Options) (gjson.Result, error) {
	user, err := userJSON(payload)
	if err != nil {
		return gjson.Result{}, err
	}
	return completeJSONMessages(ctx, gw, []llmx.Message{llmx.SystemText(system), user}, opts)
}

func completeJSONMessages(ctx context.Context, gw llmx.Gateway, messages []llmx.Message, opts llmx.Options) (gjson.Result, error) {
	opts.ResponseFormat = llmx.FormatJSONObject
	text, err := gw.Complete(ctx, messages, opts)
	if err != nil {
		return gjson.Result{}, contractx.Classify(err)
	}

	return ParseJSONObject(text)
}

// ParseJSONObject reads a model reply as a JSON object, tolerating a
// markdown code fence around it. Anything else is UpstreamUnavailable.
func ParseJSONObject(text string) (gjson.Result, error) {
	text = stripCodeFence(text)
	if !gjson.Valid(text) {
		return gjson.Result{}, contractx.Unavailable(ErrMalformedCompletion, "model returned invalid json")
	}
	res := gjson.Parse(text)
	if !res.IsObject() {
		return gjson.Result{}, contractx.Unavailable(ErrMalformedCompletion, "model returned %s instead of an object", res.Type)
	}
	return res, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// stringList accepts either a JSON array of strings or a comma/space separated string.
func stringList(res gjson.Result) []string {
	var out []string
	if res.IsArray() {
		for _, v := range res.Array() {
			if s := strings.TrimSpace(v.String()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	for _, s := range strings.FieldsFunc(res.String(), func(r rune) bool { return r == ',' || r == '\n' }) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return contractx.InvalidInput("%s is required", field)
	}
	return nil
}
