package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyMessage    = errors.New("message has no content parts")
	ErrInvalidPart     = errors.New("content part must carry exactly one variant")
	ErrInvalidRole     = errors.New("unsupported message role")
	ErrEmptyCompletion = errors.New("completion is empty")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PartKind int

const (
	PartText PartKind = iota + 1
	PartImage
	PartImageRef
)

// Part is a closed union of text, inline image bytes, or an image URL.
// Build parts with Text, Image or ImageRef.
type Part struct {
	kind      PartKind
	text      string
	data      []byte
	mediaType string
	url       string
}

func Text(s string) Part {
	return Part{kind: PartText, text: s}
}

// Image copies data so the part owns its bytes.
func Image(data []byte, mediaType string) Part {
	return Part{kind: PartImage, data: append([]byte(nil), data...), mediaType: mediaType}
}

func ImageRef(url string) Part {
	return Part{kind: PartImageRef, url: url}
}

func (p Part) Kind() PartKind { return p.kind }

func (p Part) Text() string { return p.text }

func (p Part) MediaType() string { return p.mediaType }

func (p Part) URL() string { return p.url }

// Bytes returns a copy of the inline image data.
func (p Part) Bytes() []byte { return append([]byte(nil), p.data...) }

// DataURL renders an inline image as a base64 data URL.
func (p Part) DataURL() string {
	mediaType := p.mediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(p.data))
}

// Base64 returns the inline image data base64-encoded.
func (p Part) Base64() string {
	return base64.StdEncoding.EncodeToString(p.data)
}

func (p Part) validate() error {
	switch p.kind {
	case PartText:
		if p.data != nil || p.url != "" {
			return ErrInvalidPart
		}
	case PartImage:
		if len(p.data) == 0 || p.text != "" || p.url != "" {
			return ErrInvalidPart
		}
	case PartImageRef:
		if strings.TrimSpace(p.url) == "" || p.text != "" || p.data != nil {
			return ErrInvalidPart
		}
	default:
		return ErrInvalidPart
	}
	return nil
}

// Message is immutable once built.
type Message struct {
	role  Role
	parts []Part
}

func NewMessage(role Role, parts ...Part) (Message, error) {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if len(parts) == 0 {
		return Message{}, ErrEmptyMessage
	}
	for i, p := range parts {
		if err := p.validate(); err != nil {
			return Message{}, fmt.Errorf("part %d: %w", i, err)
		}
	}
	return Message{role: role, parts: append([]Part(nil), parts...)}, nil
}

// MustMessage is NewMessage for literal, known-good content.
func MustMessage(role Role, parts ...Part) Message {
	m, err := NewMessage(role, parts...)
	if err != nil {
		panic(err)
	}
	return m
}

func SystemText(s string) Message    { return MustMessage(RoleSystem, Text(s)) }
func UserText(s string) Message      { return MustMessage(RoleUser, Text(s)) }
func AssistantText(s string) Message { return MustMessage(RoleAssistant, Text(s)) }

func (m Message) Role() Role { return m.role }

func (m Message) Parts() []Part { return append([]Part(nil), m.parts...) }

// PlainText joins all text parts, ignoring images.
func (m Message) PlainText() string {
	var b strings.Builder
	for _, p := range m.parts {
		if p.kind == PartText {
			b.WriteString(p.text)
		}
	}
	return b.String()
}

// HasImages reports whether any part is an image.
func (m Message) HasImages() bool {
	for _, p := range m.parts {
		if p.kind == PartImage || p.kind == PartImageRef {
			return true
		}
	}
	return false
}

type ResponseFormat string

const (
	FormatText       ResponseFormat = "text"
	FormatJSONObject ResponseFormat = "json_object"
)

// Options are pass-through hints; nil fields fall back to backend defaults.
type Options struct {
	Temperature    *float64
	MaxTokens      *int
	ResponseFormat ResponseFormat
}

func (o Options) JSON() bool { return o.ResponseFormat == FormatJSONObject }

func Temperature(v float64) *float64 { return &v }

func MaxTokens(v int) *int { return &v }

// Gateway is the uniform entry point to a multi-modal completion backend.
// Implementations never retry; failures are *contract.ToolError values.
type Gateway interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, messages []Message, opts Options) (string, error)

func (f GatewayFunc) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	return f(ctx, messages, opts)
}
