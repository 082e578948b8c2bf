// Package llm defines the normalized LLM client abstraction shared by all
// provider adapters.
package llm

import (
	"context"
	"time"
)

// Role represents a message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Capability is a functional ability a provider may support.
type Capability string

const (
	CapabilityText       Capability = "text"
	CapabilityVision     Capability = "vision"
	CapabilityTranscribe Capability = "transcribe"
	CapabilityImageGen   Capability = "image_gen"
)

// ParseCapability maps a string onto a known capability. Empty input
// defaults to text.
func ParseCapability(s string) (Capability, bool) {
	switch Capability(s) {
	case "":
		return CapabilityText, true
	case CapabilityText, CapabilityVision, CapabilityTranscribe, CapabilityImageGen:
		return Capability(s), true
	}
	return "", false
}

// PartType identifies the kind of a content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartAudio PartType = "audio"
)

// Part is one piece of message content. Text parts carry Text; image and
// audio parts carry raw Data plus its MIME type.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	Data     []byte   `json:"data,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart builds an image content part.
func ImagePart(data []byte, mimeType string) Part {
	return Part{Type: PartImage, Data: data, MimeType: mimeType}
}

// AudioPart builds an audio content part.
func AudioPart(data []byte, mimeType string) Part {
	return Part{Type: PartAudio, Data: data, MimeType: mimeType}
}

// Message represents a single message in a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// UserMessage builds a plain-text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart(text)}}
}

// AssistantMessage builds a plain-text assistant message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{TextPart(text)}}
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// TokenUsage tracks token consumption for a single call. Best effort:
// providers that do not report usage leave it estimated or zero.
type TokenUsage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	Estimated    bool `json:"estimated,omitempty"`
}

// Total returns the sum of input and output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ChatRequest contains the normalized parameters for a provider call.
type ChatRequest struct {
	Model       string     `json:"model,omitempty"`
	System      string     `json:"system,omitempty"`
	Messages    []Message  `json:"messages"`
	Capability  Capability `json:"capability"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
}

// ChatResponse contains the normalized result of a provider call.
// StopReason is the provider's own termination label, passed through
// untranslated.
type ChatResponse struct {
	Content    string     `json:"content,omitempty"`
	ImageData  []byte     `json:"image_data,omitempty"`
	MimeType   string     `json:"mime_type,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
	Usage      TokenUsage `json:"usage"`
}

// Client is the interface every provider adapter implements. A call performs
// exactly one network request; the adapter honors ctx cancellation and
// releases its transport resources on timeout.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
