package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// AnthropicClient implements Client using the Anthropic Messages API. It
// covers text and vision requests.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates a client with an explicit API key. model
// defaults to claude-sonnet-4-20250514 when empty.
func NewAnthropicClient(apiKey, model string, opts ...option.RequestOption) *AnthropicClient {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicClient{
		client: anthropic.NewClient(reqOpts...),
		model:  model,
	}
}

// Chat sends a non-streaming messages request.
func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msg, err := c.client.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, classifyAnthropic(err)
	}

	resp := &ChatResponse{
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			resp.Content += block.Text
		}
	}
	resp.Content = strings.TrimSpace(resp.Content)
	return resp, nil
}

func (c *AnthropicClient) buildParams(req ChatRequest) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case PartText:
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			case PartImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(
					p.MimeType, base64.StdEncoding.EncodeToString(p.Data)))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		default:
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	return params
}

// classifyAnthropic maps SDK errors onto the provider error taxonomy using
// the HTTP status carried by the API error.
func classifyAnthropic(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return NewProviderError("anthropic", classifyStatus(apierr.StatusCode),
			fmt.Errorf("anthropic chat: %w", err))
	}
	return NewProviderError("anthropic", KindTransient, fmt.Errorf("anthropic chat: %w", err))
}
