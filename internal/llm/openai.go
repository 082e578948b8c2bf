package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIClient implements Client using the OpenAI-compatible chat
// completions API, plus the images API for image generation. Works with
// OpenAI and any OpenAI-compatible endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	imageModel string
	httpClient *http.Client
}

// OpenAIOption configures the OpenAI client.
type OpenAIOption func(*OpenAIClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(o *OpenAIClient) { o.httpClient = c }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(o *OpenAIClient) { o.baseURL = strings.TrimRight(url, "/") }
}

// WithImageModel sets the model used for image generation requests.
func WithImageModel(model string) OpenAIOption {
	return func(o *OpenAIClient) { o.imageModel = model }
}

// NewOpenAIClient creates a client for the OpenAI API. model defaults to
// gpt-4o-mini when empty.
func NewOpenAIClient(apiKey, model string, opts ...OpenAIOption) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	c := &OpenAIClient{
		baseURL:    "https://api.openai.com/v1",
		apiKey:     apiKey,
		model:      model,
		imageModel: "gpt-image-1",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- OpenAI API request/response types ---

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type oaiMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type oaiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *oaiError `json:"error,omitempty"`
}

type oaiImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
}

type oaiImageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *oaiError `json:"error,omitempty"`
}

type oaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Chat sends a chat completion request, or an image generation request when
// the capability asks for one.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, NewProviderError("openai", KindAuth, fmt.Errorf("missing API key"))
	}
	if req.Capability == CapabilityImageGen {
		return c.generateImage(ctx, req)
	}

	oaiReq := oaiRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.Model != "" {
		oaiReq.Model = req.Model
	}
	if req.System != "" {
		oaiReq.Messages = append(oaiReq.Messages, oaiMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "assistant"
		}
		oaiReq.Messages = append(oaiReq.Messages, oaiMessage{Role: role, Content: buildOAIContent(m)})
	}

	body, err := c.doJSON(ctx, "/chat/completions", oaiReq)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var oaiResp oaiResponse
	if err := json.NewDecoder(body).Decode(&oaiResp); err != nil {
		return nil, NewProviderError("openai", KindTransient, fmt.Errorf("decode response: %w", err))
	}
	if oaiResp.Error != nil {
		return nil, NewProviderError("openai", KindTransient,
			fmt.Errorf("%s: %s", oaiResp.Error.Type, oaiResp.Error.Message))
	}
	if len(oaiResp.Choices) == 0 {
		return nil, NewProviderError("openai", KindTransient, fmt.Errorf("empty response"))
	}

	return &ChatResponse{
		Content:    strings.TrimSpace(oaiResp.Choices[0].Message.Content),
		StopReason: oaiResp.Choices[0].FinishReason,
		Usage: TokenUsage{
			InputTokens:  oaiResp.Usage.PromptTokens,
			OutputTokens: oaiResp.Usage.CompletionTokens,
		},
	}, nil
}

// buildOAIContent converts message parts: plain string for text-only
// messages, a part array when images are attached.
func buildOAIContent(m Message) interface{} {
	hasMedia := false
	for _, p := range m.Parts {
		if p.Type == PartImage {
			hasMedia = true
			break
		}
	}
	if !hasMedia {
		return m.Text()
	}

	parts := make([]oaiContentPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case PartText:
			parts = append(parts, oaiContentPart{Type: "text", Text: p.Text})
		case PartImage:
			url := fmt.Sprintf("data:%s;base64,%s", p.MimeType, base64.StdEncoding.EncodeToString(p.Data))
			parts = append(parts, oaiContentPart{Type: "image_url", ImageURL: &oaiImageURL{URL: url}})
		}
	}
	return parts
}

func (c *OpenAIClient) generateImage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Text()
	}
	if prompt == "" {
		return nil, NewProviderError("openai", KindTransient, fmt.Errorf("empty image prompt"))
	}

	body, err := c.doJSON(ctx, "/images/generations", oaiImageRequest{
		Model:  c.imageModel,
		Prompt: prompt,
		N:      1,
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var imgResp oaiImageResponse
	if err := json.NewDecoder(body).Decode(&imgResp); err != nil {
		return nil, NewProviderError("openai", KindTransient, fmt.Errorf("decode response: %w", err))
	}
	if imgResp.Error != nil {
		return nil, NewProviderError("openai", KindTransient,
			fmt.Errorf("%s: %s", imgResp.Error.Type, imgResp.Error.Message))
	}
	if len(imgResp.Data) == 0 {
		return nil, NewProviderError("openai", KindTransient, fmt.Errorf("empty image response"))
	}

	data, err := base64.StdEncoding.DecodeString(imgResp.Data[0].B64JSON)
	if err != nil {
		return nil, NewProviderError("openai", KindTransient, fmt.Errorf("decode image data: %w", err))
	}
	return &ChatResponse{ImageData: data, MimeType: "image/png"}, nil
}

// doJSON posts a JSON payload and returns the response body on 200. Non-200
// statuses are read, drained, and classified; the body is always closed on
// error paths.
func (c *OpenAIClient) doJSON(ctx context.Context, path string, payload interface{}) (io.ReadCloser, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewProviderError("openai", KindTransient, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		httpResp.Body.Close()
		return nil, NewProviderError("openai", classifyStatus(httpResp.StatusCode),
			fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(data))))
	}
	return httpResp.Body, nil
}
