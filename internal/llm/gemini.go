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

// GeminiClient implements Client using the Gemini generateContent REST API.
// It covers text, vision, and audio transcription requests.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// GeminiOption configures the Gemini client.
type GeminiOption func(*GeminiClient)

// WithGeminiHTTPClient sets a custom HTTP client.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiClient) { g.httpClient = c }
}

// WithGeminiBaseURL overrides the API base URL. Used in tests.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(g *GeminiClient) { g.baseURL = strings.TrimRight(url, "/") }
}

// NewGeminiClient creates a client for the Gemini API. model defaults to
// gemini-2.5-flash when empty.
func NewGeminiClient(apiKey, model string, opts ...GeminiOption) *GeminiClient {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	g := &GeminiClient{
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		apiKey:     apiKey,
		model:      model,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// --- Gemini API request/response types ---

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	SystemInstruct   *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiInlineIn `json:"inline_data,omitempty"`
}

type geminiInlineIn struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenCfg struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Chat sends a generateContent request.
func (g *GeminiClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if g.apiKey == "" {
		return nil, NewProviderError("gemini", KindAuth, fmt.Errorf("missing API key"))
	}

	model := req.Model
	if model == "" {
		model = g.model
	}

	gReq := geminiRequest{}
	if req.System != "" {
		gReq.SystemInstruct = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		content := geminiContent{Role: role}
		for _, p := range m.Parts {
			switch p.Type {
			case PartText:
				content.Parts = append(content.Parts, geminiPart{Text: p.Text})
			case PartImage, PartAudio:
				content.Parts = append(content.Parts, geminiPart{
					InlineData: &geminiInlineIn{
						MimeType: p.MimeType,
						Data:     base64.StdEncoding.EncodeToString(p.Data),
					},
				})
			}
		}
		gReq.Contents = append(gReq.Contents, content)
	}
	if req.MaxTokens > 0 || req.Temperature != nil {
		gReq.GenerationConfig = &geminiGenCfg{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	body, err := json.Marshal(gReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewProviderError("gemini", KindTransient, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, NewProviderError("gemini", classifyStatus(httpResp.StatusCode),
			fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(data))))
	}

	var gResp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&gResp); err != nil {
		return nil, NewProviderError("gemini", KindTransient, fmt.Errorf("decode response: %w", err))
	}
	if gResp.Error != nil {
		return nil, NewProviderError("gemini", classifyStatus(gResp.Error.Code),
			fmt.Errorf("%s: %s", gResp.Error.Status, gResp.Error.Message))
	}
	if len(gResp.Candidates) == 0 {
		return nil, NewProviderError("gemini", KindTransient, fmt.Errorf("empty response"))
	}

	resp := &ChatResponse{StopReason: gResp.Candidates[0].FinishReason}
	for _, p := range gResp.Candidates[0].Content.Parts {
		resp.Content += p.Text
	}
	resp.Content = strings.TrimSpace(resp.Content)
	if gResp.UsageMetadata != nil {
		resp.Usage = TokenUsage{
			InputTokens:  gResp.UsageMetadata.PromptTokenCount,
			OutputTokens: gResp.UsageMetadata.CandidatesTokenCount,
		}
	} else {
		resp.Usage = estimateUsage(req, resp.Content)
	}
	return resp, nil
}
