package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func geminiServer(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewGeminiClient("test-key", "", WithGeminiBaseURL(srv.URL))
	return client, srv
}

func TestGeminiChat(t *testing.T) {
	t.Run("text request", func(t *testing.T) {
		var gotReq geminiRequest
		var gotKey string
		client, _ := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("x-goog-api-key")
			if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
				t.Errorf("decode request: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidates": []map[string]interface{}{
					{"content": map[string]interface{}{
						"role":  "model",
						"parts": []map[string]string{{"text": "hello back"}},
					}},
				},
				"usageMetadata": map[string]int{
					"promptTokenCount":     12,
					"candidatesTokenCount": 4,
				},
			})
		})

		resp, err := client.Chat(context.Background(), ChatRequest{
			System:   "be brief",
			Messages: []Message{UserMessage("hello"), AssistantMessage("hi"), UserMessage("again")},
		})
		if err != nil {
			t.Fatalf("Chat() error: %v", err)
		}
		if resp.Content != "hello back" {
			t.Errorf("Content = %q, want %q", resp.Content, "hello back")
		}
		if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 4 {
			t.Errorf("Usage = %+v, want 12 in / 4 out", resp.Usage)
		}
		if resp.Usage.Estimated {
			t.Error("Usage marked estimated despite server metadata")
		}
		if gotKey != "test-key" {
			t.Errorf("x-goog-api-key = %q, want test-key", gotKey)
		}
		if gotReq.SystemInstruct == nil || gotReq.SystemInstruct.Parts[0].Text != "be brief" {
			t.Error("system instruction not forwarded")
		}
		if len(gotReq.Contents) != 3 {
			t.Fatalf("request has %d contents, want 3", len(gotReq.Contents))
		}
		if gotReq.Contents[1].Role != "model" {
			t.Errorf("assistant role = %q, want model", gotReq.Contents[1].Role)
		}
	})

	t.Run("image parts sent inline", func(t *testing.T) {
		var gotReq geminiRequest
		client, _ := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&gotReq)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidates": []map[string]interface{}{
					{"content": map[string]interface{}{
						"parts": []map[string]string{{"text": "a cat"}},
					}},
				},
			})
		})

		resp, err := client.Chat(context.Background(), ChatRequest{
			Messages: []Message{{
				Role: RoleUser,
				Parts: []Part{
					TextPart("what is this"),
					ImagePart([]byte{1, 2, 3}, "image/png"),
				},
			}},
			Capability: CapabilityVision,
		})
		if err != nil {
			t.Fatalf("Chat() error: %v", err)
		}
		if resp.Content != "a cat" {
			t.Errorf("Content = %q, want %q", resp.Content, "a cat")
		}
		parts := gotReq.Contents[0].Parts
		if len(parts) != 2 {
			t.Fatalf("request has %d parts, want 2", len(parts))
		}
		if parts[1].InlineData == nil || parts[1].InlineData.MimeType != "image/png" {
			t.Error("image part not sent as inline_data")
		}
		// Usage falls back to the estimate when the server omits metadata.
		if !resp.Usage.Estimated {
			t.Error("Usage not marked estimated")
		}
	})

	t.Run("missing api key", func(t *testing.T) {
		client := NewGeminiClient("", "")
		_, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
		if !IsAuth(err) {
			t.Errorf("Chat() error kind = %v, want auth", KindOf(err))
		}
	})

	t.Run("status classification", func(t *testing.T) {
		tests := []struct {
			status int
			want   ErrorKind
		}{
			{http.StatusUnauthorized, KindAuth},
			{http.StatusTooManyRequests, KindQuota},
			{http.StatusInternalServerError, KindTransient},
		}
		for _, tt := range tests {
			client, _ := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
			if got := KindOf(err); got != tt.want {
				t.Errorf("status %d classified %v, want %v", tt.status, got, tt.want)
			}
		}
	})

	t.Run("empty candidates", func(t *testing.T) {
		client, _ := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
		})
		_, err := client.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
		if err == nil || !IsRetryable(err) {
			t.Errorf("Chat() with empty candidates = %v, want retryable error", err)
		}
	})
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"hello world, this is a test", 7},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
