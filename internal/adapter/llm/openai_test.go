package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"maestro-ai/internal/domain"
	"maestro-ai/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestOpenAIProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content-type: %s", r.Header.Get("Content-Type"))
		}

		resp := openaiResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{
				{
					Index: 0,
					Message: openaiMessage{
						Role:    "assistant",
						Content: "Hello! How can I help?",
					},
					FinishReason: "stop",
				},
			},
			Usage: openaiUsage{
				PromptTokens:     10,
				CompletionTokens: 8,
				TotalTokens:      18,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:    "test",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	req := domain.ChatRequest{
		Messages: []domain.Turn{
			{Role: domain.RoleUser, Content: "Hello"},
		},
	}

	resp, err := provider.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "Hello! How can I help?" {
		t.Errorf("Content = %q, want %q", resp.Message.Content, "Hello! How can I help?")
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("TotalTokens = %d, want 18", resp.Usage.TotalTokens)
	}
}

func TestOpenAIProviderChatMapsHumanRole(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:    "test",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Turn{
			{Role: domain.RoleSystem, Content: "be brief"},
			{Role: domain.RoleHuman, Content: "typed at the console"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(got.Messages) != 2 {
		t.Fatalf("got %d wire messages, want 2", len(got.Messages))
	}
	if got.Messages[1].Role != "user" {
		t.Errorf("human turn sent as role %q, want user", got.Messages[1].Role)
	}
}

func TestOpenAIProviderChatWithResponseSchema(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: `{"next":"writer"}`}}},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:    "test",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	schema := json.RawMessage(`{"type":"object","properties":{"next":{"type":"string"}}}`)
	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages:       []domain.Turn{{Role: domain.RoleUser, Content: "decide"}},
		ResponseSchema: schema,
		Temperature:    domain.Float64(0),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got.ResponseFormat == nil {
		t.Fatal("expected response_format in wire request")
	}
	if got.ResponseFormat.Type != "json_schema" {
		t.Errorf("ResponseFormat.Type = %q, want json_schema", got.ResponseFormat.Type)
	}
	if !got.ResponseFormat.JSONSchema.Strict {
		t.Error("expected strict schema")
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0", got.Temperature)
	}
}

func TestOpenAIProviderChatErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"rate limit", http.StatusTooManyRequests, domain.ErrRateLimit},
		{"auth", http.StatusUnauthorized, domain.ErrAuthInvalid},
		{"forbidden", http.StatusForbidden, domain.ErrAuthInvalid},
		{"overflow", http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{"server", http.StatusInternalServerError, domain.ErrProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":"nope"}`)
			}))
			defer server.Close()

			provider := NewOpenAIProvider(config.ProviderConfig{
				Name:    "test",
				BaseURL: server.URL,
				Model:   "gpt-4o-mini",
			}, newTestLogger())

			_, err := provider.Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Turn{{Role: domain.RoleUser, Content: "hi"}},
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Chat error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIProviderChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		if !req.Stream {
			t.Error("expected stream:true in request")
		}
		if req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Error("expected stream_options.include_usage")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"1","model":"gpt-4o-mini","choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"1","choices":[{"delta":{"content":"lo"}}]}`,
			`{"id":"1","choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:    "test",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	ch, err := provider.ChatStream(context.Background(), domain.ChatRequest{
		Messages: []domain.Turn{{Role: domain.RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var content strings.Builder
	var usage *domain.Usage
	sawDone := false
	for delta := range ch {
		content.WriteString(delta.Content)
		if delta.Usage != nil {
			usage = delta.Usage
		}
		if delta.Done {
			sawDone = true
		}
	}

	if content.String() != "Hello" {
		t.Errorf("accumulated content = %q, want %q", content.String(), "Hello")
	}
	if !sawDone {
		t.Error("expected a Done delta")
	}
	if usage == nil || usage.TotalTokens != 7 {
		t.Errorf("usage = %+v, want total 7", usage)
	}
}

func TestOpenAIProviderName(t *testing.T) {
	provider := NewOpenAIProvider(config.ProviderConfig{Name: "primary"}, newTestLogger())
	if provider.Name() != "primary" {
		t.Errorf("Name = %q, want primary", provider.Name())
	}
}
