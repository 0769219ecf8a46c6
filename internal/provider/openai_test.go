package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"prizmagent/internal/config"
	"prizmagent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenAI_ChatToolCalls(t *testing.T) {
	var gotReq oaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{
				Message: oaiMessage{
					Role: "assistant",
					ToolCalls: []oaiToolCall{{
						ID:   "call_1",
						Type: "function",
						Function: oaiToolCallFn{
							Name:      "calculate",
							Arguments: `{"operand1": 2, "operator": "+", "operand2": 3}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
			Usage: oaiUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "test-key", APIBase: srv.URL, Model: "test-model", Logger: testLogger()})

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: "2+3?"}},
		Tools:    []domain.ToolDefinition{{Name: "calculate", Description: "arithmetic"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if !resp.HasToolCalls() {
		t.Fatal("expected tool calls")
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "calculate" || tc.ID != "call_1" {
		t.Fatalf("unexpected tool call %+v", tc)
	}
	if op, ok := tc.Arguments["operator"].(string); !ok || op != "+" {
		t.Fatalf("arguments not decoded: %#v", tc.Arguments)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("usage not propagated: %+v", resp.Usage)
	}

	// Tool definitions must be sent as function declarations.
	if len(gotReq.Tools) != 1 || gotReq.Tools[0].Function.Name != "calculate" {
		t.Fatalf("tools not forwarded: %+v", gotReq.Tools)
	}
	if gotReq.Tools[0].Function.Parameters == nil {
		t.Fatal("missing parameters must be defaulted to an empty schema")
	}
}

func TestOpenAI_ChatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{Message: oaiMessage{Role: "assistant", Content: "ok"}, FinishReason: "stop"}},
		})
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 1 retry, server saw %d calls", calls.Load())
	}
}

func TestOpenAI_ToolResultMessagesCarryCallID(t *testing.T) {
	var gotReq oaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{Message: oaiMessage{Role: "assistant", Content: "5"}, FinishReason: "stop"}},
		})
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: "user", Content: "2+3?"},
			{Role: "assistant", ToolCalls: []domain.ToolCall{{ID: "call_1", Name: "calculate", Arguments: map[string]any{"operand1": 2}}}},
			{Role: "tool", Content: "5", ToolCallID: "call_1", ToolName: "calculate"},
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(gotReq.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(gotReq.Messages))
	}
	toolMsg := gotReq.Messages[2]
	if toolMsg.ToolCallID != "call_1" || toolMsg.Name != "calculate" {
		t.Fatalf("tool result message malformed: %+v", toolMsg)
	}
	asst := gotReq.Messages[1]
	if len(asst.ToolCalls) != 1 || asst.ToolCalls[0].Function.Name != "calculate" {
		t.Fatalf("assistant tool calls malformed: %+v", asst)
	}
}

func TestFactory(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["local"] = config.ProviderConfig{
		Enabled:      true,
		APIBase:      "http://localhost:8000/v1",
		DefaultModel: "local-model",
	}
	cfg.Providers["off"] = config.ProviderConfig{Enabled: false, APIBase: "http://x"}
	f := NewFactory(cfg, testLogger())

	p, err := f.Get("local")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name() != "local" {
		t.Fatalf("unexpected name %q", p.Name())
	}

	again, err := f.Get("local")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again != p {
		t.Fatal("factory must cache providers")
	}

	if _, err := f.Get("off"); err == nil {
		t.Fatal("disabled provider must be rejected")
	}
	if _, err := f.Get("ghost"); err == nil {
		t.Fatal("unknown provider must be rejected")
	}

	def, err := f.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if def.Name() != "openai" {
		t.Fatalf("unexpected default %q", def.Name())
	}
}
