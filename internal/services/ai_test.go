package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"seedbed/internal/config"

	"github.com/sirupsen/logrus"
)

func newTestCompletionClient(t *testing.T, handler http.HandlerFunc) *CompletionClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewCompletionClient(config.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, logrus.New())
}

func TestCompletionClient_CreateChatCompletion(t *testing.T) {
	client := newTestCompletionClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello","reasoning":"because"}}]}`))
	})

	resp, err := client.CreateChatCompletion(context.Background(),
		[]Message{{Role: "user", Content: "hi"}}, CompletionOptions{})
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if resp.Choices[0].Message.Content != "hello" {
		t.Fatalf("unexpected content %q", resp.Choices[0].Message.Content)
	}
	if resp.Choices[0].Message.Reasoning != "because" {
		t.Fatalf("expected reasoning passthrough, got %q", resp.Choices[0].Message.Reasoning)
	}
}

func TestCompletionClient_APIError(t *testing.T) {
	client := newTestCompletionClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	})
	if _, err := client.CreateChatCompletion(context.Background(), nil, CompletionOptions{}); err == nil {
		t.Fatal("expected error for API error response")
	}
}

func TestCompletionClient_NoChoices(t *testing.T) {
	client := newTestCompletionClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})
	if _, err := client.CreateChatCompletion(context.Background(), nil, CompletionOptions{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestCompletionClient_MalformedResponse(t *testing.T) {
	client := newTestCompletionClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway timeout</html>`))
	})
	if _, err := client.CreateChatCompletion(context.Background(), nil, CompletionOptions{}); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestCompletionClient_NotConfigured(t *testing.T) {
	client := NewCompletionClient(config.OpenAIConfig{}, logrus.New())
	if _, err := client.CreateChatCompletion(context.Background(), nil, CompletionOptions{}); err == nil {
		t.Fatal("expected error when api key missing")
	}
}

func TestCompletionClient_GenerateText(t *testing.T) {
	client := newTestCompletionClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"generated"}}]}`))
	})
	text, err := client.GenerateText(context.Background(), "prompt", CompletionOptions{})
	if err != nil {
		t.Fatalf("generate text: %v", err)
	}
	if text != "generated" {
		t.Fatalf("unexpected text %q", text)
	}
}
