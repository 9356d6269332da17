package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lkaczmarek/paragon-pipeline/internal/common"
)

func chatReq() ChatRequest {
	return ChatRequest{
		Model: "test-model",
		Messages: []Message{
			{Role: "system", Content: "parse receipts"},
			{Role: "user", Content: "LIDL\nMleko 7.18"},
		},
		Format:  "json",
		Options: map[string]any{"temperature": 0.0},
	}
}

func TestChatSuccess(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte(`{"message":{"content":"{\"items\":[]}"}}`))
	}))
	defer srv.Close()

	c := NewClient(common.LLMConfig{BaseURL: srv.URL}, nil)
	content, err := c.Chat(context.Background(), chatReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != `{"items":[]}` {
		t.Errorf("content = %q", content)
	}
	if got["stream"] != false {
		t.Errorf("stream = %v, want false", got["stream"])
	}
	if got["format"] != "json" {
		t.Errorf("format = %v, want json", got["format"])
	}
	if got["model"] != "test-model" {
		t.Errorf("model = %v", got["model"])
	}
}

func TestChatServerErrorIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(common.LLMConfig{BaseURL: srv.URL}, nil)
	_, err := c.Chat(context.Background(), chatReq())
	var statusErr *common.HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if statusErr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", statusErr.Status)
	}
}

func TestChatTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(common.LLMConfig{BaseURL: srv.URL, Timeout: time.Second}, nil)
	_, err := c.Chat(context.Background(), chatReq())
	if common.KindOf(err) != common.KindTransient {
		t.Fatalf("kind = %q, want TRANSIENT_PROVIDER (%v)", common.KindOf(err), err)
	}
}

func TestChatValidation(t *testing.T) {
	c := NewClient(common.LLMConfig{}, nil)

	_, err := c.Chat(context.Background(), ChatRequest{Model: "m"})
	if common.KindOf(err) != common.KindValidation {
		t.Errorf("empty messages: kind = %q, want VALIDATION", common.KindOf(err))
	}

	req := chatReq()
	req.Model = ""
	_, err = c.Chat(context.Background(), req)
	if common.KindOf(err) != common.KindValidation {
		t.Errorf("empty model: kind = %q, want VALIDATION", common.KindOf(err))
	}
}
