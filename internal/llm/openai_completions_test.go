package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/riverrun/voicegateway/internal/capability"
)

func TestOpenAICompletionsFlattensHistoryIntoPrompt(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		capturedPrompt = req.Prompt

		fmt.Fprintln(w, `data: {"choices":[{"text":"hel"}]}`)
		fmt.Fprintln(w, `data: {"choices":[{"text":"lo"}]}`)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer server.Close()

	c := NewOpenAICompletionsClient("test-key", server.URL, "gpt-3.5-turbo-instruct", 256, 5)
	history := []capability.Message{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello there"},
	}

	text, err := c.ChatStream(context.Background(), history, "be terse", "", nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if text != "hello" {
		t.Errorf("ChatStream text = %q, want %q", text, "hello")
	}

	if !strings.HasPrefix(capturedPrompt, "be terse\n") {
		t.Errorf("prompt should start with the system prompt, got %q", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "User: hi\n") {
		t.Errorf("prompt missing flattened user turn: %q", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "Assistant: hello there\n") {
		t.Errorf("prompt missing flattened assistant turn: %q", capturedPrompt)
	}
	if !strings.HasSuffix(capturedPrompt, "Assistant:") {
		t.Errorf("prompt should end with a bare Assistant: cue, got %q", capturedPrompt)
	}
}

func TestOpenAICompletionsRetriesConnectFailures(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, `data: {"choices":[{"text":"ok"}]}`)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer server.Close()

	c := NewOpenAICompletionsClient("key", server.URL, "model", 256, 5)
	text, err := c.ChatStream(context.Background(), nil, "", "", nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if text != "ok" {
		t.Errorf("ChatStream text = %q, want %q", text, "ok")
	}
	if calls != 3 {
		t.Errorf("server received %d calls, want 3 (2 failures + 1 success)", calls)
	}
}

func TestOpenAICompletionsStopsAtDoneSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `data: {"choices":[{"text":"a"}]}`)
		fmt.Fprintln(w, `data: [DONE]`)
		fmt.Fprintln(w, `data: {"choices":[{"text":"should not appear"}]}`)
	}))
	defer server.Close()

	c := NewOpenAICompletionsClient("key", server.URL, "model", 256, 5)
	text, err := c.ChatStream(context.Background(), nil, "", "", nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if text != "a" {
		t.Errorf("ChatStream text = %q, want %q (stream should stop at [DONE])", text, "a")
	}
}
