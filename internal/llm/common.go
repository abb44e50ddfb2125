// Package llm implements capability.LLM against the chat completion APIs
// most commonly fronted by this kind of gateway: a local Ollama server, the
// Anthropic Messages API, the OpenAI completions API, and (via the
// openai-agents-go SDK) any OpenAI-compatible Responses API. Grounded on the
// donor's internal/pipeline/llm*.go, adapted so each backend consumes the
// session's full message history (owned by convo.History) instead of a
// single user message plus a separate RAG context string.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/riverrun/voicegateway/internal/capability"
)

const (
	maxRetries = 3
	retryDelay = 300 * time.Millisecond
)

// streamResult accumulates one streamed completion's text and first-token
// latency; shared across backends since each just differs in how it parses
// its wire format into token deltas.
type streamResult struct {
	text string
	ttft time.Time
}

// retryConnect retries connect attempts up to maxRetries times with linearly
// increasing backoff (retryDelay * (attempt+1)), per spec.md §4.4's LLM
// retry policy. It covers connection/status failures only: once attempt
// returns a response, the caller owns streaming it and a mid-stream failure
// is not retried here, since replaying the request would re-emit tokens
// already delivered to onToken.
func retryConnect[T any](ctx context.Context, attempt func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(retryDelay * time.Duration(i+1)):
			}
		}
		result, err := attempt()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return zero, fmt.Errorf("llm: exhausted retries: %w", lastErr)
}

// lastUserMessage returns the most recent user turn, used by backends whose
// wire protocol takes one input string rather than a full message list.
func lastUserMessage(history []capability.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}
