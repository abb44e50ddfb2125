package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/riverrun/voicegateway/internal/capability"
	"github.com/riverrun/voicegateway/internal/httputil"
	"github.com/riverrun/voicegateway/internal/metrics"
)

// AnthropicClient streams chat completions from the Anthropic Messages API.
type AnthropicClient struct {
	apiKey    string
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

// NewAnthropicClient creates an Anthropic streaming client.
func NewAnthropicClient(apiKey, url, model string, maxTokens, poolSize int) *AnthropicClient {
	return &AnthropicClient{
		apiKey:    apiKey,
		url:       url,
		model:     model,
		maxTokens: maxTokens,
		client:    httputil.NewPooledClient(poolSize, 120*time.Second),
	}
}

// ChatStream implements capability.LLM.
func (c *AnthropicClient) ChatStream(ctx context.Context, history []capability.Message, systemPrompt, model string, onToken capability.TokenFunc) (string, error) {
	start := time.Now()

	resp, err := retryConnect(ctx, func() (*http.Response, error) {
		return c.connect(ctx, history, systemPrompt, model)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	sr := consumeAnthropicStream(resp.Body, onToken)
	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	return sr.text, nil
}

// connect opens the Messages API request and validates its status; retried
// as a unit by ChatStream before any token has been streamed.
func (c *AnthropicClient) connect(ctx context.Context, history []capability.Message, systemPrompt, model string) (*http.Response, error) {
	useModel := c.model
	if model != "" {
		useModel = model
	}

	messages := make([]anthropicMessage, 0, len(history))
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     useModel,
		MaxTokens: c.maxTokens,
		Stream:    true,
		System:    systemPrompt,
		Messages:  messages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("anthropic request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("anthropic status %d: %s", resp.StatusCode, errBody)
	}
	return resp, nil
}

func consumeAnthropicStream(body io.Reader, onToken capability.TokenFunc) streamResult {
	var sr streamResult
	scanner := bufio.NewScanner(body)
	var eventType string

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if eventType == "message_stop" {
			return sr
		}
		if eventType != "content_block_delta" {
			continue
		}
		var delta anthropicDeltaEvent
		if json.Unmarshal([]byte(data), &delta) != nil {
			continue
		}
		if delta.Delta.Type != "text_delta" || delta.Delta.Text == "" {
			continue
		}
		if sr.ttft.IsZero() {
			sr.ttft = time.Now()
		}
		if onToken != nil {
			onToken(delta.Delta.Text)
		}
		sr.text += delta.Delta.Text
	}
	return sr
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicDeltaEvent struct {
	Delta anthropicDelta `json:"delta"`
}

type anthropicDelta struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
