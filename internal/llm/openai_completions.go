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

// OpenAICompletionsClient streams from the /v1/completions endpoint, for
// models that don't support chat completions.
type OpenAICompletionsClient struct {
	apiKey    string
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOpenAICompletionsClient creates a client for the OpenAI completions API.
func NewOpenAICompletionsClient(apiKey, url, model string, maxTokens, poolSize int) *OpenAICompletionsClient {
	return &OpenAICompletionsClient{
		apiKey:    apiKey,
		url:       url,
		model:     model,
		maxTokens: maxTokens,
		client:    httputil.NewPooledClient(poolSize, 120*time.Second),
	}
}

// ChatStream implements capability.LLM. Since /v1/completions has no notion
// of message history, the full history is flattened into a single prompt.
func (c *OpenAICompletionsClient) ChatStream(ctx context.Context, history []capability.Message, systemPrompt, model string, onToken capability.TokenFunc) (string, error) {
	start := time.Now()

	resp, err := retryConnect(ctx, func() (*http.Response, error) {
		return c.connect(ctx, history, systemPrompt, model)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	sr := consumeCompletionsStream(resp.Body, onToken)
	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	return sr.text, nil
}

// connect opens the completions request and validates its status; retried
// as a unit by ChatStream before any token has been streamed.
func (c *OpenAICompletionsClient) connect(ctx context.Context, history []capability.Message, systemPrompt, model string) (*http.Response, error) {
	useModel := c.model
	if model != "" {
		useModel = model
	}

	var prompt strings.Builder
	prompt.WriteString(systemPrompt)
	prompt.WriteString("\n")
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		role := "User"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		prompt.WriteString(role + ": " + m.Content + "\n")
	}
	prompt.WriteString("Assistant:")

	body, err := json.Marshal(map[string]any{
		"model":      useModel,
		"prompt":     prompt.String(),
		"max_tokens": c.maxTokens,
		"stream":     true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completions request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create completions request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("completions request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("completions status %d: %s", resp.StatusCode, errBody)
	}
	return resp, nil
}

func consumeCompletionsStream(body io.Reader, onToken capability.TokenFunc) streamResult {
	var sr streamResult
	scanner := bufio.NewScanner(body)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return sr
		}
		var chunk struct {
			Choices []struct {
				Text string `json:"text"`
			} `json:"choices"`
		}
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Text == "" {
			continue
		}
		text := chunk.Choices[0].Text
		if sr.ttft.IsZero() {
			sr.ttft = time.Now()
		}
		if onToken != nil {
			onToken(text)
		}
		sr.text += text
	}
	return sr
}
