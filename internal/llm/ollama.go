package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/riverrun/voicegateway/internal/capability"
	"github.com/riverrun/voicegateway/internal/httputil"
	"github.com/riverrun/voicegateway/internal/metrics"
)

// OllamaClient streams chat completions from a local Ollama server.
type OllamaClient struct {
	url          string
	model        string
	systemPrompt string
	maxTokens    int
	client       *http.Client
}

// NewOllamaClient creates an Ollama HTTP client.
func NewOllamaClient(url, model, systemPrompt string, maxTokens, poolSize int) *OllamaClient {
	return &OllamaClient{
		url:          url,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       httputil.NewPooledClient(poolSize, 60*time.Second),
	}
}

// ChatStream implements capability.LLM.
func (c *OllamaClient) ChatStream(ctx context.Context, history []capability.Message, systemPrompt, model string, onToken capability.TokenFunc) (string, error) {
	start := time.Now()

	resp, err := retryConnect(ctx, func() (*http.Response, error) {
		return c.connect(ctx, history, systemPrompt, model)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	sr := c.consumeStream(resp, onToken)
	metrics.StageDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	return sr.text, nil
}

// connect opens the chat request and validates its status; retried as a
// unit by ChatStream before any token has been streamed.
func (c *OllamaClient) connect(ctx context.Context, history []capability.Message, systemPrompt, model string) (*http.Response, error) {
	resp, err := c.postChatRequest(ctx, history, systemPrompt, model)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, body)
	}
	return resp, nil
}

func (c *OllamaClient) postChatRequest(ctx context.Context, history []capability.Message, systemPrompt, model string) (*http.Response, error) {
	sysPrompt := c.systemPrompt
	if systemPrompt != "" {
		sysPrompt = systemPrompt
	}
	useModel := c.model
	if model != "" {
		useModel = model
	}

	messages := make([]ollamaMessage, 0, len(history)+1)
	messages = append(messages, ollamaMessage{Role: "system", Content: sysPrompt})
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		messages = append(messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	reqBody := ollamaRequest{
		Model:    useModel,
		Stream:   true,
		Options:  ollamaOptions{NumPredict: c.maxTokens},
		Messages: messages,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	return resp, nil
}

func (c *OllamaClient) consumeStream(resp *http.Response, onToken capability.TokenFunc) streamResult {
	var sr streamResult
	scanner := bufio.NewScanner(resp.Body)

	for scanner.Scan() {
		var chunk ollamaStreamChunk
		if json.Unmarshal(scanner.Bytes(), &chunk) != nil {
			continue
		}
		if chunk.Done {
			return sr
		}
		content := chunk.Message.Content
		if content == "" {
			continue
		}
		if sr.ttft.IsZero() {
			sr.ttft = time.Now()
		}
		if onToken != nil {
			onToken(content)
		}
		sr.text += content
	}
	return sr
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaStreamChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}
