package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/riverrun/voicegateway/internal/capability"
)

// AgentClient streams chat completions through the openai-agents-go SDK,
// giving any OpenAI-compatible Responses API a capability.LLM backend
// without hand-rolling its streaming wire format. It runs one turn per
// call; per-session history is supplied by the caller and flattened into
// the single input the Runner expects, since the SDK owns no cross-call
// conversation state itself.
type AgentClient struct {
	provider  agents.ModelProvider
	model     string
	maxTokens int
}

// NewAgentClient creates an AgentClient against provider with the given
// default model.
func NewAgentClient(provider agents.ModelProvider, model string, maxTokens int) *AgentClient {
	return &AgentClient{provider: provider, model: model, maxTokens: maxTokens}
}

// ChatStream implements capability.LLM.
func (a *AgentClient) ChatStream(ctx context.Context, history []capability.Message, systemPrompt, model string, onToken capability.TokenFunc) (string, error) {
	useModel := a.model
	if model != "" {
		useModel = model
	}

	agent := agents.New("assistant").
		WithInstructions(systemPrompt).
		WithModel(useModel).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(a.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	input := renderTranscript(history)

	// Retry the stream start only: once events/errCh come back, a failure
	// mid-stream is surfaced as-is rather than retried, since replaying the
	// call would re-emit tokens already delivered to onToken.
	events, errCh, err := runner.RunStreamedChan(ctx, agent, input)
	for attempt := 1; err != nil && attempt < maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryDelay * time.Duration(attempt+1)):
		}
		events, errCh, err = runner.RunStreamedChan(ctx, agent, input)
	}
	if err != nil {
		return "", fmt.Errorf("llm stream start: exhausted retries: %w", err)
	}

	var sr streamResult
	var textBuf strings.Builder
	for ev := range events {
		raw, ok := ev.(agents.RawResponsesStreamEvent)
		if !ok || raw.Data.Type != "response.output_text.delta" {
			continue
		}
		if sr.ttft.IsZero() {
			sr.ttft = time.Now()
		}
		if onToken != nil {
			onToken(raw.Data.Delta)
		}
		textBuf.WriteString(raw.Data.Delta)
	}

	if streamErr := <-errCh; streamErr != nil {
		return "", fmt.Errorf("llm stream: %w", streamErr)
	}
	return textBuf.String(), nil
}

// renderTranscript flattens history into the single input string the
// Runner expects; the most recent user turn carries the live question,
// earlier turns give it conversational grounding.
func renderTranscript(history []capability.Message) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		role := "User"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		b.WriteString(role + ": " + m.Content + "\n")
	}
	if b.Len() == 0 {
		return lastUserMessage(history)
	}
	return b.String()
}
