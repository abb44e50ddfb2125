package convo

import (
	"sync"

	"github.com/riverrun/voicegateway/internal/capability"
)

// MaxHistoryLength caps the number of non-system turns retained per
// session, per spec.md §3; the system prompt at index 0 is never evicted.
// Grounded on the runner-up orchestrator's DefaultConfig.MaxContextMessages.
const MaxHistoryLength = 20

// History is per-session LLM chat history: a pinned system message
// followed by a trimmed sliding window of user/assistant turns. Mutated by
// the Conversation Orchestrator only; the LLM capability itself is
// stateless (spec.md §4.4 moves history ownership into the core).
type History struct {
	mu       sync.Mutex
	system   capability.Message
	messages []capability.Message
}

// NewHistory creates a History pinned to systemPrompt.
func NewHistory(systemPrompt string) *History {
	return &History{system: capability.Message{Role: "system", Content: systemPrompt}}
}

// AppendUser records a user turn, trimming from the front if over capacity.
func (h *History) AppendUser(text string) {
	h.append(capability.Message{Role: "user", Content: text})
}

// AppendAssistant records an assistant turn, trimming from the front if
// over capacity.
func (h *History) AppendAssistant(text string) {
	h.append(capability.Message{Role: "assistant", Content: text})
}

func (h *History) append(msg capability.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	if len(h.messages) > MaxHistoryLength {
		excess := len(h.messages) - MaxHistoryLength
		h.messages = h.messages[excess:]
	}
}

// Snapshot returns the system message followed by the current window, safe
// to pass to an LLM.ChatStream call.
func (h *History) Snapshot() []capability.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]capability.Message, 0, len(h.messages)+1)
	out = append(out, h.system)
	out = append(out, h.messages...)
	return out
}
