package convo

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/riverrun/voicegateway/internal/capability"
	"github.com/riverrun/voicegateway/internal/protocol"
)

type scriptedLLM struct{ tokens []string }

func (s scriptedLLM) ChatStream(ctx context.Context, history []capability.Message, systemPrompt, model string, onToken capability.TokenFunc) (string, error) {
	var full string
	for _, tok := range s.tokens {
		onToken(tok)
		full += tok
	}
	return full, nil
}

type recordingTTS struct {
	mu          sync.Mutex
	synthesized []string
}

func (r *recordingTTS) SynthesizeStream(ctx context.Context, text string, onChunk func(protocol.AudioData) error) error {
	r.mu.Lock()
	r.synthesized = append(r.synthesized, text)
	r.mu.Unlock()
	return onChunk(protocol.NewAudioData([]byte("wav-bytes"), "wav", true))
}

type eventCollector struct {
	mu     sync.Mutex
	events []protocol.StreamEvent
}

func (c *eventCollector) send(ev protocol.StreamEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *eventCollector) snapshot() []protocol.StreamEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.StreamEvent, len(c.events))
	copy(out, c.events)
	return out
}

func newTestOrchestrator(t *testing.T, llm capability.LLM, tts capability.TTS) (*Orchestrator, *eventCollector) {
	t.Helper()
	reg := capability.NewRegistry()
	reg.RegisterLLM("stub", llm)
	if tts != nil {
		reg.RegisterTTS("stub", tts)
	}
	collector := &eventCollector{}
	orch := New(Config{
		SessionID:    "sess-1",
		TagID:        "tag-1",
		Registry:     reg,
		Send:         collector.send,
		SystemPrompt: "be helpful",
		AudioFormat:  "wav",
		SampleRate:   16000,
	})
	t.Cleanup(func() { orch.Close() })
	return orch, collector
}

func waitForFinalText(t *testing.T, collector *eventCollector) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		for _, ev := range collector.snapshot() {
			if ev.EventType == protocol.EventServerTextResponse {
				var td protocol.TextData
				if json.Unmarshal(ev.EventData, &td) == nil && td.IsFinal {
					return
				}
			}
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a final text event")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestOrchestratorTextOnlyRoundTrip(t *testing.T) {
	llm := scriptedLLM{tokens: []string{"hello ", "there."}}
	orch, collector := newTestOrchestrator(t, llm, nil)

	orch.HandleTextInput("hi")
	waitForFinalText(t, collector)

	var joined string
	for _, ev := range collector.snapshot() {
		if ev.EventType != protocol.EventServerTextResponse {
			continue
		}
		var td protocol.TextData
		if json.Unmarshal(ev.EventData, &td) == nil {
			joined += td.Text
		}
	}
	if joined != "hello there." {
		t.Errorf("joined text responses = %q, want %q", joined, "hello there.")
	}
}

func TestOrchestratorWithTTSSendsOneSentencePerDelimiter(t *testing.T) {
	llm := scriptedLLM{tokens: []string{"First part. ", "Second part."}}
	tts := &recordingTTS{}
	orch, collector := newTestOrchestrator(t, llm, tts)

	orch.HandleTextInput("go")
	waitForFinalText(t, collector)

	tts.mu.Lock()
	defer tts.mu.Unlock()
	if len(tts.synthesized) < 2 {
		t.Fatalf("expected at least 2 sentences sent to TTS, got %v", tts.synthesized)
	}

	var audioCount int
	for _, ev := range collector.snapshot() {
		if ev.EventType == protocol.EventServerAudioResponse {
			audioCount++
		}
	}
	if audioCount == 0 {
		t.Error("expected at least one audio response event")
	}
}

func TestHandleAudioSetsInterruptOnRisingEdge(t *testing.T) {
	llm := scriptedLLM{}
	orch, _ := newTestOrchestrator(t, llm, nil)

	if orch.interruptFlag.Load() {
		t.Fatal("interrupt flag should start false")
	}
	orch.HandleAudio(make([]byte, 320))
	if !orch.interruptFlag.Load() {
		t.Error("HandleAudio should set the interrupt flag on the rising edge")
	}

	_, wasInterrupted := orch.turn.Snapshot()
	if !wasInterrupted {
		t.Error("turn context should record the interruption")
	}
}

func TestOnInputResultMergesInterruptedText(t *testing.T) {
	llm := scriptedLLM{}
	orch, _ := newTestOrchestrator(t, llm, nil)

	orch.turn.Complete("earlier words")
	orch.turn.SetInterrupted(true)
	orch.interruptFlag.Store(true)

	orch.onInputResult("continued words")

	text, interrupted := orch.turn.Snapshot()
	if interrupted {
		t.Error("onInputResult should clear the interrupted flag on completion")
	}
	if text != "earlier words continued words" {
		t.Errorf("effective text = %q, want merged interrupted text", text)
	}
}

func TestOnInputResultEmptyTextClearsInterruptWithoutTurn(t *testing.T) {
	llm := scriptedLLM{}
	orch, collector := newTestOrchestrator(t, llm, nil)

	orch.turn.SetInterrupted(true)
	orch.onInputResult("")

	_, interrupted := orch.turn.Snapshot()
	if interrupted {
		t.Error("an empty final transcript should clear the interrupted flag")
	}
	if len(collector.snapshot()) != 0 {
		t.Error("an empty final transcript should not trigger a conversation turn")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	llm := scriptedLLM{}
	orch, _ := newTestOrchestrator(t, llm, nil)

	if err := orch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := orch.Close(); err != nil {
		t.Fatalf("second Close should also succeed: %v", err)
	}
}
