package audioinput

import (
	"context"
	"testing"
	"time"

	"github.com/riverrun/voicegateway/internal/capability"
)

type alwaysSpeechVAD struct{}

func (alwaysSpeechVAD) Detect(chunk []byte) (bool, error) { return true, nil }
func (alwaysSpeechVAD) Reset()                            {}

type fixedASR struct{ text string }

func (f fixedASR) Recognize(ctx context.Context, audio capability.AudioData) (string, error) {
	return f.text, nil
}

func TestCleanTextStripsSpecialTokens(t *testing.T) {
	got := cleanText("<|startoftranscript|> hello world <|endoftext|>")
	if got != "hello world" {
		t.Errorf("cleanText() = %q, want %q", got, "hello world")
	}
}

func TestHandlerProcessChunkWithNoVADDropsAudio(t *testing.T) {
	h := New(Config{SessionID: "sess-1"})
	if err := h.ProcessChunk(nil, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("ProcessChunk with nil VAD should not error: %v", err)
	}
	if !h.buf.IsEmpty() {
		t.Error("audio should be dropped, not buffered, when no VAD is registered")
	}
}

func TestHandlerProcessChunkBuffersSpeech(t *testing.T) {
	h := New(Config{SessionID: "sess-1"})
	if err := h.ProcessChunk(alwaysSpeechVAD{}, make([]byte, 320)); err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}
	if h.buf.IsEmpty() {
		t.Error("speech chunks should be appended to the buffer")
	}
}

func TestHandlerSignalSpeechEndIsIdempotent(t *testing.T) {
	h := New(Config{SessionID: "sess-1"})
	h.SignalSpeechEnd()
	h.SignalSpeechEnd()
	if !h.clientEnded.Load() {
		t.Error("clientEnded should be set after SignalSpeechEnd")
	}
}

func TestHandlerRunFlushesFinalSegmentOnSpeechEnd(t *testing.T) {
	done := make(chan string, 1)
	h := New(Config{
		SessionID:     "sess-1",
		CheckInterval: 5 * time.Millisecond,
		Segment: SegmentDetectorConfig{
			SilenceTimeout:    time.Hour,
			MaxBufferDuration: time.Hour,
			MinSegment:        0,
		},
		OnFinal: func(text string) { done <- text },
	})

	if err := h.ProcessChunk(alwaysSpeechVAD{}, make([]byte, 3200)); err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx, func() (capability.ASR, bool) { return fixedASR{text: "hello there"}, true })

	h.SignalSpeechEnd()

	select {
	case text := <-done:
		if text != "hello there" {
			t.Errorf("OnFinal text = %q, want %q", text, "hello there")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnFinal to fire after SignalSpeechEnd")
	}
}

func TestHandlerRunEmitsEmptyFinalWhenNoSpeechBuffered(t *testing.T) {
	done := make(chan string, 1)
	h := New(Config{
		SessionID:     "sess-1",
		CheckInterval: 5 * time.Millisecond,
		OnFinal:       func(text string) { done <- text },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx, func() (capability.ASR, bool) { return fixedASR{text: "unused"}, true })

	h.SignalSpeechEnd()

	select {
	case text := <-done:
		if text != "" {
			t.Errorf("OnFinal text = %q, want empty string with no buffered audio", text)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnFinal")
	}
}
