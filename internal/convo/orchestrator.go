// Package convo implements the Conversation Orchestrator: the per-session
// owner of the TurnContext and InterruptFlag that drives ASR-triggered and
// text-triggered turns through the LLM and, when configured, TTS, and
// multiplexes the resulting events back to the client. Grounded on
// core/conversation.py's ConversationHandler, with the LLM→TTS pipelining
// mechanism adapted from the donor's internal/pipeline streamLLMWithTTS.
package convo

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riverrun/voicegateway/internal/audioinput"
	"github.com/riverrun/voicegateway/internal/capability"
	"github.com/riverrun/voicegateway/internal/protocol"
	"github.com/riverrun/voicegateway/internal/session"
)

// SendFunc delivers one outbound StreamEvent to the client. Implementations
// must be safe to call from any goroutine and must swallow write failures
// rather than propagating them into the Orchestrator, per §4.1.
type SendFunc func(protocol.StreamEvent) error

// Config bundles everything needed to construct an Orchestrator.
type Config struct {
	SessionID    string
	TagID        string
	Registry     *capability.Registry
	Send         SendFunc
	SystemPrompt string
	LLMModel     string
	LLMEngine    string
	AudioFormat  string // declared format for outbound TTS audio, e.g. "mp3"
	SampleRate   int
}

// Orchestrator is the per-session Conversation Orchestrator.
type Orchestrator struct {
	cfg  Config
	turn *session.TurnContext

	interruptFlag atomic.Bool
	history       *History
	audio         *audioinput.Handler

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New constructs an Orchestrator and starts its audio monitor loop. The
// caller must call Close when the session ends.
func New(cfg Config) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:     cfg,
		turn:    &session.TurnContext{},
		history: NewHistory(cfg.SystemPrompt),
		ctx:     ctx,
		cancel:  cancel,
	}
	o.audio = audioinput.New(audioinput.Config{
		SessionID:     cfg.SessionID,
		SampleRate:    cfg.SampleRate,
		Segment:       audioinput.DefaultSegmentDetectorConfig(),
		CheckInterval: audioinput.DefaultCheckInterval,
		OnFinal:       o.onInputResult,
	})
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.audio.Run(o.ctx, o.cfg.Registry.ActiveASR)
	}()
	return o
}

// HandleAudio is the audio entry point. Per §4.3, if InterruptFlag is
// currently false, this is the rising edge that cuts off any in-flight
// turn: it is set exactly once per burst of user audio while false.
func (o *Orchestrator) HandleAudio(chunk []byte) error {
	if !o.interruptFlag.Load() {
		o.interruptFlag.Store(true)
		o.turn.SetInterrupted(true)
	}
	vad, _ := o.cfg.Registry.ActiveVAD()
	return o.audio.ProcessChunk(vad, chunk)
}

// HandleSpeechEnd forwards a client speech-end (or STREAM_END) signal.
func (o *Orchestrator) HandleSpeechEnd() {
	o.audio.SignalSpeechEnd()
}

// HandleTextInput is the Text Input Path: it normalizes whitespace and
// synthesizes an equivalent final ASR result, unifying text and audio
// input modes behind the same on_input_result entry point.
func (o *Orchestrator) HandleTextInput(text string) {
	o.onInputResult(strings.Join(strings.Fields(text), " "))
}

// onInputResult is the single entry point for utterance completion
// (§4.3). Only ever called with a final transcript, possibly empty.
func (o *Orchestrator) onInputResult(text string) {
	if text == "" {
		o.turn.SetInterrupted(false)
		return
	}

	last, wasInterrupted := o.turn.Snapshot()
	effective := text
	if wasInterrupted {
		effective = strings.TrimSpace(last + " " + text)
	}
	o.turn.Complete(effective)
	o.interruptFlag.Store(false)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.triggerConversation(effective)
	}()
}

func (o *Orchestrator) now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (o *Orchestrator) sendText(text string, isFinal bool) {
	ev, err := protocol.Marshal(protocol.EventServerTextResponse, o.cfg.SessionID, o.cfg.TagID, o.now(), protocol.TextData{Text: text, IsFinal: isFinal})
	if err != nil {
		slog.Error("marshal text event failed", "session_id", o.cfg.SessionID, "error", err)
		return
	}
	if err := o.cfg.Send(ev); err != nil {
		slog.Debug("send text event failed", "session_id", o.cfg.SessionID, "error", err)
	}
}

func (o *Orchestrator) sendAudio(ad protocol.AudioData) {
	ev, err := protocol.Marshal(protocol.EventServerAudioResponse, o.cfg.SessionID, o.cfg.TagID, o.now(), ad)
	if err != nil {
		slog.Error("marshal audio event failed", "session_id", o.cfg.SessionID, "error", err)
		return
	}
	if err := o.cfg.Send(ev); err != nil {
		slog.Debug("send audio event failed", "session_id", o.cfg.SessionID, "error", err)
	}
}

func (o *Orchestrator) sendError(msg string) {
	ev, err := protocol.Marshal(protocol.EventError, o.cfg.SessionID, o.cfg.TagID, o.now(), protocol.ErrorData{Text: msg})
	if err != nil {
		return
	}
	if err := o.cfg.Send(ev); err != nil {
		slog.Debug("send error event failed", "session_id", o.cfg.SessionID, "error", err)
	}
}

// triggerConversation resolves capabilities and runs one turn, per §4.3.
func (o *Orchestrator) triggerConversation(effective string) {
	llm, ok := o.cfg.Registry.ActiveLLM()
	if !ok {
		o.sendError("no language model backend available")
		return
	}
	tts, hasTTS := o.cfg.Registry.ActiveTTS()

	o.history.AppendUser(effective)
	history := o.history.Snapshot()

	var assistant strings.Builder
	onToken := func(token string) {
		assistant.WriteString(token)
	}

	if hasTTS {
		o.runWithTTS(llm, tts, history, &assistant)
	} else {
		o.runTextOnly(llm, history, onToken)
	}

	if !o.interruptFlag.Load() && assistant.Len() > 0 {
		o.history.AppendAssistant(assistant.String())
	}
}

type sentenceMsg struct {
	text    string
	isFinal bool
}

// runWithTTS streams the LLM response, splits it into sentences, and hands
// each sentence to TTS in strict arrival order. One consumer goroutine
// drains sentenceCh so TTS of sentence N overlaps the LLM still producing
// sentence N+1's tokens, while output ordering is never in question — this
// is the deliberate departure from the donor's streamLLMWithTTS, whose
// per-sentence goroutines could reorder audio across sentences.
func (o *Orchestrator) runWithTTS(llm capability.LLM, tts capability.TTS, history []capability.Message, assistant *strings.Builder) {
	sentenceCh := make(chan sentenceMsg, 4)
	var consumerWG sync.WaitGroup
	consumerWG.Add(1)
	go func() {
		defer consumerWG.Done()
		for msg := range sentenceCh {
			if msg.text == "" {
				if !o.interruptFlag.Load() {
					o.sendText("", true)
				}
				continue
			}
			o.sendSentence(tts, msg.text, msg.isFinal)
		}
	}()

	var buf strings.Builder
	onToken := func(token string) {
		if o.interruptFlag.Load() {
			return
		}
		assistant.WriteString(token)
		buf.WriteString(token)
		sentences, remainder := splitSentences(buf.String())
		buf.Reset()
		buf.WriteString(remainder)
		for _, s := range sentences {
			if o.interruptFlag.Load() {
				return
			}
			sentenceCh <- sentenceMsg{text: s}
		}
	}

	ctx, cancel := context.WithCancel(o.ctx)
	defer cancel()
	_, err := llm.ChatStream(ctx, history, o.cfg.SystemPrompt, o.cfg.LLMModel, onToken)
	if err != nil && !o.interruptFlag.Load() {
		slog.Warn("llm chat stream failed", "session_id", o.cfg.SessionID, "error", err)
		o.sendError("language model is currently unavailable")
	}

	if !o.interruptFlag.Load() {
		sentenceCh <- sentenceMsg{text: buf.String(), isFinal: true}
	}
	close(sentenceCh)
	consumerWG.Wait()
}

func (o *Orchestrator) sendSentence(tts capability.TTS, text string, isFinal bool) {
	if o.interruptFlag.Load() {
		return
	}
	o.sendText(text, isFinal)

	ctx, cancel := context.WithCancel(o.ctx)
	defer cancel()
	err := tts.SynthesizeStream(ctx, text, func(ad protocol.AudioData) error {
		if o.interruptFlag.Load() {
			return context.Canceled
		}
		ad.Format = o.cfg.AudioFormat
		o.sendAudio(ad)
		return nil
	})
	if err != nil && err != context.Canceled && !o.interruptFlag.Load() {
		slog.Warn("tts synthesize failed", "session_id", o.cfg.SessionID, "error", err)
	}
}

// runTextOnly forwards LLM chunks directly without TTS, per §4.3.
func (o *Orchestrator) runTextOnly(llm capability.LLM, history []capability.Message, onToken capability.TokenFunc) {
	wrapped := func(token string) {
		if o.interruptFlag.Load() {
			return
		}
		onToken(token)
		o.sendText(token, false)
	}
	ctx, cancel := context.WithCancel(o.ctx)
	defer cancel()
	_, err := llm.ChatStream(ctx, history, o.cfg.SystemPrompt, o.cfg.LLMModel, wrapped)
	if err != nil && !o.interruptFlag.Load() {
		slog.Warn("llm chat stream failed", "session_id", o.cfg.SessionID, "error", err)
		o.sendError("language model is currently unavailable")
	}
	if !o.interruptFlag.Load() {
		o.sendText("", true)
	}
}

// Close stops the Orchestrator idempotently: cancels all background work
// and the audio monitor loop without waiting for in-flight LLM/TTS calls.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.cancel()
	})
	return nil
}
