package audioinput

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riverrun/voicegateway/internal/audio"
	"github.com/riverrun/voicegateway/internal/capability"
)

// specialTokenPattern strips engine-specific tag markers from ASR output,
// matching the Python original's SPECIAL_TOKENS_PATTERN exactly.
var specialTokenPattern = regexp.MustCompile(`<\|.*?\|>`)

func cleanText(s string) string {
	return strings.TrimSpace(specialTokenPattern.ReplaceAllString(s, ""))
}

// Handler is the Audio Input Pipeline: VAD-gated chunk intake, a
// cooperative monitor loop, and the ASR driver that turns a drained
// segment into cleaned, accumulated transcript text. Grounded on
// handlers/audio_input.py's AudioInputHandler.
type Handler struct {
	sessionID     string
	buf           *Buffer
	cfg           SegmentDetectorConfig
	checkInterval time.Duration
	sampleRate    int

	isProcessing atomic.Bool
	clientEnded  atomic.Bool
	wake         chan struct{}

	segMu    sync.Mutex
	segments []string

	loggedNoVAD atomic.Bool

	onFinal func(text string)
}

// Config bundles Handler construction parameters.
type Config struct {
	SessionID     string
	SampleRate    int
	CheckInterval time.Duration
	Segment       SegmentDetectorConfig
	OnFinal       func(text string)
}

// New creates a Handler. OnFinal is called exactly once per closed
// utterance, even when the joined transcript is empty, so the Orchestrator
// can reset turn state per §4.2.
func New(cfg Config) *Handler {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &Handler{
		sessionID:     cfg.SessionID,
		buf:           NewBuffer(),
		cfg:           cfg.Segment,
		checkInterval: cfg.CheckInterval,
		sampleRate:    cfg.SampleRate,
		wake:          make(chan struct{}, 1),
		onFinal:       cfg.OnFinal,
	}
}

// ProcessChunk runs the chunk through VAD; speech chunks are appended to
// the buffer, non-speech chunks are discarded. A nil vad drops the chunk
// and logs a warning once per session, per §4.2.
func (h *Handler) ProcessChunk(vad capability.VAD, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if vad == nil {
		if h.loggedNoVAD.CompareAndSwap(false, true) {
			slog.Warn("no VAD backend registered, dropping audio", "session_id", h.sessionID)
		}
		return nil
	}
	isSpeech, err := vad.Detect(chunk)
	if err != nil {
		return err
	}
	if isSpeech {
		h.buf.Append(chunk, h.sessionID)
	}
	return nil
}

// SignalSpeechEnd marks the utterance as client-ended and wakes the
// monitor loop. Calling it twice in a row is idempotent (L2): the second
// call either finds the flag already set or finds nothing left to process.
func (h *Handler) SignalSpeechEnd() {
	h.clientEnded.Store(true)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Resolver resolves the currently active ASR backend at call time rather
// than once at session start, so a hot-swapped backend takes effect on the
// very next segment (§4.4's "retrieved by name at turn time" requirement).
type Resolver func() (capability.ASR, bool)

// Run is the per-session monitor loop: it wakes on either a CheckInterval
// tick or a speech-end signal, evaluates the Segment Detector against the
// buffer's current duration and last-speech time, and processes a segment
// when indicated. It returns when ctx is canceled.
func (h *Handler) Run(ctx context.Context, resolveASR Resolver) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx, resolveASR)
		case <-h.wake:
			h.tick(ctx, resolveASR)
		}
	}
}

func (h *Handler) tick(ctx context.Context, resolveASR Resolver) {
	if h.isProcessing.Load() {
		return
	}
	clientEnded := h.clientEnded.Load()
	durSeconds := h.buf.DurationSeconds()
	decision := Evaluate(h.cfg, time.Duration(durSeconds*float64(time.Second)), h.buf.LastSpeechTime(), clientEnded, time.Now())
	if clientEnded {
		h.clientEnded.Store(false)
	}
	if !decision.ShouldProcess {
		return
	}
	h.isProcessing.Store(true)
	go func() {
		defer h.isProcessing.Store(false)
		asr, _ := resolveASR()
		h.process(ctx, asr, decision.IsFinal)
	}()
}

func (h *Handler) process(ctx context.Context, asr capability.ASR, isFinal bool) {
	raw := h.buf.Drain()
	var text string
	if asr != nil && len(raw) > 0 {
		samples := audio.DecodePCM(raw)
		out, err := asr.Recognize(ctx, capability.AudioData{Samples: samples, SampleRate: h.sampleRate, Format: "pcm"})
		if err != nil {
			slog.Warn("asr recognize failed", "session_id", h.sessionID, "is_final", isFinal, "error", err)
		} else {
			text = out
		}
	}
	cleaned := cleanText(text)

	h.segMu.Lock()
	if cleaned != "" {
		h.segments = append(h.segments, cleaned)
	}
	if !isFinal {
		h.segMu.Unlock()
		return
	}
	final := strings.TrimSpace(strings.Join(h.segments, " "))
	h.segments = nil
	h.segMu.Unlock()

	if h.onFinal != nil {
		h.onFinal(final)
	}
}
