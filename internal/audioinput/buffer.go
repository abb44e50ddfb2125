package audioinput

import (
	"log/slog"
	"sync"
	"time"
)

// MaxBufferBytes is the hard cap on buffered speech audio per session,
// confirmed byte-for-byte against the Python original's MAX_BUFFER_SIZE.
const MaxBufferBytes = 10 * 1024 * 1024

// BytesPerSecond is the default audio rate used to convert buffered byte
// counts into a duration: 16 kHz mono 16-bit PCM (sample_rate × channels ×
// sample_width), matching DEFAULT_BYTES_PER_SECOND in the original.
const BytesPerSecond = 32000

// Buffer is a mutex-protected append-only queue of speech-only audio bytes
// plus a last-speech timestamp, grounded on handlers/audio_input.py's
// AudioInputHandler buffer plus core/audio/audio_buffer_manager.py's
// AudioBufferManager, merged into one type since nothing in this codebase
// needs them separated.
type Buffer struct {
	mu             sync.Mutex
	data           []byte
	lastSpeechTime time.Time
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a speech chunk and updates last_speech_time. If appending
// would exceed MaxBufferBytes, the buffer is cleared first and a warning
// logged — correctness over completeness when ASR can't keep up.
func (b *Buffer) Append(chunk []byte, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data)+len(chunk) > MaxBufferBytes {
		slog.Warn("audio buffer overflow, clearing", "session_id", sessionID, "bytes", len(b.data))
		b.data = b.data[:0]
	}
	b.data = append(b.data, chunk...)
	b.lastSpeechTime = time.Now()
}

// Drain returns and clears the buffered bytes atomically.
func (b *Buffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.data
	b.data = nil
	return out
}

// DurationSeconds reports the buffered audio's duration at BytesPerSecond.
func (b *Buffer) DurationSeconds() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(len(b.data)) / float64(BytesPerSecond)
}

// IsEmpty reports whether the buffer currently holds no bytes.
func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) == 0
}

// LastSpeechTime returns the timestamp of the most recent Append.
func (b *Buffer) LastSpeechTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSpeechTime
}
