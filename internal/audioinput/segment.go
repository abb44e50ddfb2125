package audioinput

import "time"

// Default thresholds, confirmed against
// core/audio/speech_segment_detector.py's SegmentDetectionConfig defaults.
const (
	DefaultSilenceTimeout    = 1000 * time.Millisecond
	DefaultMaxBufferDuration = 5 * time.Second
	DefaultMinSegmentSeconds = 300 * time.Millisecond
	DefaultCheckInterval     = 200 * time.Millisecond
)

// SegmentDetectorConfig holds the tunable thresholds for Evaluate.
type SegmentDetectorConfig struct {
	SilenceTimeout    time.Duration
	MaxBufferDuration time.Duration
	MinSegment        time.Duration
}

// DefaultSegmentDetectorConfig returns the spec defaults.
func DefaultSegmentDetectorConfig() SegmentDetectorConfig {
	return SegmentDetectorConfig{
		SilenceTimeout:    DefaultSilenceTimeout,
		MaxBufferDuration: DefaultMaxBufferDuration,
		MinSegment:        DefaultMinSegmentSeconds,
	}
}

// SegmentDecision is the pure-function result of Evaluate.
type SegmentDecision struct {
	ShouldProcess bool
	IsFinal       bool
	Reason        string
}

// Evaluate is the Segment Detector: a pure function of buffer duration,
// last-speech time, and the client-ended flag. Rule order matches
// SpeechSegmentDetector.should_process exactly — the first matching rule
// wins: client_signal > silence_timeout > max_buffer > waiting.
func Evaluate(cfg SegmentDetectorConfig, bufferDuration time.Duration, lastSpeechTime time.Time, clientEnded bool, now time.Time) SegmentDecision {
	if clientEnded {
		return SegmentDecision{ShouldProcess: true, IsFinal: true, Reason: "client_signal"}
	}
	if now.Sub(lastSpeechTime) >= cfg.SilenceTimeout && bufferDuration >= cfg.MinSegment {
		return SegmentDecision{ShouldProcess: true, IsFinal: true, Reason: "silence_timeout"}
	}
	if bufferDuration >= cfg.MaxBufferDuration {
		return SegmentDecision{ShouldProcess: true, IsFinal: false, Reason: "max_buffer"}
	}
	return SegmentDecision{ShouldProcess: false, IsFinal: false, Reason: "waiting"}
}
