// Package tts implements capability.TTS against a Piper HTTP synthesis
// server, grounded on the donor's internal/pipeline/tts.go. Piper returns
// one complete WAV response per request; SynthesizeStream delivers those WAV
// bytes unchanged to the caller as a single audio chunk, which keeps the
// capability.TTS streaming-callback contract while the backend itself has
// nothing to stream incrementally.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/riverrun/voicegateway/internal/httputil"
	"github.com/riverrun/voicegateway/internal/metrics"
	"github.com/riverrun/voicegateway/internal/protocol"
)

const (
	maxRetries = 3
	retryDelay = 500 * time.Millisecond
)

// voiceModels maps engine mode to a Piper voice model name.
var voiceModels = map[string]string{
	"fast":    "en_US-lessac-low",
	"quality": "en_US-lessac-medium",
	"piper":   "en_US-lessac-low",
	"coqui":   "en_US-lessac-medium",
}

// PiperClient synthesizes speech from text via a Piper HTTP API.
type PiperClient struct {
	url    string
	engine string
	client *http.Client
}

// NewPiperClient creates a TTS client pointing at the Piper service. engine
// selects the voice ("fast" or "quality") for every call this client makes.
func NewPiperClient(url, engine string, poolSize int) *PiperClient {
	return &PiperClient{
		url:    url,
		engine: engine,
		client: httputil.NewPooledClient(poolSize, 30*time.Second),
	}
}

// SynthesizeStream implements capability.TTS. It performs one blocking
// Piper request for the full sentence and invokes onChunk once with Piper's
// WAV response as-is (format "wav"; it is not decoded to PCM). Per spec.md §4.4,
// a failed request is retried up to maxRetries times with a flat retryDelay
// between attempts; since onChunk is only ever called after a full response
// is in hand, retrying the whole request never double-delivers audio.
func (c *PiperClient) SynthesizeStream(ctx context.Context, text string, onChunk func(protocol.AudioData) error) error {
	start := time.Now()

	var lastErr error
	var wavBytes []byte
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		var err error
		wavBytes, err = c.synthesizeOnce(ctx, text)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("tts: exhausted retries: %w", lastErr)
	}

	metrics.StageDuration.WithLabelValues("tts").Observe(time.Since(start).Seconds())

	ad := protocol.NewAudioData(wavBytes, "wav", true)
	return onChunk(ad)
}

func (c *PiperClient) synthesizeOnce(ctx context.Context, text string) ([]byte, error) {
	voice := resolveVoice(c.engine)

	reqBody, err := json.Marshal(ttsRequest{Text: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/synthesize", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "http").Inc()
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("tts", "status").Inc()
		return nil, fmt.Errorf("tts status %d", resp.StatusCode)
	}

	wavBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	return wavBytes, nil
}

func resolveVoice(engine string) string {
	voice, ok := voiceModels[engine]
	if !ok {
		return voiceModels["fast"]
	}
	return voice
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}
