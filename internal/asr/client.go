// Package asr implements capability.ASR against a whisper.cpp server,
// grounded on the donor's internal/pipeline/asr.go, with retry-with-backoff
// added per spec.md §4.4 (MAX_RETRIES=3, linear backoff).
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/riverrun/voicegateway/internal/audio"
	"github.com/riverrun/voicegateway/internal/capability"
	"github.com/riverrun/voicegateway/internal/httputil"
	"github.com/riverrun/voicegateway/internal/metrics"
)

const (
	maxRetries = 3
	retryDelay = 200 * time.Millisecond
)

// Client sends audio to a whisper.cpp-compatible /inference endpoint.
type Client struct {
	url    string
	client *http.Client
}

// New creates a Client pointing at a whisper.cpp server URL.
func New(url string, poolSize int) *Client {
	return &Client{url: url, client: httputil.NewPooledClient(poolSize, 30*time.Second)}
}

type whisperResponse struct {
	Text string `json:"text"`
}

// Recognize implements capability.ASR. Samples must be 16 kHz mono float32.
func (c *Client) Recognize(ctx context.Context, audioData capability.AudioData) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt+1)):
			}
		}
		text, err := c.recognizeOnce(ctx, audioData)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("asr: exhausted retries: %w", lastErr)
}

func (c *Client) recognizeOnce(ctx context.Context, audioData capability.AudioData) (string, error) {
	start := time.Now()

	body, contentType, err := buildMultipartAudio(audioData.Samples, audioData.SampleRate)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/inference", body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "http").Inc()
		return "", fmt.Errorf("asr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("asr", "status").Inc()
		return "", fmt.Errorf("asr status %d: %s", resp.StatusCode, string(respBody))
	}

	var whisperResp whisperResponse
	if err = json.NewDecoder(resp.Body).Decode(&whisperResp); err != nil {
		return "", fmt.Errorf("decode asr response: %w", err)
	}

	metrics.StageDuration.WithLabelValues("asr").Observe(time.Since(start).Seconds())
	return whisperResp.Text, nil
}

func buildMultipartAudio(samples []float32, sampleRate int) (*bytes.Buffer, string, error) {
	wavData := audio.SamplesToWAV(samples, sampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
