// Package httputil provides the pooled HTTP client constructor shared by
// the ASR, LLM, and TTS capability backends, grounded on the donor's
// internal/pipeline/httpclient.go.
package httputil

import (
	"net/http"
	"time"
)

// NewPooledClient creates an http.Client with connection pooling and a
// tuned transport for repeated calls to one backend.
func NewPooledClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
