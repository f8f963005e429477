// Package provider wraps the external transcription service: one HTTP call
// per attempt, bounded by a timeout, with failures classified as retryable
// or terminal and retried on a linear backoff.
package provider

import (
	"context"
	"fmt"
)

// Transcriber performs a single transcription attempt.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// HTTPError carries a provider HTTP status so Classify can map it.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.Status)
}
