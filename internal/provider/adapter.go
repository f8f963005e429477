package provider

import (
	"context"
	"log/slog"
	"time"
)

// Backoff is the delay before retry number attempt (1-based): a linear
// ramp, baseDelay after the first failure, 2×baseDelay after the second.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}

// Adapter runs a Transcriber with a per-attempt timeout and a bounded
// retry policy. The first terminal failure or exhausted budget ends the
// call; a success returns the normalized text.
type Adapter struct {
	client      Transcriber
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger

	// sleep is replaced in tests to assert backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewAdapter(client Transcriber, timeout time.Duration, maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *Adapter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Adapter{
		client:      client,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Transcribe attempts the provider call until it succeeds, fails terminally
// or the attempt budget runs out. On failure the returned code is one of
// the job.Fail* classifications; the underlying error is for logs only.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, mimeType string) (text, failCode string, err error) {
	for attempt := 1; ; attempt++ {
		actx, cancel := context.WithTimeout(ctx, a.timeout)
		raw, aerr := a.client.Transcribe(actx, audio, mimeType)
		cancel()

		if aerr == nil {
			return Normalize(raw), "", nil
		}

		code, retryable := Classify(aerr)
		a.logger.Warn("provider attempt failed",
			"attempt", attempt,
			"max_attempts", a.maxAttempts,
			"code", code,
			"retryable", retryable,
			"error", aerr,
		)

		if !retryable || attempt >= a.maxAttempts {
			return "", code, aerr
		}
		if serr := a.sleep(ctx, Backoff(a.baseDelay, attempt)); serr != nil {
			return "", code, serr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
