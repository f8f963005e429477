// Package notify delivers job-completion webhooks to caller-supplied
// callback URLs.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/scribed/scribed/internal/job"
)

const (
	defaultAttempts = 5
	retryBase       = time.Second
	retryCap        = 2 * time.Minute
)

// Notifier posts terminal job payloads to callback URLs with jittered
// retries. Deliveries run in their own goroutine on the given context;
// pass an engine-lifetime context (not a per-request one) so they survive
// the finishing job but stop on shutdown.
type Notifier struct {
	client   *http.Client
	attempts int
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Notifier {
	return &Notifier{
		client:   &http.Client{Timeout: 30 * time.Second},
		attempts: defaultAttempts,
		logger:   logger,
	}
}

// JobFinished dispatches the job's outward payload to callbackURL
// asynchronously. Invalid or internal-network URLs are rejected up front.
func (n *Notifier) JobFinished(ctx context.Context, callbackURL string, j job.Job) {
	if err := validateURL(callbackURL); err != nil {
		n.logger.Warn("notify: rejected callback URL", "job_id", j.ID, "error", err)
		return
	}

	payload := map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	}
	switch j.Status {
	case job.StatusSucceeded:
		if j.Result == job.ResultNone {
			payload["text"] = nil
		} else {
			payload["text"] = j.Result
		}
	case job.StatusFailed:
		payload["error"] = j.Error
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("notify: encode payload", "job_id", j.ID, "error", err)
		return
	}

	go n.send(ctx, callbackURL, j.ID, body)
}

// validateURL blocks non-HTTP schemes and private/internal IP ranges.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	ips, err := net.LookupHost(u.Hostname())
	if err != nil {
		return fmt.Errorf("DNS lookup failed: %w", err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("private/internal IP blocked: %s", ipStr)
		}
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, callbackURL, jobID string, body []byte) {
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		err := n.post(ctx, callbackURL, body)
		if err == nil {
			return
		}
		n.logger.Warn("notify: attempt failed",
			"job_id", jobID, "attempt", attempt, "error", err)
		if attempt < n.attempts {
			time.Sleep(jitter(attempt))
		}
	}
	n.logger.Error("notify: all retries exhausted", "job_id", jobID, "url", callbackURL)
}

// jitter returns a random duration in [0, min(retryCap, retryBase * 2^attempt)).
func jitter(attempt int) time.Duration {
	exp := retryBase * (1 << attempt)
	if exp > retryCap {
		exp = retryCap
	}
	return time.Duration(rand.Int63n(int64(exp)))
}

func (n *Notifier) post(ctx context.Context, callbackURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
