package provider

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/scribed/scribed/internal/job"
)

// Classify maps a provider error to the caller-facing failure code and
// whether another attempt is worthwhile. Timeouts, rate limits and 5xx
// responses are transient; everything else (auth, malformed request,
// oversize, cancelled context) is terminal.
func Classify(err error) (code string, retryable bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return job.FailTimeout, true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return job.FailTimeout, true
	}

	var he *HTTPError
	if errors.As(err, &he) {
		switch {
		case he.Status == http.StatusTooManyRequests:
			return job.FailRateLimited, true
		case he.Status >= 500:
			return job.FailUnavailable, true
		case he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden:
			return job.FailAuth, false
		}
	}

	return job.FailGeneric, false
}
