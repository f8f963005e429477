package job

import (
	"errors"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true for statuses that represent a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ResultNone is the reserved result value meaning the provider ran
// successfully but found no usable speech. It is cached and stored like any
// other transcript; the API layer maps it to a JSON null.
const ResultNone = "[no-speech]"

// Submission errors, returned synchronously before a job record exists.
var (
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrQueueSaturated  = errors.New("queue saturated")
	ErrAborted         = errors.New("request aborted")
	ErrNotFound        = errors.New("job not found")
)

// Failure classifications recorded on a failed job. These are the only
// error strings ever shown to callers; raw provider errors stay in the logs.
const (
	FailTimeout     = "provider_timeout"
	FailRateLimited = "provider_rate_limited"
	FailAuth        = "provider_auth_failure"
	FailUnavailable = "provider_unavailable"
	FailGeneric     = "provider_failure"
)

// Job is one admitted transcription request. OwnerID scopes status polls
// and in-flight dedup; Digest is the sha256 of the uploaded bytes.
type Job struct {
	ID          string     `json:"job_id"`
	OwnerID     string     `json:"-"`
	Digest      string     `json:"content_digest"`
	MimeType    string     `json:"mime_type"`
	SizeBytes   int64      `json:"size_bytes"`
	Status      Status     `json:"status"`
	Result      string     `json:"-"`
	Error       string     `json:"error,omitempty"`
	CallbackURL string     `json:"-"`
	TempPath    string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
