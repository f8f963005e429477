package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/scribed/scribed/internal/ingest"
	"github.com/scribed/scribed/internal/job"
	"github.com/scribed/scribed/internal/queue"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	engine *queue.Engine
	table  *job.Table
}

// NewHandler constructs a Handler with the given dependencies.
func NewHandler(engine *queue.Engine, table *job.Table) *Handler {
	return &Handler{engine: engine, table: table}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/transcriptions", h.CreateTranscription)
	mux.HandleFunc("GET /api/v1/transcriptions", h.ListTranscriptions)
	mux.HandleFunc("GET /api/v1/transcriptions/{id}", h.GetTranscription)
	mux.HandleFunc("GET /api/v1/transcriptions/{id}/events", h.StreamEvents)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// CreateTranscription handles POST /api/v1/transcriptions.
//
// The body is either multipart/form-data with a "file" part (and an optional
// "callback_url" field preceding it), or raw audio bytes described by the
// Content-Type header with an optional ?callback_url= query parameter.
//
// Responds 202 with the queued job, 200 with {"cached":true} on a result
// cache hit, or 200 with {"deduplicated":true} when attached to an identical
// upload already in flight.
func (h *Handler) CreateTranscription(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "no authenticated owner")
		return
	}

	var (
		res *queue.SubmitResult
		err error
	)
	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "multipart/form-data") {
		res, err = h.submitMultipart(r, owner)
	} else {
		callback := r.URL.Query().Get("callback_url")
		res, err = h.engine.Submit(r.Context(), owner, ct, r.Body, callback)
	}
	if err != nil {
		writeSubmitError(w, err)
		return
	}

	switch {
	case res.Cached:
		writeJSON(w, http.StatusOK, map[string]any{
			"cached": true,
			"text":   nullableText(res.Text),
		})
	case res.Deduplicated:
		writeJSON(w, http.StatusOK, map[string]any{
			"deduplicated": true,
			"job_id":       res.JobID,
			"status":       res.Status,
		})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id": res.JobID,
			"status": res.Status,
		})
	}
}

var errNoFilePart = errors.New("multipart body has no file part")

// submitMultipart streams the multipart body without buffering it, handing
// the file part's reader straight to the engine. Only fields that appear
// before the file part can influence the submission.
func (h *Handler) submitMultipart(r *http.Request, owner string) (*queue.SubmitResult, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, job.ErrAborted
	}

	var callback string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, job.ErrAborted
		}

		switch part.FormName() {
		case "callback_url":
			v, err := io.ReadAll(io.LimitReader(part, 4096))
			if err != nil {
				return nil, job.ErrAborted
			}
			callback = strings.TrimSpace(string(v))
		case "file":
			declared := part.Header.Get("Content-Type")
			if declared == "" || declared == "application/octet-stream" {
				if inferred, ok := ingest.TypeForPath(part.FileName()); ok {
					declared = inferred
				}
			}
			return h.engine.Submit(r.Context(), owner, declared, part, callback)
		}
	}
	return nil, errNoFilePart
}

// writeSubmitError maps admission pipeline errors onto HTTP responses.
func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, job.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_content_type")
	case errors.Is(err, job.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
	case errors.Is(err, job.ErrQueueSaturated):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "queue_saturated")
	case errors.Is(err, job.ErrAborted), errors.Is(err, errNoFilePart):
		writeError(w, http.StatusBadRequest, "request_aborted")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

// ListTranscriptions handles GET /api/v1/transcriptions and responds 200
// with the caller's jobs, newest first.
func (h *Handler) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	limit := parseIntParam(r.URL.Query().Get("limit"), 20)
	offset := parseIntParam(r.URL.Query().Get("offset"), 0)

	jobs, total := h.table.ListOwned(owner, limit, offset)

	views := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView(j))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   views,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// parseIntParam parses a query string integer, returning the fallback on empty or invalid input.
func parseIntParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// GetTranscription handles GET /api/v1/transcriptions/{id}.
// A job belonging to a different owner is indistinguishable from a missing one.
func (h *Handler) GetTranscription(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	id := r.PathValue("id")

	j, ok := h.table.GetOwned(owner, id)
	if !ok {
		writeError(w, http.StatusNotFound, "job_not_found")
		return
	}

	writeJSON(w, http.StatusOK, jobView(j))
}

// jobView is the outward shape of a job. Succeeded jobs carry "text"
// (JSON null when nothing usable was detected), failed jobs carry "error".
func jobView(j job.Job) map[string]any {
	v := map[string]any{
		"job_id":         j.ID,
		"status":         j.Status,
		"mime_type":      j.MimeType,
		"size_bytes":     j.SizeBytes,
		"content_digest": j.Digest,
		"created_at":     j.CreatedAt,
	}
	if j.StartedAt != nil {
		v["started_at"] = j.StartedAt
	}
	if j.FinishedAt != nil {
		v["finished_at"] = j.FinishedAt
	}
	switch j.Status {
	case job.StatusSucceeded:
		v["text"] = nullableText(j.Result)
	case job.StatusFailed:
		v["error"] = j.Error
	}
	return v
}

// nullableText maps the stored no-speech sentinel to JSON null.
func nullableText(text string) any {
	if text == job.ResultNone {
		return nil
	}
	return text
}

// Health handles GET /api/v1/health and responds 200 with the queue depth.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": h.engine.Depth(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
