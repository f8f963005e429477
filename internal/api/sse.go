package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/scribed/scribed/internal/queue"
)

// StreamEvents handles GET /api/v1/transcriptions/{id}/events.
// It streams server-sent events for the job until it reaches a terminal
// state or the client disconnects.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	owner := OwnerFromContext(r.Context())
	id := r.PathValue("id")

	j, found := h.table.GetOwned(owner, id)
	if !found {
		writeError(w, http.StatusNotFound, "job_not_found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// If already terminal, send the result event and close immediately.
	if j.Status.IsTerminal() {
		writeSSEFrame(w, flusher, "result", queue.ResultPayload(j))
		return
	}

	ch := h.engine.Subscribe(id)
	defer h.engine.Unsubscribe(id, ch)

	// The job may have finished between the lookup and the subscription.
	if cur, found := h.table.Get(id); found && cur.Status.IsTerminal() {
		writeSSEFrame(w, flusher, "result", queue.ResultPayload(cur))
		return
	}

	// Send the current status so the client has an initial state.
	initial, _ := json.Marshal(map[string]any{"status": j.Status})
	writeSSEFrame(w, flusher, "status", string(initial))

	for {
		select {
		case event, open := <-ch:
			if !open {
				return
			}
			writeSSEFrame(w, flusher, event.Name, event.Data)
			if event.Name == "result" {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEFrame writes a single SSE event frame with a JSON data payload.
func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}
