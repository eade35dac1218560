package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/convertd/convertd/internal/domain"
	"github.com/convertd/convertd/internal/service"
)

// SSEHandler streams job progress as Server-Sent Events so clients can watch
// a conversion without polling.
type SSEHandler struct {
	eventBus *service.EventBus
	svc      JobService
}

func NewSSEHandler(eventBus *service.EventBus, svc JobService) *SSEHandler {
	return &SSEHandler{
		eventBus: eventBus,
		svc:      svc,
	}
}

// sseWrite writes one SSE event with a JSON payload.
func sseWrite(w http.ResponseWriter, eventName string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func snapshotEvent(job *domain.Job) service.Event {
	typ := "progress"
	if job.IsTerminal() {
		typ = "status"
	}
	return service.Event{
		Type:     typ,
		Status:   string(job.Status),
		Progress: job.Progress,
		Message:  job.Message,
	}
}

func (h *SSEHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		job, err := h.svc.Status(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		// Current state first; a terminal job needs nothing more.
		ev := snapshotEvent(job)
		sseWrite(w, ev.Type, ev)
		if job.IsTerminal() {
			return
		}

		ch := h.eventBus.Subscribe(id)
		defer h.eventBus.Unsubscribe(id, ch)

		// The job may have gone terminal between the snapshot and the
		// subscription; re-check so the client is not left on keep-alives
		// waiting for an event that was published before we listened.
		job, err = h.svc.Status(id)
		if err != nil {
			return
		}
		if job.IsTerminal() {
			ev := snapshotEvent(job)
			sseWrite(w, ev.Type, ev)
			return
		}

		ctx := r.Context()
		keepAlive := time.NewTicker(15 * time.Second)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				sendKeepAlive(w)
			case event, ok := <-ch:
				if !ok {
					return
				}
				sseWrite(w, event.Type, event)
				if domain.JobStatus(event.Status).IsTerminal() {
					return
				}
			}
		}
	}
}
