package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/garnizeh/introdesk/internal/events"
)

// EventsHandler exposes the hub over a long-lived server-sent-events stream.
// One event per frame, JSON-encoded; the SSE id field carries the sequence
// number so a reconnecting dashboard resumes with Last-Event-ID and only
// re-fetches full state when the replay window has been missed.
type EventsHandler struct {
	hub    *events.Hub
	buffer int
}

func NewEventsHandler(hub *events.Hub, buffer int) *EventsHandler {
	return &EventsHandler{hub: hub, buffer: buffer}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var since uint64
	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = r.URL.Query().Get("since")
	}
	if lastID != "" {
		if v, err := strconv.ParseUint(lastID, 10, 64); err == nil {
			since = v
		}
	}

	sub, missed := h.hub.SubscribeSince(h.buffer, since)
	defer sub.Cancel()

	for _, ev := range missed {
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			if ev.Type == events.Heartbeat {
				// comment frame: keeps the channel observably alive
				// without advancing Last-Event-ID
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
				continue
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev events.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		logger.Error("encode event", slog.Any("err", err))
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.Seq, b)
	return err
}
