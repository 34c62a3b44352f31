package devserver

import (
	"encoding/json"
	"net/http"
	"time"
)

// handleGroupEvents streams the group's events as Server-Sent Events.
// Read access follows the same rules as the group itself.
func (a *API) handleGroupEvents(w http.ResponseWriter, r *http.Request) {
	g, ok := a.readableGroup(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// the server's write timeout would cut the stream short
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := a.stream.Subscribe(r.Context(), g.ID)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	if err := rc.Flush(); err != nil {
		return
	}

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: " + event.Type + "\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
