package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blazelab/blaze/internal/stream"
)

// handleMessageStream serves a Server-Sent Events stream of a chat's
// messages. It polls the store every 2 seconds and sends each message
// not yet delivered, sanitized for display. The stream runs until the
// client disconnects; a missing chat ends it with a "done" event.
func (s *Server) handleMessageStream(w http.ResponseWriter, r *http.Request, chatID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present

	sendDone := func(reason string) {
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", reason)
		flusher.Flush()
	}

	chat, err := s.store.GetChat(chatID)
	if err != nil || chat == nil {
		sendDone("chat not found")
		return
	}

	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()

	lastID := 0
	for {
		msgs, err := s.store.GetMessages(chatID)
		if err != nil {
			sendDone("store error")
			return
		}
		for _, m := range msgs {
			if m.ID <= lastID {
				continue
			}
			lastID = m.ID
			fmt.Fprintf(w, "event: message\nid: %d\n", m.ID)
			display := stream.Sanitize(m.Content)
			// Multiple data: lines join with \n on the client.
			for _, line := range strings.Split(display, "\n") {
				fmt.Fprintf(w, "data: %s\n", line)
			}
			fmt.Fprintf(w, "\n")
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
		}
	}
}
