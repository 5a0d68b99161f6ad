package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ldi/boardsync/pkg/models"
)

// handleStream is the push transport: a long-lived text/event-stream
// connection, one per active browser tab. Every bus event is forwarded
// verbatim; a ping frame keeps intermediaries from idling the
// connection out. Cleanup on disconnect is unconditional.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(ev models.ChangeEvent) error {
		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(models.ChangeEvent{Type: models.ChangeConnected}); err != nil {
		return
	}

	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	slog.Info("stream opened", "user", sess.UserID, "subscribers", s.bus.Len())
	defer slog.Info("stream closed", "user", sess.UserID)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := send(models.ChangeEvent{Type: models.ChangePing}); err != nil {
				// Client will notice the dead connection and reconnect.
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := send(ev); err != nil {
				return
			}
		}
	}
}
