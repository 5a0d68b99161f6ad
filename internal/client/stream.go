package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ldi/boardsync/pkg/models"
)

// openStream connects to the push transport and delivers decoded
// change events to handle until the connection drops or ctx is
// cancelled. A malformed frame is dropped and logged; it never tears
// the connection down.
func (a *API) openStream(ctx context.Context, handle func(models.ChangeEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/api/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: unexpected status %d", resp.StatusCode)
	}

	// Frames are `data: <JSON>` lines separated by a blank line.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if data.Len() > 0 {
				var ev models.ChangeEvent
				if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
					slog.Error("dropping malformed stream frame", "err", err)
				} else {
					handle(ev)
				}
				data.Reset()
			}
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimPrefix(payload, " "))
		}
		// Other SSE fields (event:, id:, retry:) are not used by the
		// server and are ignored.
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return fmt.Errorf("stream closed by server")
}
