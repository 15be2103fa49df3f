package apiclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"taskboard-api/internal/realtime"
)

// Subscribe opens the board event stream. The channel is closed when ctx is
// done or the connection drops.
func (c *Client) Subscribe(ctx context.Context) (<-chan realtime.Event, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/ws"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("dial %s: %w", redact(u), err)
	}

	events := make(chan realtime.Event)
	readerDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		case <-readerDone:
		}
		_ = conn.Close()
	}()
	go func() {
		defer close(events)
		defer close(readerDone)
		for {
			var evt realtime.Event
			if err := conn.ReadJSON(&evt); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					slog.WarnContext(ctx, "board event stream closed", "error", err)
				}
				return
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func redact(u url.URL) string {
	u.RawQuery = ""
	return u.String()
}
