package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"xfarm/core/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 128
)

// EventStream backs GET /v1/events/stream.
type EventStream interface {
	Subscribe(buffer int) (<-chan types.Event, func())
}

type streamFilter struct {
	eventType string
	pool      string
}

func (f streamFilter) match(evt types.Event) bool {
	if f.eventType != "" && evt.Type != f.eventType {
		return false
	}
	if f.pool != "" && evt.Attributes["pool"] != f.pool {
		return false
	}
	return true
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Stream == nil {
		writeError(w, r, &APIError{HTTPStatus: http.StatusNotImplemented, Code: codeNotFound, Message: "event stream disabled"})
		return
	}
	query := r.URL.Query()
	filter := streamFilter{
		eventType: strings.TrimSpace(query.Get("type")),
		pool:      strings.TrimSpace(query.Get("pool")),
	}
	if filter.pool != "" {
		if _, err := strconv.ParseUint(filter.pool, 10, 64); err != nil {
			s.fail(w, r, invalidParams("invalid pool"))
			return
		}
	}

	// Subscribe before the handshake completes so a client never misses an
	// event committed right after it connects.
	updates, cancel := s.cfg.Stream.Subscribe(wsBuffer)
	defer cancel()

	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns(s.cfg.CORS.AllowedOrigins)})
	if err != nil {
		s.logger.Debug("rpc: websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, updates, filter); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan types.Event, filter streamFilter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if !filter.match(evt) {
				continue
			}
			if err := writeStreamEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, evt types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// originPatterns turns CORS origins into websocket host patterns. An empty
// list accepts any origin, matching the CORS middleware.
func originPatterns(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return []string{"*"}
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			origin = parsed.Host
		}
		if origin != "" {
			patterns = append(patterns, origin)
		}
	}
	return patterns
}
