package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mzyy94/cs108ctl/internal/reader"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API has no browser UI of its own; any origin may watch events.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams reader events as JSON text messages. The optional
// types query parameter is a comma-separated list of event types.
func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	var filter reader.Filter
	if q := r.URL.Query().Get("types"); q != "" {
		var types []reader.EventType
		for _, t := range strings.Split(q, ",") {
			types = append(types, reader.EventType(strings.ToUpper(strings.TrimSpace(t))))
		}
		filter = reader.Types(types...)
	}

	// Subscribed before the handshake completes so no event after it is missed.
	sub := h.rd.Subscribe(filter)
	defer sub.Close()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	// Clients send nothing; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		conn.Close()
		<-closed
	}()

	slog.Info("event stream opened", "remote", r.RemoteAddr, "subscription", sub.ID())
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			slog.Info("event stream closed", "remote", r.RemoteAddr)
			return
		case e, ok := <-sub.C():
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "reader closed"),
					time.Now().Add(writeWait))
				return
			}
			data, err := reader.MarshalEvent(e)
			if err != nil {
				slog.Warn("event marshal failed", "type", e.Type(), "err", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("event stream write failed", "remote", r.RemoteAddr, "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
