package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tradecast/internal/delivery"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Consumers connect from arbitrary origins
	},
}

// wsConn adapts a gorilla websocket to the delivery channel's Conn.
// Envelope writes and control pings share the connection, so both go
// through the mutex.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) WriteEvent(env delivery.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(env)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteWait))
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// handleWebSocket upgrades /ws?consumer={id}&since={RFC3339} and attaches the
// connection to the delivery channel. With a since parameter, the missed
// backlog is replayed before live pushes resume.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	consumerID := r.URL.Query().Get("consumer")
	if consumerID == "" {
		s.sendError(w, "Missing consumer parameter", http.StatusBadRequest)
		return
	}

	var since time.Time
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			s.sendError(w, "Invalid since parameter, expected RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "consumer", consumerID, "error", err)
		return
	}

	conn := &wsConn{conn: raw}
	s.channel.Register(consumerID, conn)

	if !since.IsZero() {
		replayed, err := s.channel.Resume(r.Context(), consumerID, since)
		if err != nil {
			slog.Error("Backlog replay failed", "consumer", consumerID, "error", err)
		} else if replayed > 0 {
			slog.Info("Backlog replayed", "consumer", consumerID, "events", replayed)
		}
	}

	defer s.channel.Unregister(consumerID, conn)

	raw.SetReadLimit(wsMaxMessageSize)
	raw.SetReadDeadline(time.Now().Add(wsPongWait))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	// Pinger keeps intermediaries from idling the connection out
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()

	// Incoming messages are not processed; the read loop exists to detect
	// disconnects and service pongs
	for {
		if _, _, err := raw.ReadMessage(); err != nil {
			break
		}
	}
}
