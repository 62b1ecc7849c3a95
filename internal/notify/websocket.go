package notify

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"itemcore/pkg/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	readLimit  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades GET /ws?owner=<id> and streams the owner's item changes
// until either side closes.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.serveWS)
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("owner")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		http.Error(w, "missing or invalid owner", http.StatusBadRequest)
		return
	}
	owner := domain.OwnerID(id)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "owner_id", owner, "error", err)
		return
	}
	s := h.Subscribe(owner)
	if s == nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.logger.Debug("session opened", "owner_id", owner)

	go h.writePump(conn, s)
	h.readPump(conn, s)
}

// readPump drains client frames so control messages are processed; the
// session ends on the first read error.
func (h *Hub) readPump(conn *websocket.Conn, s *Session) {
	defer func() {
		s.Close()
		h.logger.Debug("session closed", "owner_id", s.owner)
	}()
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
