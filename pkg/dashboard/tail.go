package dashboard

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/armorclaw/diagnostics/internal/bus"
	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

const (
	// Time allowed to write an event to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period, must be less than pongWait
	pingPeriod = 30 * time.Second

	// Events replayed to a freshly connected client
	replayCount = 50
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Loopback-bound server, token auth already ran
		return true
	},
}

// tailFilter builds a bus filter from tail query parameters. Unknown
// values fall back to no filtering rather than an error so a hand-typed
// URL still streams something.
func tailFilter(r *http.Request) bus.Filter {
	q := r.URL.Query()
	var f bus.Filter
	if topic := q.Get("topic"); topic != "" {
		f.Topics = []bus.Topic{bus.Topic(topic)}
	}
	f.Domain = errsys.Domain(q.Get("domain"))
	if sev, ok := errsys.ParseSeverity(q.Get("min_severity")); ok {
		f.MinSeverity = sev
	}
	return f
}

// handleTail upgrades to a websocket and streams bus events as JSON.
// The last replayCount events are replayed first so the page is not
// blank between connect and the next live event.
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	events := s.pipe.Events()

	sub, err := events.Subscribe(tailFilter(r))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = events.Unsubscribe(sub.ID)
		s.log.Warn("tail upgrade failed", "error", err)
		return
	}
	s.log.Debug("tail client connected", "subscriber", sub.ID)

	go s.tailWrite(conn, sub)
	s.tailRead(conn)

	_ = events.Unsubscribe(sub.ID)
	s.log.Debug("tail client disconnected", "subscriber", sub.ID)
}

func (s *Server) tailWrite(conn *websocket.Conn, sub *bus.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	// Replayed events can overlap with the live channel, the client
	// dedups on event id.
	for _, ev := range s.pipe.Events().Recent(replayCount) {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-sub.EventChannel:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) tailRead(conn *websocket.Conn) {
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("tail read ended", "error", err)
			}
			return
		}
	}
}
