package server

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jrsteele09/go-firm-dashboard/activity"
	"github.com/jrsteele09/go-firm-dashboard/idle"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	socketWriteWait  = 10 * time.Second
	socketPongWait   = 60 * time.Second
	socketPingPeriod = (socketPongWait * 9) / 10
	socketReadLimit  = 512
	socketSendBuffer = 16

	messageTypeActivity = "activity"
	messageTypeExtend   = "extend"
	messageTypeState    = "state"
	messageTypeLogout   = "logout"
)

// inboundMessage is sent by the session-timeout script
type inboundMessage struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
}

// outboundMessage drives the expiry prompt in the browser
type outboundMessage struct {
	Type            string `json:"type"`
	Phase           string `json:"phase,omitempty"`
	WarningVisible  bool   `json:"warningVisible"`
	RemainingMillis int64  `json:"remainingMillis"`
	Location        string `json:"location,omitempty"`
}

func stateMessage(state idle.State) outboundMessage {
	return outboundMessage{
		Type:            messageTypeState,
		Phase:           state.PhaseName,
		WarningVisible:  state.WarningVisible,
		RemainingMillis: state.RemainingMillis,
	}
}

// SessionActivitySocketHandler accepts the page's input events and pushes
// warning, countdown and logout updates back to it
func (s *Server) SessionActivitySocketHandler() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkSocketOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := loginSessionFromContext(r.Context())
		watch, watched := watchFromContext(r.Context())
		if !ok || !watched {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Err(err).Str("session_id", session.ID).Msg("ws upgrade failed")
			return
		}

		sc := newSocketConn(conn)
		s.sockets.add(session.ID, sc)
		defer s.sockets.remove(session.ID, sc)
		go sc.writeLoop()

		sc.enqueue(stateMessage(watch.Monitor.State()))

		var limiter *rate.Limiter
		if s.config.GetEnableRateLimiting() {
			limiter = rate.NewLimiter(rate.Limit(s.config.GetActivityRateLimit()), s.config.GetActivityBurst())
		}
		s.readActivity(sc, watch, limiter, session.ID)
	}
}

func (s *Server) readActivity(sc *socketConn, watch *idle.Watch, limiter *rate.Limiter, sessionID string) {
	defer sc.close()

	sc.conn.SetReadLimit(socketReadLimit)
	sc.extendReadDeadline(sessionID)
	sc.conn.SetPongHandler(func(string) error {
		return sc.extendReadDeadline(sessionID)
	})

	for {
		var msg inboundMessage
		if err := sc.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || sc.closed() {
				log.Debug().Str("session_id", sessionID).Msg("activity socket closed")
			} else {
				log.Err(err).Str("session_id", sessionID).Msg("activity socket read failed")
			}
			return
		}
		sc.extendReadDeadline(sessionID)

		// pointermove floods are dropped; one event per window is enough to reset the timers
		if limiter != nil && !limiter.Allow() {
			continue
		}

		switch msg.Type {
		case messageTypeActivity:
			eventType, err := activity.ParseEventType(msg.Event)
			if err != nil {
				log.Debug().Str("session_id", sessionID).Str("event", msg.Event).Msg("ignoring unknown activity event")
				continue
			}
			// Client timestamps are not trusted
			watch.Hub.Publish(activity.Event{Type: eventType, At: NowTimeFunc()})
		case messageTypeExtend:
			watch.Monitor.ExtendSession()
		default:
			log.Debug().Str("session_id", sessionID).Str("type", msg.Type).Msg("ignoring unknown socket message")
		}
	}
}

func (s *Server) checkSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	return s.config.GetAllowedOrigins().IsAllowedOrigin(origin)
}

// socketConn serialises writes to one websocket
type socketConn struct {
	conn      *websocket.Conn
	send      chan outboundMessage
	done      chan struct{}
	closeOnce sync.Once
}

func newSocketConn(conn *websocket.Conn) *socketConn {
	return &socketConn{
		conn: conn,
		send: make(chan outboundMessage, socketSendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue never blocks; a slow client misses countdown ticks, not the logout
func (c *socketConn) enqueue(msg outboundMessage) bool {
	if msg.Type == messageTypeLogout {
		select {
		case c.send <- msg:
			return true
		case <-c.done:
			return false
		case <-time.After(socketWriteWait):
			c.close()
			return false
		}
	}

	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		log.Debug().Str("type", msg.Type).Msg("activity socket buffer full, dropping message")
		return false
	}
}

// extendReadDeadline pushes the read deadline out by socketPongWait. A failure
// means the connection is already broken and the next read reports it.
func (c *socketConn) extendReadDeadline(sessionID string) error {
	err := c.conn.SetReadDeadline(time.Now().Add(socketPongWait))
	if err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("activity socket read deadline not set")
	}
	return err
}

func (c *socketConn) writeLoop() {
	ticker := time.NewTicker(socketPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
				log.Debug().Err(err).Str("type", msg.Type).Msg("activity socket write deadline not set")
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
			if msg.Type == messageTypeLogout {
				if err := c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"),
					time.Now().Add(socketWriteWait)); err != nil {
					log.Debug().Err(err).Msg("activity socket close frame not sent")
				}
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *socketConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *socketConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// socketHub tracks the open activity sockets of every session and relays
// monitor state to them
type socketHub struct {
	mu    sync.RWMutex
	conns map[string]map[*socketConn]struct{}
}

var _ idle.Observer = (*socketHub)(nil)

func newSocketHub() *socketHub {
	return &socketHub{conns: make(map[string]map[*socketConn]struct{})}
}

func (h *socketHub) add(sessionID string, c *socketConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[sessionID] == nil {
		h.conns[sessionID] = make(map[*socketConn]struct{})
	}
	h.conns[sessionID][c] = struct{}{}
}

func (h *socketHub) remove(sessionID string, c *socketConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[sessionID], c)
	if len(h.conns[sessionID]) == 0 {
		delete(h.conns, sessionID)
	}
}

func (h *socketHub) snapshot(sessionID string) []*socketConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*socketConn, 0, len(h.conns[sessionID]))
	for c := range h.conns[sessionID] {
		out = append(out, c)
	}
	return out
}

func (h *socketHub) count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[sessionID])
}

// SessionStateChanged forwards warning and countdown updates. The logout
// itself arrives through broadcastLogout once sign-out has finished.
func (h *socketHub) SessionStateChanged(session idle.Session, state idle.State) {
	if state.Phase == idle.PhaseLoggedOut || state.Phase == idle.PhaseStopped {
		return
	}
	msg := stateMessage(state)
	for _, c := range h.snapshot(session.ID) {
		c.enqueue(msg)
	}
}

// broadcastLogout tells every tab of the session where to go, then closes the sockets
func (h *socketHub) broadcastLogout(sessionID, location string) int {
	conns := h.snapshot(sessionID)
	msg := outboundMessage{Type: messageTypeLogout, Location: location}
	for _, c := range conns {
		go c.enqueue(msg)
	}
	return len(conns)
}

func (h *socketHub) closeAll() {
	h.mu.Lock()
	all := h.conns
	h.conns = make(map[string]map[*socketConn]struct{})
	h.mu.Unlock()

	for _, conns := range all {
		for c := range conns {
			c.close()
		}
	}
}
