package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"

	"smash-arena/internal/anticheat"
	"smash-arena/internal/input"
	"smash-arena/internal/session"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4096
)

// HubConfig bounds the websocket transport.
type HubConfig struct {
	AllowedOrigins []string
	MaxConnections int     // Across all sessions
	MaxPerIP       int     // Concurrent connections per IP
	SendQueue      int     // Buffered outbound frames per connection
	MessageRate    float64 // Inbound messages per second per connection
	MessageBurst   int
}

// DefaultHubConfig returns production limits.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		AllowedOrigins: []string{"*"},
		MaxConnections: 2048,
		MaxPerIP:       10,
		SendQueue:      256,
		MessageRate:    90,
		MessageBurst:   30,
	}
}

// SessionSource looks up live sessions.
type SessionSource interface {
	Get(id string) (*session.Session, error)
}

// Inbound is one client message. Text frames carry JSON, binary frames
// carry msgpack.
type Inbound struct {
	Type     string                    `json:"type" msgpack:"type"` // input, position, state, attack
	Input    *input.FrameInput         `json:"input,omitempty" msgpack:"input,omitempty"`
	Position *anticheat.PositionReport `json:"position,omitempty" msgpack:"position,omitempty"`
	State    *anticheat.StateReport    `json:"state,omitempty" msgpack:"state,omitempty"`
	Attack   *anticheat.AttackReport   `json:"attack,omitempty" msgpack:"attack,omitempty"`
}

var errBadInbound = errors.New("malformed message")

type wsClient struct {
	hub       *Hub
	conn      *websocket.Conn
	session   *session.Session
	sessionID string
	playerID  string
	ip        string

	send      chan []byte
	closing   chan struct{} // Closed to flush pending frames and disconnect
	closeOnce sync.Once
	limiter   *rate.Limiter
}

func (c *wsClient) closeAfterFlush() {
	c.closeOnce.Do(func() { close(c.closing) })
}

// Hub routes session output to player connections and player input to
// sessions. It implements session.Dispatcher.
type Hub struct {
	cfg      HubConfig
	sessions SessionSource
	upgrader websocket.Upgrader
	conns    *ConnLimiter

	mu      sync.RWMutex
	clients map[string]map[string]*wsClient // session id -> player id
	total   int
}

// NewHub creates a hub serving sessions from src.
func NewHub(src SessionSource, cfg HubConfig) *Hub {
	def := DefaultHubConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = def.MaxPerIP
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}
	if cfg.MessageRate <= 0 {
		cfg.MessageRate = def.MessageRate
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = def.MessageBurst
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = def.AllowedOrigins
	}

	h := &Hub{
		cfg:      cfg,
		sessions: src,
		conns:    NewConnLimiter(cfg.MaxPerIP),
		clients:  make(map[string]map[string]*wsClient),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if OriginAllowed(h.cfg.AllowedOrigins, origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Dispatch encodes msgs once and queues them on the matching connections.
// Slow clients lose frames rather than stall the session.
func (h *Hub) Dispatch(sessionID string, msgs []session.Message) {
	h.mu.RLock()
	peers := h.clients[sessionID]
	if len(peers) == 0 {
		h.mu.RUnlock()
		return
	}
	clients := make([]*wsClient, 0, len(peers))
	for _, c := range peers {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, m := range msgs {
		frame, err := session.EncodeMessage(m)
		if err != nil {
			log.Printf("⚠️ Encode %s for session %s: %v", m.Kind, sessionID, err)
			continue
		}
		for _, c := range clients {
			if !m.Broadcast() && m.Target != c.playerID {
				continue
			}
			select {
			case c.send <- frame:
				wsMessagesSent.Inc()
			default:
				wsMessagesDropped.Inc()
			}
			if m.Kind == session.KindKick || m.Kind == session.KindBan {
				c.closeAfterFlush()
			}
		}
		if lc, ok := m.Payload.(session.LifecyclePayload); ok && lc.State == session.StateEnded.String() {
			for _, c := range clients {
				c.closeAfterFlush()
			}
		}
	}
}

// ServeWS upgrades a player's connection to session {id}.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	playerID := PlayerID(r)
	if playerID == "" {
		writeError(w, "player id required", http.StatusUnauthorized)
		return
	}
	s, err := h.sessions.Get(sessionID)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	if h.ClientCount() >= h.cfg.MaxConnections {
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	ip := GetClientIP(r)
	if !h.conns.Acquire(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade error: %v", err)
		h.conns.Release(ip)
		return
	}

	c := &wsClient{
		hub:       h,
		conn:      conn,
		session:   s,
		sessionID: sessionID,
		playerID:  playerID,
		ip:        ip,
		send:      make(chan []byte, h.cfg.SendQueue),
		closing:   make(chan struct{}),
		limiter:   rate.NewLimiter(rate.Limit(h.cfg.MessageRate), h.cfg.MessageBurst),
	}
	h.register(c)

	if err := s.Connect(playerID); err != nil {
		log.Printf("⚠️ %s refused by session %s: %v", playerID, sessionID, err)
		msg := websocket.FormatCloseMessage(closeCode(err), err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		h.unregister(c)
		return
	}

	go c.writePump()
	go c.readPump()
}

func closeCode(err error) int {
	switch {
	case errors.Is(err, session.ErrRejectedInput):
		return websocket.ClosePolicyViolation
	case errors.Is(err, session.ErrUnknownPlayer):
		return websocket.CloseUnsupportedData
	default:
		return websocket.CloseGoingAway
	}
}

// register adds c, replacing any older connection for the same player.
func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	peers, ok := h.clients[c.sessionID]
	if !ok {
		peers = make(map[string]*wsClient)
		h.clients[c.sessionID] = peers
	}
	old := peers[c.playerID]
	peers[c.playerID] = c
	if old == nil {
		h.total++
	}
	count := h.total
	h.mu.Unlock()

	if old != nil {
		old.closeAfterFlush()
	}
	UpdateWSConnections(count)
	log.Printf("📱 %s joined session %s from %s (%d connections)", c.playerID, c.sessionID, c.ip, count)
}

// unregister removes c and reports whether it was still the player's
// current connection.
func (h *Hub) unregister(c *wsClient) bool {
	h.mu.Lock()
	current := false
	if peers, ok := h.clients[c.sessionID]; ok && peers[c.playerID] == c {
		delete(peers, c.playerID)
		if len(peers) == 0 {
			delete(h.clients, c.sessionID)
		}
		h.total--
		current = true
	}
	count := h.total
	h.mu.Unlock()

	h.conns.Release(c.ip)
	_ = c.conn.Close()
	UpdateWSConnections(count)
	return current
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*wsClient
	for _, peers := range h.clients {
		for _, c := range peers {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.closeAfterFlush()
	}
}

func (c *wsClient) readPump() {
	defer func() {
		if c.hub.unregister(c) {
			c.session.Disconnect(c.playerID)
		}
		c.closeAfterFlush()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			RecordConnectionRejected("ws_message_rate")
			continue
		}
		var msg Inbound
		if err := decodeInbound(kind, data, &msg); err != nil {
			continue
		}
		if err := handleInbound(c.session, c.playerID, msg); errors.Is(err, session.ErrSessionNotActive) {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	write := func(frame []byte) bool {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(websocket.BinaryMessage, frame) == nil
	}

	for {
		select {
		case frame := <-c.send:
			if !write(frame) {
				return
			}
		case <-c.closing:
		drain:
			for {
				select {
				case frame := <-c.send:
					if !write(frame) {
						return
					}
				default:
					break drain
				}
			}
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func decodeInbound(kind int, data []byte, msg *Inbound) error {
	switch kind {
	case websocket.TextMessage:
		return json.Unmarshal(data, msg)
	case websocket.BinaryMessage:
		return msgpack.Unmarshal(data, msg)
	default:
		return errBadInbound
	}
}

// handleInbound routes one decoded message to the session.
func handleInbound(s *session.Session, playerID string, msg Inbound) error {
	switch {
	case msg.Type == "input" && msg.Input != nil:
		return s.SubmitInput(playerID, *msg.Input)
	case msg.Type == "position" && msg.Position != nil:
		return s.ReportPosition(playerID, *msg.Position)
	case msg.Type == "state" && msg.State != nil:
		return s.ReportState(playerID, *msg.State)
	case msg.Type == "attack" && msg.Attack != nil:
		return s.ReportCombat(playerID, *msg.Attack)
	default:
		return errBadInbound
	}
}
