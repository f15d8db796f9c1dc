package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nicktill/kpiengine/pkg/config"
	"github.com/nicktill/kpiengine/pkg/engine"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header = direct connection (non-browser clients like evaluators, testing tools)
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// Real-time message types
const (
	MessageSession     = "session"
	MessagePlan        = "plan"
	MessageError       = "error"
	MessageInvalidated = "invalidated"
)

// RealTimeMessage is every frame the server sends on /v1/realtime
type RealTimeMessage struct {
	Type    string               `json:"type"`
	Session string               `json:"session,omitempty"`
	Plan    *engine.RealTimePlan `json:"plan,omitempty"`
	KPI     string               `json:"kpi,omitempty"`
	Error   string               `json:"error,omitempty"`
	Status  int                  `json:"status,omitempty"`
}

// Session is one real-time evaluator connection
type Session struct {
	ID string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newSession(conn *websocket.Conn) *Session {
	return &Session{ID: uuid.NewString(), conn: conn}
}

// write sends one frame; gorilla connections allow a single concurrent writer
func (s *Session) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
	return s.conn.WriteMessage(messageType, data)
}

func (s *Session) send(msg RealTimeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, data)
}

// SessionHub manages real-time sessions and fans out knowledge-base notifications
type SessionHub struct {
	// Registered sessions
	sessions map[*Session]bool

	// Register requests from sessions
	register chan *Session

	// Unregister requests from sessions
	unregister chan *Session

	// Broadcast channel for notifications
	broadcast chan []byte

	mu sync.RWMutex
}

// NewSessionHub creates a new session hub
func NewSessionHub() *SessionHub {
	return &SessionHub{
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session, config.WSChannelBuffer),
		unregister: make(chan *Session, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
	}
}

// Run starts the hub's main loop
func (h *SessionHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Close all sessions on shutdown
			h.mu.Lock()
			for s := range h.sessions {
				s.conn.Close()
			}
			h.sessions = make(map[*Session]bool)
			h.mu.Unlock()
			return
		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = true
			count := len(h.sessions)
			h.mu.Unlock()
			log.Printf("Real-time session %s opened (total: %d)", s.ID, count)
		case s := <-h.unregister:
			h.mu.Lock()
			_, ok := h.sessions[s]
			if ok {
				delete(h.sessions, s)
				s.conn.Close()
			}
			count := len(h.sessions)
			h.mu.Unlock()
			if ok {
				log.Printf("Real-time session %s closed (total: %d)", s.ID, count)
			}
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver writes message to every session and drops the ones that fail
func (h *SessionHub) deliver(message []byte) {
	h.mu.RLock()
	var failed []*Session
	for s := range h.sessions {
		if err := s.write(websocket.TextMessage, message); err != nil {
			log.Printf("Real-time session %s write error: %v", s.ID, err)
			failed = append(failed, s)
		}
	}
	h.mu.RUnlock()

	if len(failed) == 0 {
		return
	}

	h.mu.Lock()
	for _, s := range failed {
		delete(h.sessions, s)
		s.conn.Close()
	}
	count := len(h.sessions)
	h.mu.Unlock()
	log.Printf("Dropped %d real-time sessions after failed writes (total: %d)", len(failed), count)
}

// Broadcast sends a message to every session
func (h *SessionHub) Broadcast(msg RealTimeMessage) error {
	message, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message:
		return nil
	default:
		log.Printf("Broadcast channel full, dropping %s message", msg.Type)
		return nil
	}
}

// Count returns the number of open sessions
func (h *SessionHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleRealTime upgrades to a WebSocket and answers each RealTimeKPIRequest
// frame with a compiled real-time plan
func (h *Handler) HandleRealTime(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	session := newSession(conn)
	h.hub.register <- session

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.hub.unregister <- session
	}()

	if err := session.send(RealTimeMessage{Type: MessageSession, Session: session.ID}); err != nil {
		return
	}

	// Keepalive
	go func() {
		ticker := time.NewTicker(config.WSPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := session.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(config.WSMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Real-time session %s error: %v", session.ID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))

		if err := session.send(h.planRealTime(ctx, session.ID, data)); err != nil {
			return
		}
	}
}

func (h *Handler) planRealTime(ctx context.Context, sessionID string, data []byte) RealTimeMessage {
	var req engine.RealTimeKPIRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return RealTimeMessage{
			Type:    MessageError,
			Session: sessionID,
			Error:   "invalid JSON: " + err.Error(),
			Status:  http.StatusBadRequest,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, config.CompileTimeout)
	defer cancel()

	plan, err := h.engine.PlanRealTime(ctx, req)
	if err != nil {
		return RealTimeMessage{
			Type:    MessageError,
			Session: sessionID,
			KPI:     req.Name,
			Error:   err.Error(),
			Status:  statusFor(err),
		}
	}

	return RealTimeMessage{Type: MessagePlan, Session: sessionID, KPI: req.Name, Plan: plan}
}
