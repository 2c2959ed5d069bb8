// Package notify fans user stat updates out to live WebSocket subscribers.
package notify

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unbreakk1/Questify/internal/engine"
	"github.com/unbreakk1/Questify/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultBufferSize is the number of updates queued per subscriber
	// before it is considered too slow and disconnected.
	DefaultBufferSize = 16
)

// Subscriber is one live connection listening to one user's updates.
type Subscriber struct {
	hub        *Hub
	conn       *websocket.Conn
	username   string
	remoteAddr string
	send       chan []byte
	closeOnce  sync.Once
}

// close drops the underlying connection. The read loop then unregisters.
func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// Hub tracks subscribers by username. It implements engine.Notifier.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*Subscriber]struct{}
	bufferSize int
	delivered  atomic.Int64
	dropped    atomic.Int64
}

// NewHub creates a hub whose subscribers queue up to bufferSize updates.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:       make(map[string]map[*Subscriber]struct{}),
		bufferSize: bufferSize,
	}
}

var _ engine.Notifier = (*Hub)(nil)

// PublishUserStats queues the update for every subscriber of the user. It
// never blocks: a subscriber whose queue is full is disconnected.
func (h *Hub) PublishUserStats(update engine.UserStatsUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		logger.Error("Failed to encode stats update", "user", update.UserID, "error", err)
		return
	}

	key := topicKey(update.UserID)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[key] {
		select {
		case s.send <- payload:
			h.delivered.Add(1)
		default:
			h.dropped.Add(1)
			logger.Warning("Dropping slow stats subscriber", "user", s.username, "remote_addr", s.remoteAddr)
			s.close()
		}
	}
}

// Serve registers conn as a subscriber of username and pumps messages until
// the connection closes. It blocks for the life of the connection.
func (h *Hub) Serve(conn *websocket.Conn, username string, maxMessageSize int64) {
	s := &Subscriber{
		hub:        h,
		conn:       conn,
		username:   username,
		remoteAddr: conn.RemoteAddr().String(),
		send:       make(chan []byte, h.bufferSize),
	}
	h.register(s)
	logger.Info("Stats subscriber connected", "user", username, "remote_addr", s.remoteAddr)

	go s.writePump()
	s.readPump(maxMessageSize)

	h.unregister(s)
	logger.Info("Stats subscriber disconnected", "user", username, "remote_addr", s.remoteAddr)
}

// SubscriberCount returns the number of live subscribers for username.
func (h *Hub) SubscriberCount(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topicKey(username)])
}

// Stats returns how many updates were queued and how many were dropped.
func (h *Hub) Stats() (delivered, dropped int64) {
	return h.delivered.Load(), h.dropped.Load()
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.subs {
		for s := range set {
			s.close()
		}
	}
}

func (h *Hub) register(s *Subscriber) {
	key := topicKey(s.username)
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[key] = set
	}
	set[s] = struct{}{}
}

// unregister removes s and closes its queue, which stops the write pump.
func (h *Hub) unregister(s *Subscriber) {
	key := topicKey(s.username)
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[key]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, key)
	}
	close(s.send)
}

// readPump discards inbound frames and keeps the read deadline fresh on pongs.
func (s *Subscriber) readPump(maxMessageSize int64) {
	defer s.close()

	if maxMessageSize > 0 {
		s.conn.SetReadLimit(maxMessageSize)
	}
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Stats subscriber read error", "user", s.username, "error", err)
			}
			return
		}
	}
}

// writePump delivers queued updates and pings the peer.
func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// topicKey folds usernames so that every spelling of a login shares a topic.
func topicKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
