package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"nft_messenger/internal/model"
	"nft_messenger/internal/utils/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	subscriberSend = 16
)

type (
	// Hub fans index events out to the websocket subscribers of the sender
	// and the recipient. A subscriber that cannot keep up is dropped.
	Hub struct {
		mu          sync.Mutex
		subscribers map[string]map[*subscriber]struct{}
		closed      bool
		gauge       prometheus.Gauge
	}

	subscriber struct {
		hub     *Hub
		conn    *websocket.Conn
		address string
		send    chan []byte
		once    sync.Once
	}
)

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
	}
}

func (h *Hub) register(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	set, ok := h.subscribers[s.address]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subscribers[s.address] = set
	}
	set[s] = struct{}{}
	if h.gauge != nil {
		h.gauge.Inc()
	}
	return true
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *subscriber) {
	set, ok := h.subscribers[s.address]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subscribers, s.address)
	}
	close(s.send)
	if h.gauge != nil {
		h.gauge.Dec()
	}
}

// Publish delivers event to subscribers of its sender and recipient. It
// never blocks on a slow connection.
func (h *Hub) Publish(event *model.IndexEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error("marshal index event failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	targets := []string{event.Sender}
	if event.Recipient != event.Sender {
		targets = append(targets, event.Recipient)
	}
	for _, addr := range targets {
		for s := range h.subscribers[addr] {
			select {
			case s.send <- data:
			default:
				log.Warn("dropping slow subscriber", zap.String("address", s.address))
				h.removeLocked(s)
			}
		}
	}
}

func (h *Hub) Subscribers(address string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[address])
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, set := range h.subscribers {
		for s := range set {
			h.removeLocked(s)
		}
	}
}

func newSubscriber(hub *Hub, conn *websocket.Conn, address string) *subscriber {
	return &subscriber{
		hub:     hub,
		conn:    conn,
		address: address,
		send:    make(chan []byte, subscriberSend),
	}
}

// readPump only watches for the peer going away; subscribers send nothing.
func (s *subscriber) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.close()
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("subscriber socket closed", zap.String("address", s.address), zap.Error(err))
			}
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("write to subscriber failed", zap.String("address", s.address), zap.Error(err))
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

func (s *subscriber) close() {
	s.once.Do(func() { s.conn.Close() })
}
