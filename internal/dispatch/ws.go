package dispatch

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
)

// WSSession is one connected rider client.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// WSRegistry pushes advisory dispatch events to connected riders so
// their next poll can come sooner. Send failures drop the session;
// riders fall back to plain polling.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(riderID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[riderID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(riderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, riderID)
}

type wsEvent struct {
	Event     string              `json:"event"`
	RequestID string              `json:"request_id,omitempty"`
	Request   *models.RideRequest `json:"request,omitempty"`
}

// RequestCreated broadcasts a new pending request to every connected rider.
func (r *WSRegistry) RequestCreated(req models.RideRequest) {
	r.broadcast(wsEvent{Event: "request_created", RequestID: req.ID, Request: &req})
}

// RequestTaken tells riders to drop a request from their local view.
func (r *WSRegistry) RequestTaken(requestID string) {
	r.broadcast(wsEvent{Event: "request_taken", RequestID: requestID})
}

func (r *WSRegistry) broadcast(ev wsEvent) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.mu.RLock()
		s, ok := r.sessions[id]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if err := s.send(ev); err != nil {
			log.Printf("ws send error rider=%s: %v", id, err)
			r.Remove(id)
		}
	}
}
