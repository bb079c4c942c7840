package notify

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
)

var ErrNoSession = errors.New("notify: no ws session")

// WSSession represents a connected driver session.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(ev models.DispatchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// WSRegistry holds driver sessions keyed by driver id.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(driverID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[driverID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, driverID)
}

func (r *WSRegistry) Send(driverID string, ev models.DispatchEvent) error {
	r.mu.RLock()
	s, ok := r.sessions[driverID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(ev)
}
