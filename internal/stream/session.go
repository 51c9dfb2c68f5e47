package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/advisorlens/internal/pagination"
)

// Session is the state of one stream connection. At most one run is live
// per session: starting a run supersedes the previous one.
//
// active and activeID are only touched by the connection's read loop.
type Session struct {
	ID        string    `json:"id"`
	View      string    `json:"view"`
	Business  string    `json:"business"`
	CreatedAt time.Time `json:"created_at"`

	guard    pagination.Guard
	active   pagination.Ticket
	activeID string
}

// NewSession creates a session on view for business.
func NewSession(view, business string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		View:      view,
		Business:  business,
		CreatedAt: time.Now(),
	}
}

// begin starts the run for requestID, superseding the live one.
func (s *Session) begin(parent context.Context, requestID string) (context.Context, pagination.Ticket) {
	ctx, t := s.guard.Begin(parent)
	s.active, s.activeID = t, requestID
	return ctx, t
}

// cancel aborts the live run and returns its request ID. ok is false when
// no run is live.
func (s *Session) cancel() (requestID string, ok bool) {
	if !s.guard.Cancel(s.active) {
		return "", false
	}
	return s.activeID, true
}

// Manager tracks open sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create creates a new session and returns it.
func (m *Manager) Create(view, business string) *Session {
	s := NewSession(view, business)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Remove stops the session's live run and forgets it.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.guard.Stop()
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
