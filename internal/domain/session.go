package domain

import (
	"sync"
	"time"
)

// AnonymousName is the display name for unauthenticated connections.
const AnonymousName = "Anonymous"

// Identity is the trusted identity attached to a connection. It is
// established once, before the connection reaches the relay; the relay
// never authenticates anyone itself.
type Identity struct {
	UserID        string
	Username      string
	Admin         bool
	Authenticated bool
}

// Anonymous returns the identity of an unauthenticated connection.
func Anonymous() Identity {
	return Identity{Username: AnonymousName}
}

// Session holds the per-connection state: who is connected and which
// room the connection currently belongs to. A session is in at most one
// room at a time.
type Session struct {
	ID           string
	Identity     Identity
	room         string
	CreatedAt    time.Time
	LastActiveAt time.Time
	mu           sync.RWMutex
}

func NewSession(id string, identity Identity) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Identity:     identity,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func (s *Session) IsAuthenticated() bool {
	return s.Identity.Authenticated
}

// DisplayName is the name shown to room members.
func (s *Session) DisplayName() string {
	if s.Identity.Username == "" {
		return AnonymousName
	}
	return s.Identity.Username
}

func (s *Session) JoinRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
	s.LastActiveAt = time.Now()
}

func (s *Session) LeaveRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = ""
	s.LastActiveAt = time.Now()
}

func (s *Session) CurrentRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Session) IsInRoom() bool {
	return s.CurrentRoom() != ""
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
