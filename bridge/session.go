package bridge

import "sync"

// SessionRef holds the most recently seen backend-issued session identifier.
// It is shared across all query handling in the process and is deliberately
// not partitioned per caller. Once set it is only ever overwritten, never
// cleared.
type SessionRef struct {
	mu sync.RWMutex
	id string
}

func NewSessionRef() *SessionRef { return &SessionRef{} }

// Set overwrites the session identifier. Empty ids are ignored so a backend
// reply without a session can never clear an established one.
func (s *SessionRef) Set(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// Get returns the current session identifier, or "" if none has been seen.
func (s *SessionRef) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}
