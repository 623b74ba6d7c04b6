package runtime

import (
	"fmt"
	"sync"

	"musink/contract"
	"musink/domain"
	"musink/errors"
)

// SessionRegistry maps a client's opaque code to its session state and
// live connection. It is one of the two shared mutable resources of the
// process; compound transitions across both registries are serialized by
// the Coordinator, the internal lock only protects individual accesses.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	sinks    map[string]contract.FrameSink
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*domain.Session),
		sinks:    make(map[string]contract.FrameSink),
	}
}

// Create registers a new session under code. Codes are caller-supplied
// and untrusted: the only validation is non-emptiness. A code that is
// already present is rejected with ErrDuplicateSession; the existing
// session is left untouched.
func (r *SessionRegistry) Create(code string, token domain.TokenBundle, sink contract.FrameSink) error {
	if code == "" {
		return fmt.Errorf("%w: empty session code", errors.ErrMalformedMessage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[code]; ok {
		return fmt.Errorf("%w: %q", errors.ErrDuplicateSession, code)
	}
	r.sessions[code] = &domain.Session{Code: code, Token: token}
	r.sinks[code] = sink
	return nil
}

// Get returns a copy of the session state for code.
func (r *SessionRegistry) Get(code string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[code]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: %q", errors.ErrUnknownSession, code)
	}
	return *s, nil
}

// Remove deletes the session and returns its last state.
func (r *SessionRegistry) Remove(code string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: %q", errors.ErrUnknownSession, code)
	}
	delete(r.sessions, code)
	delete(r.sinks, code)
	return *s, nil
}

// SetGroup repoints the session's current group id.
func (r *SessionRegistry) SetGroup(code string, groupID domain.GroupID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok {
		return fmt.Errorf("%w: %q", errors.ErrUnknownSession, code)
	}
	s.GroupID = groupID
	return nil
}

// SetToken replaces the session's token bundle after a refresh.
func (r *SessionRegistry) SetToken(code string, token domain.TokenBundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[code]
	if !ok {
		return fmt.Errorf("%w: %q", errors.ErrUnknownSession, code)
	}
	s.Token = token
	return nil
}

// Sink returns the live connection for code, if any.
func (r *SessionRegistry) Sink(code string) (contract.FrameSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sinks[code]
	return sink, ok
}

// Sinks returns every live connection, for broadcast fan-out.
func (r *SessionRegistry) Sinks() []contract.FrameSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.FrameSink, 0, len(r.sinks))
	for _, sink := range r.sinks {
		sinks = append(sinks, sink)
	}
	return sinks
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
