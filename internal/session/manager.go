package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/veridrive/sigproof/internal/domain"
)

// ErrUnknownSession is returned for session IDs the manager never issued.
var ErrUnknownSession = fmt.Errorf("session: unknown session id")

// Manager tracks live and finished sessions by ID. IDs are issued by the
// manager, never by callers, so two sessions can never collide.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// StartSession constructs a session from cfg and deps, starts it, and
// returns its ID. The session is registered even when Start degrades to
// a subset of sources; it is not registered when Start fails outright.
func (m *Manager) StartSession(cfg Config, deps Deps) (string, error) {
	return m.StartSessionFunc(cfg, func(string) (Deps, error) { return deps, nil })
}

// StartSessionFunc is StartSession for callers whose dependencies need
// the issued session ID, such as a per-session journal file.
func (m *Manager) StartSessionFunc(cfg Config, build func(sessionID string) (Deps, error)) (string, error) {
	id := uuid.NewString()
	cfg.SessionID = id

	deps, err := build(id)
	if err != nil {
		return "", err
	}
	s, err := New(cfg, deps)
	if err != nil {
		return "", err
	}
	if err := s.Start(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return id, nil
}

// StopSession stops the session and returns its verdict. Stopping an
// already stopped session returns the identical verdict again.
func (m *Manager) StopSession(id string) (*domain.TestVerdict, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return s.Stop()
}

// CancelSession aborts the session without computing a verdict.
func (m *Manager) CancelSession(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	s.Cancel()
	return nil
}

// GetProgress reports the session's counters; valid in every state.
func (m *Manager) GetProgress(id string) (domain.ProgressSnapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return domain.ProgressSnapshot{}, err
	}
	return s.Progress(), nil
}

// Get exposes the session itself for callers that need more than the
// lifecycle operations (faults, direct state checks).
func (m *Manager) Get(id string) (*Session, error) {
	return m.get(id)
}

// List returns the IDs of all registered sessions.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}

// Remove drops a terminal session from the registry. Live sessions are
// kept; cancel or stop them first.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	if !s.State().terminal() {
		return fmt.Errorf("session %s: still %s", id, s.State())
	}
	delete(m.sessions, id)
	return nil
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}
