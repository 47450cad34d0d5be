// Package presence tracks which connection each user is on and which session
// they belong to. Dropping a connection only lapses presence; the session
// pointer survives until the user leaves or the session is deleted.
package presence

import (
	"errors"
	"sync"
	"time"
)

var ErrBoundElsewhere = errors.New("already in another game")

type Entry struct {
	ConnID    string
	SessionID string
	Online    bool
	LastSeen  time.Time
}

type Manager struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

func New() *Manager {
	return &Manager{entries: make(map[string]*Entry), now: time.Now}
}

func (m *Manager) entryLocked(user string) *Entry {
	e, ok := m.entries[user]
	if !ok {
		e = &Entry{}
		m.entries[user] = e
	}
	return e
}

// Connect records connID as user's live channel and returns the one it replaced.
func (m *Manager) Connect(user, connID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(user)
	prev := e.ConnID
	e.ConnID = connID
	e.Online = true
	e.LastSeen = m.now()
	return prev
}

// Disconnect lapses presence if connID is still the user's channel.
func (m *Manager) Disconnect(user, connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[user]
	if !ok || e.ConnID != connID {
		return false
	}
	e.ConnID = ""
	e.Online = false
	e.LastSeen = m.now()
	m.gcLocked(user)
	return true
}

func (m *Manager) Lookup(user string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[user]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (m *Manager) Online(user string) bool {
	e, ok := m.Lookup(user)
	return ok && e.Online
}

// SessionOf returns the session the user is bound to.
func (m *Manager) SessionOf(user string) (string, bool) {
	e, ok := m.Lookup(user)
	if !ok || e.SessionID == "" {
		return "", false
	}
	return e.SessionID, true
}

// Bind points user at sessionID. Binding to the session already held is a no-op.
func (m *Manager) Bind(user, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(user)
	if e.SessionID != "" && e.SessionID != sessionID {
		return ErrBoundElsewhere
	}
	e.SessionID = sessionID
	return nil
}

// Unbind clears the pointer if it still names sessionID.
func (m *Manager) Unbind(user, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[user]; ok && e.SessionID == sessionID {
		e.SessionID = ""
		m.gcLocked(user)
	}
}

// Evict clears every pointer to sessionID and returns the affected users.
func (m *Manager) Evict(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for user, e := range m.entries {
		if e.SessionID == sessionID {
			e.SessionID = ""
			out = append(out, user)
			m.gcLocked(user)
		}
	}
	return out
}

func (m *Manager) gcLocked(user string) {
	if e := m.entries[user]; e != nil && e.ConnID == "" && e.SessionID == "" {
		delete(m.entries, user)
	}
}
