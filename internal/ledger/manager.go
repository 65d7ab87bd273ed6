package ledger

import "sync"

// Manager tracks the open match ledger per physical arena.
type Manager struct {
	mu      sync.RWMutex
	matches map[string]*Match
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{matches: make(map[string]*Match)}
}

// Open creates and registers a ledger for the match, replacing any ledger
// left behind on the same arena.
func (m *Manager) Open(gameID, arena string, ranked bool, team1, team2 []string) *Match {
	match := NewMatch(gameID, arena, ranked, team1, team2)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[arena] = match
	return match
}

// Get returns the open ledger on the arena.
func (m *Manager) Get(arena string) (*Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[arena]
	return match, ok
}

// GetByGameID returns the open ledger for the match id.
func (m *Manager) GetByGameID(gameID string) (*Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, match := range m.matches {
		if match.GameID() == gameID {
			return match, true
		}
	}
	return nil, false
}

// Matches returns every open ledger.
func (m *Manager) Matches() []*Match {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Match, 0, len(m.matches))
	for _, match := range m.matches {
		out = append(out, match)
	}
	return out
}

// Remove drops the ledger on the arena. Removing an absent arena is a no-op.
func (m *Manager) Remove(arena string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.matches, arena)
}

// Len returns the number of open ledgers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matches)
}
