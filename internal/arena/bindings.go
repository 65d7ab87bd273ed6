package arena

import "sync"

// Bindings maps in-flight match ids to the physical arena hosting them, with
// reverse lookup by arena. Removal is idempotent so cleanup paths can race.
type Bindings struct {
	mu      sync.RWMutex
	byMatch map[string]string
	byArena map[string]string
}

// NewBindings creates an empty binding table.
func NewBindings() *Bindings {
	return &Bindings{
		byMatch: make(map[string]string),
		byArena: make(map[string]string),
	}
}

// Bind records that the match occupies the arena, replacing any stale
// binding either side held.
func (b *Bindings) Bind(matchID, arena string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.byMatch[matchID]; ok {
		delete(b.byArena, old)
	}
	if old, ok := b.byArena[arena]; ok {
		delete(b.byMatch, old)
	}
	b.byMatch[matchID] = arena
	b.byArena[arena] = matchID
}

// Remove deletes the match's binding. Removing an absent match is a no-op.
func (b *Bindings) Remove(matchID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if arena, ok := b.byMatch[matchID]; ok {
		delete(b.byArena, arena)
		delete(b.byMatch, matchID)
	}
}

// ArenaFor returns the arena bound to the match.
func (b *Bindings) ArenaFor(matchID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	arena, ok := b.byMatch[matchID]
	return arena, ok
}

// MatchFor returns the match bound to the arena.
func (b *Bindings) MatchFor(arena string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	matchID, ok := b.byArena[arena]
	return matchID, ok
}

// Len returns the number of live bindings.
func (b *Bindings) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byMatch)
}
