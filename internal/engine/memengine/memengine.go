// Package memengine provides an in-memory engine adapter used by development
// wiring and tests.
package memengine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/deyoyk/RankedBedwarsV2/internal/engine"
)

// Engine is an in-memory engine.Adapter. The zero value is not usable; use
// New.
type Engine struct {
	mu        sync.RWMutex
	arenas    map[string]*arenaState
	players   map[string]string // lowercase ign -> original case
	maxOnline int

	operatorLog []string
	playerLog   map[string][]string

	// PlaceErr, when set, is returned by every PlacePlayer call. Tests use
	// it to simulate engine-side placement failures.
	PlaceErr error
}

type arenaState struct {
	descriptor engine.ArenaDescriptor
	occupants  map[string]engine.Team
}

// New creates an empty in-memory engine with the given server capacity.
func New(maxOnline int) *Engine {
	return &Engine{
		arenas:    make(map[string]*arenaState),
		players:   make(map[string]string),
		maxOnline: maxOnline,
		playerLog: make(map[string][]string),
	}
}

// AddArena registers a physical arena in the inventory.
func (e *Engine) AddArena(name string, maxPlayers int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.arenas[name] = &arenaState{
		descriptor: engine.ArenaDescriptor{Name: name, MaxPlayers: maxPlayers},
		occupants:  make(map[string]engine.Team),
	}
}

// Join marks a player as online.
func (e *Engine) Join(ign string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.players[strings.ToLower(ign)] = ign
}

// Leave marks a player as offline and removes them from any arena.
func (e *Engine) Leave(ign string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := strings.ToLower(ign)
	delete(e.players, key)
	for _, a := range e.arenas {
		delete(a.occupants, key)
	}
}

// ClearArena removes every occupant from the named arena.
func (e *Engine) ClearArena(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.arenas[name]; ok {
		a.occupants = make(map[string]engine.Team)
	}
}

// OperatorMessages returns every operator broadcast so far.
func (e *Engine) OperatorMessages() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.operatorLog))
	copy(out, e.operatorLog)
	return out
}

// PlayerMessages returns every chat message delivered to the named player.
func (e *Engine) PlayerMessages(ign string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	msgs := e.playerLog[strings.ToLower(ign)]
	out := make([]string, len(msgs))
	copy(out, msgs)
	return out
}

func (e *Engine) Name() string { return "memory" }

func (e *Engine) Available() bool { return true }

func (e *Engine) Arenas(ctx context.Context) ([]engine.ArenaDescriptor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]engine.ArenaDescriptor, 0, len(e.arenas))
	for _, a := range e.arenas {
		out = append(out, a.descriptor)
	}
	return out, nil
}

func (e *Engine) ArenaExists(ctx context.Context, name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.arenas[name]
	return ok
}

func (e *Engine) Occupants(ctx context.Context, arena string) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.arenas[arena]
	if !ok {
		return 0, fmt.Errorf("%w: %s", engine.ErrArenaNotFound, arena)
	}
	return len(a.occupants), nil
}

func (e *Engine) PlacePlayer(ctx context.Context, ign, arena string, team engine.Team) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.PlaceErr != nil {
		return e.PlaceErr
	}
	a, ok := e.arenas[arena]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrArenaNotFound, arena)
	}
	key := strings.ToLower(ign)
	if _, online := e.players[key]; !online {
		return fmt.Errorf("%w: %s", engine.ErrPlayerOffline, ign)
	}
	a.occupants[key] = team
	return nil
}

func (e *Engine) IsOnline(ign string) (bool, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	original, ok := e.players[strings.ToLower(ign)]
	return ok, original
}

func (e *Engine) OnlineCount() (int, int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.players), e.maxOnline
}

func (e *Engine) NotifyPlayers(igns []string, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ign := range igns {
		key := strings.ToLower(ign)
		if _, online := e.players[key]; online {
			e.playerLog[key] = append(e.playerLog[key], message)
		}
	}
}

func (e *Engine) BroadcastOperators(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.operatorLog = append(e.operatorLog, message)
}
