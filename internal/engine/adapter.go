// Package engine defines the boundary to the in-process game engine that owns
// arenas and players. The coordinator core never talks to the engine
// directly; it goes through an Adapter selected once at startup.
package engine

import (
	"context"
	"errors"
)

// Team identifies a side of a match when placing players.
type Team int

const (
	TeamOne Team = 1
	TeamTwo Team = 2
)

// ErrNoEngine is returned by Detect when no adapter reports itself available.
var ErrNoEngine = errors.New("no available game engine")

// ErrArenaNotFound is returned by engine operations naming an arena the
// engine does not know.
var ErrArenaNotFound = errors.New("arena not found")

// ErrPlayerOffline is returned by PlacePlayer when the player is not on the
// server.
var ErrPlayerOffline = errors.New("player offline")

// ArenaDescriptor is one physical arena as enumerated by the engine.
type ArenaDescriptor struct {
	Name       string
	MaxPlayers int
}

// Adapter is the capability surface the coordinator requires from a game
// engine. Implementations must be safe for concurrent use.
type Adapter interface {
	// Name identifies the engine implementation in logs.
	Name() string

	// Available reports whether the engine is present and usable. Detect
	// calls this exactly once per implementation at startup.
	Available() bool

	// Arenas enumerates the engine's arena inventory.
	Arenas(ctx context.Context) ([]ArenaDescriptor, error)

	// ArenaExists reports whether the named physical arena exists.
	ArenaExists(ctx context.Context, name string) bool

	// Occupants returns the number of players currently inside the arena.
	Occupants(ctx context.Context, arena string) (int, error)

	// PlacePlayer moves a player into the arena on the given team.
	PlacePlayer(ctx context.Context, ign, arena string, team Team) error

	// IsOnline reports whether the named player is on the server, along
	// with the server's casing of the name when they are.
	IsOnline(ign string) (online bool, originalCase string)

	// OnlineCount returns current and maximum server occupancy.
	OnlineCount() (online, max int)

	// NotifyPlayers sends a chat message to each named online player.
	NotifyPlayers(igns []string, message string)

	// BroadcastOperators sends a message to every online operator.
	BroadcastOperators(message string)
}

// Detect returns the first adapter that reports itself available, probing in
// the order given.
//
// Postcondition: Returns a non-nil adapter or ErrNoEngine.
func Detect(impls ...Adapter) (Adapter, error) {
	for _, impl := range impls {
		if impl.Available() {
			return impl, nil
		}
	}
	return nil, ErrNoEngine
}
