package arena

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a group.
type State int

const (
	// Available groups can be locked for a match.
	Available State = iota
	// Locked groups host an in-progress match on their current variant.
	Locked
	// Disabled groups are withdrawn from allocation by an operator.
	Disabled
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Locked:
		return "locked"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

var (
	// ErrGroupLocked is returned when locking a group that is already locked.
	ErrGroupLocked = errors.New("arena group is locked")
	// ErrGroupDisabled is returned when locking a disabled group.
	ErrGroupDisabled = errors.New("arena group is disabled")
	// ErrNoVariant is returned when a group has no physical arena for any
	// preferred variant.
	ErrNoVariant = errors.New("arena group has no usable variant")
)

// Group is one arena group: a named set of physical arena variants that is
// locked and unlocked as a unit. The lock and disable flags are independent:
// disabling a group with a running match keeps its lock, so the match can
// finish and the arena cannot be double-allocated through a disable/enable
// cycle. All state transitions happen under the group's own mutex so the
// lock flag and the current variant never tear.
type Group struct {
	name       string
	maxPlayers int

	mu       sync.Mutex
	arenas   map[Variant]string
	locked   bool
	disabled bool
	current  Variant
}

// NewGroup creates a group with the given variant inventory.
//
// Precondition: arenas must contain at least one entry.
func NewGroup(name string, maxPlayers int, arenas map[Variant]string) *Group {
	inventory := make(map[Variant]string, len(arenas))
	for v, a := range arenas {
		inventory[v] = a
	}
	return &Group{
		name:       name,
		maxPlayers: maxPlayers,
		arenas:     inventory,
	}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// MaxPlayers returns the player capacity of the group's arenas.
func (g *Group) MaxPlayers() int { return g.maxPlayers }

// State reports the group for snapshots. Disabled wins over Locked: a
// disabled group with a running match still shows as disabled.
func (g *Group) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.disabled:
		return Disabled
	case g.locked:
		return Locked
	default:
		return Available
	}
}

// Locked reports the lock flag, independent of the disable flag.
func (g *Group) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked
}

// Disabled reports the disable flag, independent of the lock flag.
func (g *Group) Disabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disabled
}

// Arenas returns the physical arena names across all variants.
func (g *Group) Arenas() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.arenas))
	for _, a := range g.arenas {
		out = append(out, a)
	}
	return out
}

// HasArena reports whether the named physical arena belongs to this group.
func (g *Group) HasArena(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, a := range g.arenas {
		if a == name {
			return true
		}
	}
	return false
}

// AddVariant registers a physical arena for the variant. Used while building
// the registry from the engine inventory.
func (g *Group) AddVariant(v Variant, arena string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.arenas[v] = arena
}

// CurrentArena returns the physical arena hosting the in-progress match.
// The second return is false unless the group is locked.
func (g *Group) CurrentArena() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.locked {
		return "", false
	}
	return g.arenas[g.current], true
}

// Lock transitions the group to Locked and selects the physical arena by the
// match kind's variant preference.
//
// Postcondition: On success the group is Locked and the returned arena is
// the selected variant; on error the group state is unchanged.
func (g *Group) Lock(ranked bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locked {
		return "", fmt.Errorf("%w: %s", ErrGroupLocked, g.name)
	}
	if g.disabled {
		return "", fmt.Errorf("%w: %s", ErrGroupDisabled, g.name)
	}
	for _, v := range preference(ranked) {
		if arena, ok := g.arenas[v]; ok {
			g.locked = true
			g.current = v
			return arena, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoVariant, g.name)
}

// Unlock clears the lock flag and reports whether it was set. The disable
// flag is untouched.
func (g *Group) Unlock() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	was := g.locked
	g.locked = false
	return was
}

// Disable withdraws the group from allocation and reports whether the flag
// changed. An existing lock stays: the running match finishes, but no new
// lock succeeds.
func (g *Group) Disable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	was := g.disabled
	g.disabled = true
	return !was
}

// Enable clears the disable flag and reports whether it changed. An existing
// lock stays; the group becomes allocatable only once it is also unlocked.
func (g *Group) Enable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	was := g.disabled
	g.disabled = false
	return was
}
