package arena

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/deyoyk/RankedBedwarsV2/internal/engine"
)

// ErrGroupNotFound is returned when no group matches the requested name.
var ErrGroupNotFound = errors.New("arena group not found")

// Registry holds every arena group, keyed by lowercased group name. The map
// itself is guarded by an RWMutex; group state transitions happen under each
// group's own mutex.
type Registry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	groups   map[string]*Group
	onChange func()
}

// NewRegistry creates an empty registry.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger,
		groups: make(map[string]*Group),
	}
}

// SetOnChange registers a callback invoked after every effective state
// transition (lock, unlock, disable, enable). The composition root uses it
// to push a fresh maps_info snapshot to the orchestrator immediately instead
// of waiting for the next resync tick.
func (r *Registry) SetOnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// changed runs the transition callback. Callers must not hold r.mu or any
// group mutex: the callback typically takes a full Snapshot.
func (r *Registry) changed() {
	r.mu.RLock()
	fn := r.onChange
	r.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Register adds a group. An existing group with the same name is replaced.
func (r *Registry) Register(g *Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[strings.ToLower(g.Name())] = g
}

// Initialize builds the group inventory from the engine's arena enumeration.
// A physical arena named "h<group>" or "p<group>" is folded into <group> as
// its primary or practice variant when the bare group arena also exists;
// otherwise the arena founds its own group as the alternate variant.
//
// Postcondition: Every engine arena belongs to exactly one group.
func (r *Registry) Initialize(ctx context.Context, adapter engine.Adapter) error {
	descriptors, err := adapter.Arenas(ctx)
	if err != nil {
		return fmt.Errorf("enumerating arenas: %w", err)
	}

	names := make(map[string]engine.ArenaDescriptor, len(descriptors))
	for _, d := range descriptors {
		names[strings.ToLower(d.Name)] = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = make(map[string]*Group)

	classify := func(name string) (group string, v Variant) {
		lower := strings.ToLower(name)
		for prefix, variant := range map[string]Variant{"h": Primary, "p": Practice} {
			if rest, ok := strings.CutPrefix(lower, prefix); ok && rest != "" {
				if _, bare := names[rest]; bare {
					return rest, variant
				}
			}
		}
		return lower, Alternate
	}

	for _, d := range descriptors {
		groupName, v := classify(d.Name)
		g, ok := r.groups[groupName]
		if !ok {
			g = NewGroup(groupName, d.MaxPlayers, map[Variant]string{})
			r.groups[groupName] = g
		}
		g.AddVariant(v, d.Name)
	}

	r.logger.Info("arena registry initialized",
		zap.Int("groups", len(r.groups)),
		zap.Int("arenas", len(descriptors)),
		zap.String("engine", adapter.Name()),
	)
	return nil
}

// Get returns the group with the given name, case-insensitively.
func (r *Registry) Get(name string) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[strings.ToLower(name)]
	return g, ok
}

// FindByArena returns the group owning the named physical arena.
func (r *Registry) FindByArena(arena string) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.groups {
		if g.HasArena(arena) {
			return g, true
		}
	}
	return nil, false
}

// Groups returns every registered group.
func (r *Registry) Groups() []*Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out
}

// Lock locks the named group and returns the selected physical arena.
//
// Postcondition: On success the group is Locked; errors wrap
// ErrGroupNotFound, ErrGroupLocked, ErrGroupDisabled, or ErrNoVariant.
func (r *Registry) Lock(name string, ranked bool) (string, error) {
	g, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	arena, err := g.Lock(ranked)
	if err != nil {
		return "", err
	}
	r.logger.Info("arena group locked",
		zap.String("group", g.Name()),
		zap.String("arena", arena),
		zap.Bool("ranked", ranked),
	)
	r.changed()
	return arena, nil
}

// Unlock unlocks the named group. Unknown names and already-unlocked groups
// are no-ops.
func (r *Registry) Unlock(name string) {
	if g, ok := r.Get(name); ok && g.Unlock() {
		r.logger.Info("arena group unlocked", zap.String("group", g.Name()))
		r.changed()
	}
}

// UnlockByArena unlocks the group owning the named physical arena. Reports
// whether a lock was actually cleared.
func (r *Registry) UnlockByArena(arena string) bool {
	g, ok := r.FindByArena(arena)
	if !ok || !g.Unlock() {
		return false
	}
	r.logger.Info("arena group unlocked",
		zap.String("group", g.Name()),
		zap.String("arena", arena),
	)
	r.changed()
	return true
}

// UnlockAll force-unlocks every locked group. Administrative recovery path.
func (r *Registry) UnlockAll() int {
	n := 0
	for _, g := range r.Groups() {
		if g.Unlock() {
			n++
		}
	}
	if n > 0 {
		r.logger.Info("all arena groups unlocked", zap.Int("count", n))
		r.changed()
	}
	return n
}

// Disable withdraws a group from allocation, addressed by group name or by
// any of its physical arena names.
func (r *Registry) Disable(name string) error {
	g, ok := r.Get(name)
	if !ok {
		g, ok = r.FindByArena(name)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	if g.Disable() {
		r.logger.Info("arena group disabled", zap.String("group", g.Name()))
		r.changed()
	}
	return nil
}

// Enable returns a disabled group to allocation, addressed like Disable.
func (r *Registry) Enable(name string) error {
	g, ok := r.Get(name)
	if !ok {
		g, ok = r.FindByArena(name)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	if g.Enable() {
		r.logger.Info("arena group enabled", zap.String("group", g.Name()))
		r.changed()
	}
	return nil
}

// Info describes one group in a snapshot.
type Info struct {
	Name       string
	MaxPlayers int
}

// Snapshot partitions the registry by state. Every group appears in exactly
// one of Reserved (available), Locked, or Disabled, and always in All.
type Snapshot struct {
	Reserved []Info
	Locked   []Info
	Disabled []Info
	All      []Info
}

// Snapshot returns the current registry partition, sorted by group name for
// stable output.
func (r *Registry) Snapshot() Snapshot {
	groups := r.Groups()
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name() < groups[j].Name() })

	snap := Snapshot{
		Reserved: []Info{},
		Locked:   []Info{},
		Disabled: []Info{},
		All:      []Info{},
	}
	for _, g := range groups {
		info := Info{Name: g.Name(), MaxPlayers: g.MaxPlayers()}
		snap.All = append(snap.All, info)
		switch g.State() {
		case Locked:
			snap.Locked = append(snap.Locked, info)
		case Disabled:
			snap.Disabled = append(snap.Disabled, info)
		default:
			snap.Reserved = append(snap.Reserved, info)
		}
	}
	return snap
}
