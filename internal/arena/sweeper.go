package arena

import (
	"context"

	"go.uber.org/zap"

	"github.com/deyoyk/RankedBedwarsV2/internal/engine"
)

// Sweeper unlocks locked groups whose arenas have emptied out. It is the
// safety net for matches that end without a clean scoring pass: the lock is
// released once every physical arena in the group reports zero occupants.
type Sweeper struct {
	registry *Registry
	adapter  engine.Adapter
	logger   *zap.Logger
}

// NewSweeper creates a sweeper over the registry.
//
// Precondition: registry, adapter, and logger must be non-nil.
func NewSweeper(registry *Registry, adapter engine.Adapter, logger *zap.Logger) *Sweeper {
	return &Sweeper{registry: registry, adapter: adapter, logger: logger}
}

// Sweep inspects every locked group once. A group unlocks only when all of
// its physical arenas are empty; an occupancy probe error keeps the lock.
func (s *Sweeper) Sweep(ctx context.Context) {
	for _, g := range s.registry.Groups() {
		if !g.Locked() {
			continue
		}
		empty := true
		for _, arena := range g.Arenas() {
			n, err := s.adapter.Occupants(ctx, arena)
			if err != nil {
				s.logger.Warn("occupancy probe failed, keeping lock",
					zap.String("group", g.Name()),
					zap.String("arena", arena),
					zap.Error(err),
				)
				empty = false
				break
			}
			if n > 0 {
				empty = false
				break
			}
		}
		if empty {
			s.registry.Unlock(g.Name())
			s.logger.Info("unlocked abandoned arena group",
				zap.String("group", g.Name()),
			)
		}
	}
}
