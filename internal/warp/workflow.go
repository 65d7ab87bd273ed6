// Package warp implements the allocation workflow: validate the request,
// lock an arena group, bind and persist the match, place the players, and
// acknowledge the outcome to the orchestrator. It also runs the pre-start
// departure retry loop and the scoring pass at match end.
package warp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deyoyk/RankedBedwarsV2/internal/arena"
	"github.com/deyoyk/RankedBedwarsV2/internal/config"
	"github.com/deyoyk/RankedBedwarsV2/internal/engine"
	"github.com/deyoyk/RankedBedwarsV2/internal/ledger"
	"github.com/deyoyk/RankedBedwarsV2/internal/protocol"
	"github.com/deyoyk/RankedBedwarsV2/internal/stats"
	"github.com/deyoyk/RankedBedwarsV2/internal/storage"
)

// Sender writes messages to the orchestrator session.
type Sender interface {
	Send(msg protocol.Message) error
}

// Workflow coordinates one allocation from warp_players to scoring.
type Workflow struct {
	registry *arena.Registry
	bindings *arena.Bindings
	ledgers  *ledger.Manager
	adapter  engine.Adapter
	store    storage.Store
	sender   Sender
	logger   *zap.Logger
	retryCfg config.RetryConfig

	// Stats, when set, enriches post-scoring notifications with the
	// player's refreshed standing.
	Stats StatsProvider

	mu      sync.Mutex
	retries map[string]chan struct{} // game id -> retry loop cancel
}

// StatsProvider looks up a player's ranked standing.
type StatsProvider interface {
	User(ctx context.Context, ign string) (stats.PlayerRecord, error)
}

// NewWorkflow wires the allocation workflow.
//
// Precondition: all collaborators must be non-nil.
func NewWorkflow(
	registry *arena.Registry,
	bindings *arena.Bindings,
	ledgers *ledger.Manager,
	adapter engine.Adapter,
	store storage.Store,
	sender Sender,
	retryCfg config.RetryConfig,
	logger *zap.Logger,
) *Workflow {
	return &Workflow{
		registry: registry,
		bindings: bindings,
		ledgers:  ledgers,
		adapter:  adapter,
		store:    store,
		sender:   sender,
		logger:   logger,
		retryCfg: retryCfg,
		retries:  make(map[string]chan struct{}),
	}
}

// HandleWarpPlayers runs the allocation for one warp_players request.
// Placement happens on its own goroutine; the handler returns once the lock,
// binding, and warp record are in place.
func (w *Workflow) HandleWarpPlayers(ctx context.Context, req *protocol.WarpPlayers) {
	log := w.logger.With(zap.String("game_id", req.GameID), zap.String("map", req.Map))

	roster := append(append([]string{}, req.Team1.Players...), req.Team2.Players...)
	if offline := w.offlinePlayers(roster); len(offline) > 0 {
		log.Warn("warp rejected, players offline", zap.Strings("offline", offline))
		w.send(protocol.WarpFailedOfflinePlayers{GameID: req.GameID, OfflinePlayers: offline})
		return
	}

	// A repeated request for the same game id supersedes the earlier
	// allocation: release the stale lock before taking a new one.
	if stale, ok := w.bindings.ArenaFor(req.GameID); ok {
		log.Warn("cleaning up stale binding", zap.String("arena", stale))
		w.release(req.GameID, stale)
	}

	arenaName, err := w.registry.Lock(req.Map, req.IsRanked)
	if err != nil {
		log.Warn("no arena available", zap.Error(err))
		w.send(protocol.WarpFailedArenaNotFound{GameID: req.GameID, Map: req.Map})
		return
	}

	if !w.adapter.ArenaExists(ctx, arenaName) {
		log.Error("locked arena missing from engine", zap.String("arena", arenaName))
		w.registry.Unlock(req.Map)
		w.send(protocol.WarpFailedArenaNotFound{GameID: req.GameID, Map: req.Map})
		return
	}

	w.bindings.Bind(req.GameID, arenaName)
	w.ledgers.Open(req.GameID, arenaName, req.IsRanked, req.Team1.Players, req.Team2.Players)

	rec := storage.WarpRecord{
		GameID:   req.GameID,
		Map:      req.Map,
		Arena:    arenaName,
		Ranked:   req.IsRanked,
		Team1:    req.Team1.Players,
		Team2:    req.Team2.Players,
		WarpedAt: time.Now().UTC(),
	}
	if err := w.store.SaveWarpRecord(ctx, rec); err != nil {
		// Persistence is best effort; a failed write never blocks a warp.
		log.Error("saving warp record failed", zap.Error(err))
	}

	go w.place(ctx, req, arenaName, log)
}

// place moves both rosters into the arena. On any failure the binding and
// ledger are released and warp_failure_unknown is sent, but the group stays
// locked: the arena may hold partially placed players, and the occupancy
// sweeper or an operator decides when it is safe again.
func (w *Workflow) place(ctx context.Context, req *protocol.WarpPlayers, arenaName string, log *zap.Logger) {
	placeTeam := func(players []string, team engine.Team) error {
		for _, ign := range players {
			if err := w.adapter.PlacePlayer(ctx, ign, arenaName, team); err != nil {
				return fmt.Errorf("placing %s: %w", ign, err)
			}
		}
		return nil
	}

	err := placeTeam(req.Team1.Players, engine.TeamOne)
	if err == nil {
		err = placeTeam(req.Team2.Players, engine.TeamTwo)
	}
	if err != nil {
		log.Error("placement failed, arena stays locked", zap.Error(err))
		w.bindings.Remove(req.GameID)
		w.ledgers.Remove(arenaName)
		w.send(protocol.WarpFailureUnknown{GameID: req.GameID})
		return
	}

	log.Info("players placed", zap.String("arena", arenaName))
	w.send(protocol.WarpSuccess{GameID: req.GameID})
}

// OnMatchStarted marks the match as begun, ending the pre-start departure
// window. Called by the engine integration when the countdown completes.
func (w *Workflow) OnMatchStarted(arenaName string) {
	if match, ok := w.ledgers.Get(arenaName); ok {
		match.MarkStarted()
		w.cancelRetry(match.GameID())
	}
}

// OnPlayerDeparted handles a rostered player leaving. Before the match
// starts this opens the retry loop: a retrygame notice per interval until
// the player returns or the budget runs out, then the match is voided and
// every piece of allocation state is released.
func (w *Workflow) OnPlayerDeparted(ctx context.Context, ign string) {
	match, ok := w.matchOf(ign)
	if !ok || match.Started() {
		return
	}

	gameID := match.GameID()
	w.mu.Lock()
	if _, running := w.retries[gameID]; running {
		w.mu.Unlock()
		return
	}
	cancel := make(chan struct{})
	w.retries[gameID] = cancel
	w.mu.Unlock()

	w.logger.Warn("player left before match start",
		zap.String("game_id", gameID),
		zap.String("ign", ign),
	)
	go w.retryLoop(ctx, match, ign, cancel)
}

func (w *Workflow) retryLoop(ctx context.Context, match *ledger.Match, ign string, cancel <-chan struct{}) {
	gameID := match.GameID()
	defer w.cancelRetry(gameID)

	for attempt := 1; attempt <= w.retryCfg.Attempts; attempt++ {
		if online, _ := w.adapter.IsOnline(ign); online {
			w.logger.Info("departed player returned",
				zap.String("game_id", gameID),
				zap.String("ign", ign),
			)
			return
		}
		w.send(protocol.RetryGame{GameID: gameID})
		select {
		case <-time.After(w.retryCfg.Interval):
		case <-cancel:
			return
		case <-ctx.Done():
			return
		}
	}

	if online, _ := w.adapter.IsOnline(ign); online {
		return
	}

	reason := fmt.Sprintf("[system] voided because player: %s left before arena starts", ign)
	w.logger.Warn("voiding match", zap.String("game_id", gameID), zap.String("reason", reason))
	w.send(protocol.Voiding{GameID: gameID, Reason: reason})

	if arenaName, ok := w.bindings.ArenaFor(gameID); ok {
		w.release(gameID, arenaName)
	}
}

// OnMatchFinished freezes the ledger, reports scoring, persists the result,
// and unconditionally unlocks the arena group. The unlock happens regardless
// of scoring or persistence outcome.
func (w *Workflow) OnMatchFinished(ctx context.Context, arenaName string, winner ledger.Winner) {
	match, ok := w.ledgers.Get(arenaName)
	if !ok {
		w.logger.Warn("match finished on arena without a ledger",
			zap.String("arena", arenaName),
		)
		w.unlockByArena(arenaName)
		return
	}
	gameID := match.GameID()
	defer w.release(gameID, arenaName)

	rec := match.Finish(winner)
	w.send(buildScoring(rec))

	if err := w.store.SaveResultRecord(ctx, rec); err != nil {
		w.logger.Error("saving result record failed",
			zap.String("game_id", gameID),
			zap.Error(err),
		)
	}
}

// HandleScoringSuccess relays the orchestrator's scoring confirmation to the
// named players, including their refreshed elo when the stats backend is
// wired.
func (w *Workflow) HandleScoringSuccess(ctx context.Context, msg *protocol.ScoringSuccess) {
	base := "Match " + msg.GameID + " has been scored"
	if w.Stats == nil {
		w.adapter.NotifyPlayers(msg.Players, base)
		return
	}
	for _, ign := range msg.Players {
		rec, err := w.Stats.User(ctx, ign)
		if err != nil {
			w.logger.Warn("stats lookup failed",
				zap.String("ign", ign),
				zap.Error(err),
			)
			w.adapter.NotifyPlayers([]string{ign}, base)
			continue
		}
		w.adapter.NotifyPlayers([]string{ign}, fmt.Sprintf("%s. Your elo is now %d", base, rec.Elo))
	}
}

// HandleGameVoided relays an orchestrator-side void to the named players and
// releases any allocation state still held for the match.
func (w *Workflow) HandleGameVoided(ctx context.Context, msg *protocol.GameVoided) {
	text := "Match " + msg.GameID + " was voided"
	if msg.Reason != "" {
		text += ": " + msg.Reason
	}
	w.adapter.NotifyPlayers(msg.Players, text)

	w.cancelRetry(msg.GameID)
	if arenaName, ok := w.bindings.ArenaFor(msg.GameID); ok {
		w.release(msg.GameID, arenaName)
	}
}

// HandleCheckPlayer answers an online probe with the server's casing of the
// name.
func (w *Workflow) HandleCheckPlayer(ctx context.Context, msg *protocol.CheckPlayer) {
	online, original := w.adapter.IsOnline(msg.IGN)
	w.send(protocol.PlayerStatus{
		IGN:             msg.IGN,
		Online:          online,
		OriginalIGNCase: original,
	})
}

// release drops every piece of allocation state for the match and unlocks
// its group.
func (w *Workflow) release(gameID, arenaName string) {
	w.bindings.Remove(gameID)
	w.ledgers.Remove(arenaName)
	w.unlockByArena(arenaName)
}

func (w *Workflow) unlockByArena(arenaName string) {
	w.registry.UnlockByArena(arenaName)
}

func (w *Workflow) cancelRetry(gameID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cancel, ok := w.retries[gameID]; ok {
		close(cancel)
		delete(w.retries, gameID)
	}
}

func (w *Workflow) matchOf(ign string) (*ledger.Match, bool) {
	for _, match := range w.ledgers.Matches() {
		for _, p := range match.Players() {
			if p == ign {
				return match, true
			}
		}
	}
	return nil, false
}

func (w *Workflow) offlinePlayers(roster []string) []string {
	var offline []string
	for _, ign := range roster {
		if online, _ := w.adapter.IsOnline(ign); !online {
			offline = append(offline, ign)
		}
	}
	return offline
}

// send drops the error on the floor beyond logging: the session already
// logs, alerts operators, and schedules reconnects on failure.
func (w *Workflow) send(msg protocol.Message) {
	if err := w.sender.Send(msg); err != nil {
		w.logger.Warn("orchestrator send failed",
			zap.String("kind", msg.Type()),
			zap.Error(err),
		)
	}
}

func buildScoring(rec ledger.ResultRecord) protocol.Scoring {
	players := make(map[string]protocol.PlayerScore, len(rec.Players))
	for ign, p := range rec.Players {
		players[ign] = protocol.PlayerScore{
			Kills:        p.Kills,
			Deaths:       p.Deaths,
			FinalKills:   p.FinalKills,
			BlocksPlaced: p.BlocksPlaced,
			Diamonds:     p.Diamonds,
			Irons:        p.Irons,
			Gold:         p.Gold,
			Emeralds:     p.Emeralds,
		}
	}
	return protocol.Scoring{
		GameID:      rec.GameID,
		Players:     players,
		MVPs:        rec.MVPs,
		BedsBroken:  rec.BedsBroken,
		WinningTeam: rec.WinningTeam,
	}
}
