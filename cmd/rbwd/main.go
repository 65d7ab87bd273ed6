// Command rbwd runs the arena coordinator: it maintains the websocket
// session to the matchmaking orchestrator, allocates arena groups for
// warp requests, and reports match results back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deyoyk/RankedBedwarsV2/internal/arena"
	"github.com/deyoyk/RankedBedwarsV2/internal/config"
	"github.com/deyoyk/RankedBedwarsV2/internal/engine"
	"github.com/deyoyk/RankedBedwarsV2/internal/engine/memengine"
	"github.com/deyoyk/RankedBedwarsV2/internal/ledger"
	"github.com/deyoyk/RankedBedwarsV2/internal/observability"
	"github.com/deyoyk/RankedBedwarsV2/internal/perms"
	"github.com/deyoyk/RankedBedwarsV2/internal/protocol"
	"github.com/deyoyk/RankedBedwarsV2/internal/router"
	"github.com/deyoyk/RankedBedwarsV2/internal/server"
	"github.com/deyoyk/RankedBedwarsV2/internal/stats"
	"github.com/deyoyk/RankedBedwarsV2/internal/storage"
	"github.com/deyoyk/RankedBedwarsV2/internal/storage/filestore"
	"github.com/deyoyk/RankedBedwarsV2/internal/storage/postgres"
	"github.com/deyoyk/RankedBedwarsV2/internal/transport"
	"github.com/deyoyk/RankedBedwarsV2/internal/warp"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	arenaSpec := flag.String("arenas", "", "seed arenas for the in-memory engine, e.g. aqua:8,haqua:8,lava:8")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger, *arenaSpec); err != nil {
		logger.Fatal("coordinator exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger, arenaSpec string) error {
	ctx := context.Background()

	eng, err := detectEngine(arenaSpec)
	if err != nil {
		return fmt.Errorf("detecting engine: %w", err)
	}
	logger.Info("engine detected", zap.String("engine", eng.Name()))

	registry := arena.NewRegistry(logger)
	if err := registry.Initialize(ctx, eng); err != nil {
		return fmt.Errorf("initializing arena registry: %w", err)
	}

	bindings := arena.NewBindings()
	ledgers := ledger.NewManager()

	store, pool, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building storage backend: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}

	permSnapshot, err := perms.Load(cfg.Permissions.FilePath)
	if err != nil {
		return fmt.Errorf("loading permission file: %w", err)
	}

	statsClient := stats.New(cfg.StatsAPI, logger)

	mux := router.New(logger)
	session := transport.NewSession(cfg.Orchestrator, mux, eng, logger)

	workflow := warp.NewWorkflow(registry, bindings, ledgers, eng, store, session, cfg.Retry, logger)
	workflow.Stats = statsClient

	resync := func(ctx context.Context) {
		sendSnapshot := func(msg protocol.Message) {
			if err := session.Send(msg); err != nil {
				logger.Warn("resync send failed",
					zap.String("kind", msg.Type()),
					zap.Error(err),
				)
			}
		}
		sendSnapshot(protocol.ServerStatus{Status: "connected", Timestamp: time.Now().UnixMilli()})
		sendSnapshot(permSnapshot.Envelope())
		sendSnapshot(mapsInfo(registry))
	}
	session.OnAuthenticated = resync

	// Push a fresh snapshot on every registry transition so the
	// orchestrator's view never lags behind an allocation.
	registry.SetOnChange(func() {
		if session.Snapshot().State != transport.Connected {
			return
		}
		if err := session.Send(mapsInfo(registry)); err != nil {
			logger.Warn("maps_info push failed", zap.Error(err))
		}
	})

	registerHandlers(mux, workflow, session, eng, logger)

	sweeper := arena.NewSweeper(registry, eng, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("session", session)
	lifecycle.Add("sweeper", server.NewTickerService(cfg.Arena.SweepInterval, sweeper.Sweep))
	lifecycle.Add("resync", server.NewTickerService(cfg.Arena.ResyncInterval, func(ctx context.Context) {
		if session.Snapshot().State != transport.Connected {
			return
		}
		if err := session.Send(mapsInfo(registry)); err != nil {
			logger.Warn("periodic maps_info send failed", zap.Error(err))
		}
	}))
	if pool != nil {
		lifecycle.Add("postgres", server.NewTickerService(30*time.Second, func(ctx context.Context) {
			if err := pool.Health(ctx, 5*time.Second); err != nil {
				logger.Error("database health check failed", zap.Error(err))
			}
		}))
	}

	return lifecycle.Run(ctx)
}

// detectEngine probes the known engine integrations. The in-memory engine is
// always available and carries whatever inventory the -arenas flag seeded.
func detectEngine(arenaSpec string) (engine.Adapter, error) {
	mem := memengine.New(100)
	for _, entry := range strings.Split(arenaSpec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, capacity := entry, 8
		if at := strings.IndexByte(entry, ':'); at >= 0 {
			name = entry[:at]
			n, err := strconv.Atoi(entry[at+1:])
			if err != nil {
				return nil, fmt.Errorf("parsing arena spec %q: %w", entry, err)
			}
			capacity = n
		}
		mem.AddArena(name, capacity)
	}
	return engine.Detect(mem)
}

// buildStore selects the match-log backend. The returned pool is non-nil only
// for the postgres backend so the caller can manage its lifecycle.
func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, *postgres.Pool, error) {
	if !cfg.Storage.Enabled {
		logger.Info("match-log storage disabled")
		return storage.NopStore{}, nil, nil
	}
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("match-log storage ready", zap.String("backend", "postgres"))
		return postgres.NewMatchLogRepository(pool.DB()), pool, nil
	default:
		fs, err := filestore.New(cfg.Storage.FolderPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("match-log storage ready",
			zap.String("backend", "file"),
			zap.String("folder", cfg.Storage.FolderPath),
		)
		return fs, nil, nil
	}
}

func registerHandlers(mux *router.Router, workflow *warp.Workflow, session *transport.Session, eng engine.Adapter, logger *zap.Logger) {
	mux.Register(protocol.KindWarpPlayers, func(ctx context.Context, msg protocol.Message) {
		workflow.HandleWarpPlayers(ctx, msg.(*protocol.WarpPlayers))
	})
	mux.Register(protocol.KindCheckPlayer, func(ctx context.Context, msg protocol.Message) {
		workflow.HandleCheckPlayer(ctx, msg.(*protocol.CheckPlayer))
	})
	mux.Register(protocol.KindScoringSuccess, func(ctx context.Context, msg protocol.Message) {
		workflow.HandleScoringSuccess(ctx, msg.(*protocol.ScoringSuccess))
	})
	mux.Register(protocol.KindGameVoided, func(ctx context.Context, msg protocol.Message) {
		workflow.HandleGameVoided(ctx, msg.(*protocol.GameVoided))
	})
	mux.Register(protocol.KindPing, func(ctx context.Context, msg protocol.Message) {
		ping := msg.(*protocol.Ping)
		online, max := eng.OnlineCount()
		err := session.Send(protocol.Pong{
			PingID:       ping.PingID,
			Timestamp:    time.Now().UnixMilli(),
			ServerOnline: online,
			ServerMax:    max,
		})
		if err != nil {
			logger.Warn("pong send failed", zap.Error(err))
		}
	})
	mux.Register(protocol.KindPong, func(ctx context.Context, msg protocol.Message) {
		pong := msg.(*protocol.Pong)
		if rtt, ok := session.HandlePong(pong.PingID); ok {
			logger.Info("orchestrator latency", zap.Duration("rtt", rtt))
		}
	})
}

func mapsInfo(registry *arena.Registry) protocol.MapsInfo {
	snap := registry.Snapshot()
	convert := func(infos []arena.Info) []protocol.ArenaInfo {
		out := make([]protocol.ArenaInfo, 0, len(infos))
		for _, info := range infos {
			out = append(out, protocol.ArenaInfo{Name: info.Name, MaxPlayers: info.MaxPlayers})
		}
		return out
	}
	return protocol.MapsInfo{
		Reserved: convert(snap.Reserved),
		Locked:   convert(snap.Locked),
		Disabled: convert(snap.Disabled),
		All:      convert(snap.All),
	}
}
