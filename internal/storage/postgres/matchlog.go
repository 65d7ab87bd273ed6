package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deyoyk/RankedBedwarsV2/internal/ledger"
	"github.com/deyoyk/RankedBedwarsV2/internal/storage"
)

// ErrResultNotFound is returned when a result lookup yields no rows.
var ErrResultNotFound = errors.New("result record not found")

// MatchLogRepository persists warp and result records. It implements
// storage.Store.
type MatchLogRepository struct {
	db *pgxpool.Pool
}

// NewMatchLogRepository creates a MatchLogRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewMatchLogRepository(db *pgxpool.Pool) *MatchLogRepository {
	return &MatchLogRepository{db: db}
}

// SaveWarpRecord inserts one warp row. Retried warps for the same game id
// insert additional rows; ordering is recoverable from warped_at.
func (r *MatchLogRepository) SaveWarpRecord(ctx context.Context, rec storage.WarpRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO warp_records (game_id, map, arena, ranked, team1, team2, warped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.GameID, rec.Map, rec.Arena, rec.Ranked, rec.Team1, rec.Team2, rec.WarpedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting warp record: %w", err)
	}
	return nil
}

// SaveResultRecord inserts one result row with the per-player stats as JSONB.
func (r *MatchLogRepository) SaveResultRecord(ctx context.Context, rec ledger.ResultRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return fmt.Errorf("encoding player results: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO result_records
		 (game_id, arena, ranked, team1, team2, players, mvps, beds_broken, winning_team, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.GameID, rec.Arena, rec.Ranked, rec.Team1, rec.Team2,
		players, rec.MVPs, rec.BedsBroken, rec.WinningTeam, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting result record: %w", err)
	}
	return nil
}

// WarpCount returns how many warp rows exist for the game.
func (r *MatchLogRepository) WarpCount(ctx context.Context, gameID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM warp_records WHERE game_id = $1`, gameID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting warp records: %w", err)
	}
	return n, nil
}

// ResultFor returns the most recent result record for the game.
//
// Postcondition: Returns the record or ErrResultNotFound.
func (r *MatchLogRepository) ResultFor(ctx context.Context, gameID string) (ledger.ResultRecord, error) {
	var (
		rec     ledger.ResultRecord
		players []byte
		at      time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT game_id, arena, ranked, team1, team2, players, mvps, beds_broken, winning_team, finished_at
		 FROM result_records WHERE game_id = $1
		 ORDER BY finished_at DESC LIMIT 1`, gameID,
	).Scan(&rec.GameID, &rec.Arena, &rec.Ranked, &rec.Team1, &rec.Team2,
		&players, &rec.MVPs, &rec.BedsBroken, &rec.WinningTeam, &at)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ResultRecord{}, fmt.Errorf("%w: %s", ErrResultNotFound, gameID)
	}
	if err != nil {
		return ledger.ResultRecord{}, fmt.Errorf("querying result record: %w", err)
	}
	if err := json.Unmarshal(players, &rec.Players); err != nil {
		return ledger.ResultRecord{}, fmt.Errorf("decoding player results: %w", err)
	}
	rec.FinishedAt = at
	return rec, nil
}
