// Package storage persists match logs: one warp record per allocation and
// one result record per finished match. Persistence is a collaborator of the
// allocation workflow; a failed write never blocks a warp.
package storage

import (
	"context"
	"time"

	"github.com/deyoyk/RankedBedwarsV2/internal/ledger"
)

// WarpRecord captures one allocation at the moment players are placed.
type WarpRecord struct {
	GameID   string    `json:"game_id"`
	Map      string    `json:"map"`
	Arena    string    `json:"arena"`
	Ranked   bool      `json:"ranked"`
	Team1    []string  `json:"team1"`
	Team2    []string  `json:"team2"`
	WarpedAt time.Time `json:"warped_at"`
}

// Store is the match-log persistence surface.
type Store interface {
	// SaveWarpRecord appends a warp record for the game. A second record
	// for the same game id (a retried warp) appends rather than replaces.
	SaveWarpRecord(ctx context.Context, rec WarpRecord) error
	// SaveResultRecord persists a frozen match result.
	SaveResultRecord(ctx context.Context, rec ledger.ResultRecord) error
}

// NopStore discards everything. Used when storage is disabled.
type NopStore struct{}

func (NopStore) SaveWarpRecord(ctx context.Context, rec WarpRecord) error { return nil }

func (NopStore) SaveResultRecord(ctx context.Context, rec ledger.ResultRecord) error { return nil }
