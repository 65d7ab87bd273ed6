// Package filestore persists match logs as JSON files in date folders:
// <root>/<yyyy-mm-dd>/game_<id>_warp.json and
// <root>/<yyyy-mm-dd>/game_<id>_result_<hh-mm-ss>.json.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deyoyk/RankedBedwarsV2/internal/ledger"
	"github.com/deyoyk/RankedBedwarsV2/internal/storage"
)

// Store writes match logs under a root folder.
type Store struct {
	root string

	// mu serializes the read-modify-write append on warp files.
	mu sync.Mutex
}

// New creates a file store rooted at the folder, creating it if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating match log folder: %w", err)
	}
	return &Store{root: root}, nil
}

// SaveWarpRecord appends the record to the game's warp file for the day.
//
// Postcondition: The warp file holds a JSON array with every warp of the
// game so far, oldest first.
func (s *Store) SaveWarpRecord(ctx context.Context, rec storage.WarpRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.dayDir(rec.WarpedAt)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("game_%s_warp.json", rec.GameID))

	var records []storage.WarpRecord
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &records); err != nil {
			return fmt.Errorf("reading warp file %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("reading warp file %s: %w", path, err)
	}

	records = append(records, rec)
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding warp records: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing warp file %s: %w", path, err)
	}
	return nil
}

// SaveResultRecord writes the result to its own timestamped file.
func (s *Store) SaveResultRecord(ctx context.Context, rec ledger.ResultRecord) error {
	dir, err := s.dayDir(rec.FinishedAt)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("game_%s_result_%s.json", rec.GameID, rec.FinishedAt.Format("15-04-05"))
	path := filepath.Join(dir, name)

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result record: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing result file %s: %w", path, err)
	}
	return nil
}

func (s *Store) dayDir(t time.Time) (string, error) {
	dir := filepath.Join(s.root, t.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating day folder: %w", err)
	}
	return dir, nil
}
