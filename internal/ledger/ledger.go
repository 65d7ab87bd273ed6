// Package ledger accumulates per-match player statistics between placement
// and scoring. The engine pushes increments as events happen; the allocation
// workflow freezes the ledger into a result record at match end.
package ledger

import (
	"sync"
	"time"
)

// Winner identifies which side won a match.
type Winner int

const (
	Team1 Winner = 1
	Team2 Winner = 2
)

// Resource is a collectible pickup kind tracked per player.
type Resource int

const (
	Diamond Resource = iota
	Iron
	Gold
	Emerald
)

// PlayerStats holds one player's accumulated counters.
type PlayerStats struct {
	Kills        int `json:"kills"`
	Deaths       int `json:"deaths"`
	FinalKills   int `json:"finalkills"`
	BedsBroken   int `json:"bedsbroken"`
	BlocksPlaced int `json:"blocksplaced"`
	Diamonds     int `json:"diamonds"`
	Irons        int `json:"irons"`
	Gold         int `json:"gold"`
	Emeralds     int `json:"emeralds"`
}

// PlayerResult is a player's frozen line in a result record.
type PlayerResult struct {
	PlayerStats
	Won bool `json:"won"`
}

// ResultRecord is the frozen outcome of a finished match.
type ResultRecord struct {
	GameID      string                  `json:"game_id"`
	Arena       string                  `json:"arena"`
	Ranked      bool                    `json:"ranked"`
	Team1       []string                `json:"team1"`
	Team2       []string                `json:"team2"`
	Players     map[string]PlayerResult `json:"players"`
	MVPs        []string                `json:"mvps"`
	BedsBroken  []string                `json:"beds_broken"`
	WinningTeam []string                `json:"winning_team"`
	FinishedAt  time.Time               `json:"finished_at"`
}

// Match is one in-progress match's ledger. All increment methods are safe
// for concurrent use; increments for players not on either roster are
// dropped.
type Match struct {
	gameID string
	arena  string
	ranked bool
	team1  []string
	team2  []string

	mu          sync.Mutex
	stats       map[string]*PlayerStats
	bedBreakers []string
	started     bool
	finished    bool
}

// NewMatch opens a ledger for the match.
//
// Postcondition: Every rostered player has a zeroed stat line.
func NewMatch(gameID, arena string, ranked bool, team1, team2 []string) *Match {
	m := &Match{
		gameID: gameID,
		arena:  arena,
		ranked: ranked,
		team1:  append([]string(nil), team1...),
		team2:  append([]string(nil), team2...),
		stats:  make(map[string]*PlayerStats, len(team1)+len(team2)),
	}
	for _, ign := range m.team1 {
		m.stats[ign] = &PlayerStats{}
	}
	for _, ign := range m.team2 {
		m.stats[ign] = &PlayerStats{}
	}
	return m
}

// GameID returns the match id.
func (m *Match) GameID() string { return m.gameID }

// Arena returns the physical arena hosting the match.
func (m *Match) Arena() string { return m.arena }

// Ranked reports whether the match is ranked.
func (m *Match) Ranked() bool { return m.ranked }

// Rosters returns copies of both team rosters.
func (m *Match) Rosters() (team1, team2 []string) {
	return append([]string(nil), m.team1...), append([]string(nil), m.team2...)
}

// Players returns every rostered player.
func (m *Match) Players() []string {
	out := make([]string, 0, len(m.team1)+len(m.team2))
	out = append(out, m.team1...)
	out = append(out, m.team2...)
	return out
}

// MarkStarted records that the engine started the match. Pre-start departure
// handling (retry and voiding) only applies before this point.
func (m *Match) MarkStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
}

// Started reports whether the match has begun.
func (m *Match) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *Match) with(ign string, fn func(*PlayerStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return
	}
	if s, ok := m.stats[ign]; ok {
		fn(s)
	}
}

// AddKill credits a kill.
func (m *Match) AddKill(ign string) {
	m.with(ign, func(s *PlayerStats) { s.Kills++ })
}

// AddFinalKill credits a final kill. Final kills do not double-count as
// regular kills; the engine reports them separately.
func (m *Match) AddFinalKill(ign string) {
	m.with(ign, func(s *PlayerStats) { s.FinalKills++ })
}

// AddDeath records a death.
func (m *Match) AddDeath(ign string) {
	m.with(ign, func(s *PlayerStats) { s.Deaths++ })
}

// AddBlockPlaced records a placed block.
func (m *Match) AddBlockPlaced(ign string) {
	m.with(ign, func(s *PlayerStats) { s.BlocksPlaced++ })
}

// AddPickup records a resource pickup.
func (m *Match) AddPickup(ign string, res Resource) {
	m.with(ign, func(s *PlayerStats) {
		switch res {
		case Diamond:
			s.Diamonds++
		case Iron:
			s.Irons++
		case Gold:
			s.Gold++
		case Emerald:
			s.Emeralds++
		}
	})
}

// AddBedBroken credits a bed destruction and records the breaker once in
// breaking order.
func (m *Match) AddBedBroken(ign string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return
	}
	s, ok := m.stats[ign]
	if !ok {
		return
	}
	s.BedsBroken++
	for _, b := range m.bedBreakers {
		if b == ign {
			return
		}
	}
	m.bedBreakers = append(m.bedBreakers, ign)
}

// Stats returns a copy of the player's current counters.
func (m *Match) Stats(ign string) (PlayerStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[ign]
	if !ok {
		return PlayerStats{}, false
	}
	return *s, true
}

// Finish freezes the ledger and returns the result record. Any winner value
// other than Team2 credits team 1; a drawn match therefore defaults to
// team 1, matching the historical scoring behavior. Further increments after
// Finish are dropped.
func (m *Match) Finish(winner Winner) ResultRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true

	winners := m.team1
	if winner == Team2 {
		winners = m.team2
	}
	wonSet := make(map[string]bool, len(winners))
	for _, ign := range winners {
		wonSet[ign] = true
	}

	players := make(map[string]PlayerResult, len(m.stats))
	for ign, s := range m.stats {
		players[ign] = PlayerResult{PlayerStats: *s, Won: wonSet[ign]}
	}

	return ResultRecord{
		GameID:      m.gameID,
		Arena:       m.arena,
		Ranked:      m.ranked,
		Team1:       append([]string(nil), m.team1...),
		Team2:       append([]string(nil), m.team2...),
		Players:     players,
		MVPs:        m.mvpsLocked(winners),
		BedsBroken:  append([]string(nil), m.bedBreakers...),
		WinningTeam: append([]string(nil), winners...),
		FinishedAt:  time.Now().UTC(),
	}
}

// mvpsLocked picks the winning-team player with the highest impact score,
// final kills weighing double. Ties go to roster order. Caller holds m.mu.
func (m *Match) mvpsLocked(winners []string) []string {
	best := -1
	var mvp string
	for _, ign := range winners {
		s, ok := m.stats[ign]
		if !ok {
			continue
		}
		score := s.Kills + 2*s.FinalKills + s.BedsBroken
		if score > best {
			best = score
			mvp = ign
		}
	}
	if mvp == "" {
		return []string{}
	}
	return []string{mvp}
}
