// Package protocol defines the JSON message envelopes exchanged with the
// matchmaking orchestrator over the websocket session.
//
// Field names and their casing are part of the wire contract and must not be
// normalized: warp_players carries "game_id", the warp acknowledgements carry
// "gameId", and the scoring/void family carries "gameid". Peers key on these
// exact names.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Message kinds. The "type" field of every envelope holds one of these.
const (
	KindAuth                    = "auth"
	KindAuthSuccess             = "auth_success"
	KindAuthFailure             = "auth_failure"
	KindServerStatus            = "server_status"
	KindPermission              = "permission"
	KindMapsInfo                = "maps_info"
	KindWarpPlayers             = "warp_players"
	KindWarpSuccess             = "warp_success"
	KindWarpFailedArenaNotFound = "warp_failed_arena_not_found"
	KindWarpFailedOffline       = "warp_failed_offline_players"
	KindWarpFailureUnknown      = "warp_failure_unknown"
	KindRetryGame               = "retrygame"
	KindVoiding                 = "voiding"
	KindScoring                 = "scoring"
	KindScoringSuccess          = "scoringsuccess"
	KindGameVoided              = "gamevoided"
	KindCheckPlayer             = "check_player"
	KindPlayerStatus            = "player_status"
	KindPing                    = "ping"
	KindPong                    = "pong"
)

// Message is any envelope that can be sent to the orchestrator.
type Message interface {
	Type() string
}

// Encode marshals a message and injects its type discriminator.
//
// Postcondition: The returned frame is a JSON object whose "type" field is
// m.Type().
func Encode(m Message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", m.Type(), err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", m.Type(), err)
	}
	obj["type"] = json.RawMessage(strconv.Quote(m.Type()))
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", m.Type(), err)
	}
	return out, nil
}

// Auth is the first frame sent after the socket opens.
type Auth struct {
	AuthKey string `json:"auth_key"`
}

func (Auth) Type() string { return KindAuth }

// AuthSuccess confirms the shared key was accepted.
type AuthSuccess struct {
	Message string `json:"message,omitempty"`
}

func (AuthSuccess) Type() string { return KindAuthSuccess }

// AuthFailure rejects the shared key.
type AuthFailure struct {
	Message string `json:"message,omitempty"`
}

func (AuthFailure) Type() string { return KindAuthFailure }

// ServerStatus announces coordinator liveness after authentication.
type ServerStatus struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

func (ServerStatus) Type() string { return KindServerStatus }

// Permission carries the operator permission snapshot. Each group name
// becomes a top-level field holding its member list.
type Permission struct {
	Groups map[string][]string `json:"-"`
}

func (Permission) Type() string { return KindPermission }

// MarshalJSON flattens the groups into top-level fields.
func (p Permission) MarshalJSON() ([]byte, error) {
	obj := make(map[string][]string, len(p.Groups))
	for group, names := range p.Groups {
		if names == nil {
			names = []string{}
		}
		obj[group] = names
	}
	return json.Marshal(obj)
}

// ArenaInfo describes one arena group in a maps_info snapshot.
type ArenaInfo struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxplayers"`
}

// MapsInfo is the full registry snapshot. Every group appears in exactly one
// of reserved, locked, or disabled, and always in all.
type MapsInfo struct {
	Reserved []ArenaInfo `json:"reserved"`
	Locked   []ArenaInfo `json:"locked"`
	Disabled []ArenaInfo `json:"disabled"`
	All      []ArenaInfo `json:"all"`
}

func (MapsInfo) Type() string { return KindMapsInfo }

// Team is one side of a requested match.
type Team struct {
	Players []string `json:"players"`
}

// WarpPlayers requests an arena allocation for a match.
type WarpPlayers struct {
	GameID   string `json:"game_id"`
	Map      string `json:"map"`
	IsRanked bool   `json:"is_ranked"`
	Team1    Team   `json:"team1"`
	Team2    Team   `json:"team2"`
}

func (WarpPlayers) Type() string { return KindWarpPlayers }

// WarpSuccess acknowledges a completed allocation.
type WarpSuccess struct {
	GameID string `json:"gameId"`
}

func (WarpSuccess) Type() string { return KindWarpSuccess }

// WarpFailedArenaNotFound reports that no arena group matched the request.
type WarpFailedArenaNotFound struct {
	GameID string `json:"gameId"`
	Map    string `json:"map"`
}

func (WarpFailedArenaNotFound) Type() string { return KindWarpFailedArenaNotFound }

// WarpFailedOfflinePlayers reports rostered players missing from the server.
type WarpFailedOfflinePlayers struct {
	GameID         string   `json:"gameId"`
	OfflinePlayers []string `json:"offline_players"`
}

func (WarpFailedOfflinePlayers) Type() string { return KindWarpFailedOffline }

// WarpFailureUnknown reports an allocation failure after the arena was
// already locked and bound.
type WarpFailureUnknown struct {
	GameID string `json:"gameid"`
}

func (WarpFailureUnknown) Type() string { return KindWarpFailureUnknown }

// RetryGame asks the orchestrator to re-gather a departed player before the
// match starts.
type RetryGame struct {
	GameID string `json:"gameid"`
}

func (RetryGame) Type() string { return KindRetryGame }

// Voiding abandons a match after the retry budget is exhausted.
type Voiding struct {
	GameID string `json:"gameid"`
	Reason string `json:"reason"`
}

func (Voiding) Type() string { return KindVoiding }

// PlayerScore is one player's line in a scoring envelope.
type PlayerScore struct {
	Kills        int `json:"kills"`
	Deaths       int `json:"deaths"`
	FinalKills   int `json:"finalkills"`
	BlocksPlaced int `json:"blocksplaced"`
	Diamonds     int `json:"diamonds"`
	Irons        int `json:"irons"`
	Gold         int `json:"gold"`
	Emeralds     int `json:"emeralds"`
}

// Scoring reports the final result of a match.
type Scoring struct {
	GameID      string                 `json:"gameid"`
	Players     map[string]PlayerScore `json:"players"`
	MVPs        []string               `json:"mvps"`
	BedsBroken  []string               `json:"bedsbroken"`
	WinningTeam []string               `json:"winningteamignlist"`
}

func (Scoring) Type() string { return KindScoring }

// ScoringSuccess notifies that the orchestrator recorded a match result.
type ScoringSuccess struct {
	GameID  string   `json:"gameid"`
	Players []string `json:"players"`
}

func (ScoringSuccess) Type() string { return KindScoringSuccess }

// GameVoided notifies that the orchestrator voided a match.
type GameVoided struct {
	GameID  string   `json:"gameid"`
	Reason  string   `json:"reason"`
	Players []string `json:"players"`
}

func (GameVoided) Type() string { return KindGameVoided }

// CheckPlayer asks whether a player is currently online.
type CheckPlayer struct {
	IGN string `json:"ign"`
}

func (CheckPlayer) Type() string { return KindCheckPlayer }

// PlayerStatus answers a check_player probe. OriginalIGNCase carries the
// server's casing of the name when the player is online.
type PlayerStatus struct {
	IGN             string `json:"ign"`
	Online          bool   `json:"online"`
	OriginalIGNCase string `json:"original_ign_case"`
}

func (PlayerStatus) Type() string { return KindPlayerStatus }

// Ping is a latency probe. Outbound probes carry a generated ping_id;
// inbound keepalive pings may carry nothing.
type Ping struct {
	PingID    string `json:"ping_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (Ping) Type() string { return KindPing }

// Pong answers a ping. Outbound pongs include current server occupancy;
// inbound pongs echo the probe's ping_id.
type Pong struct {
	PingID       string `json:"ping_id,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	ServerOnline int    `json:"server_online,omitempty"`
	ServerMax    int    `json:"server_max,omitempty"`
}

func (Pong) Type() string { return KindPong }
