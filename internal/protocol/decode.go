package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType marks a frame whose type has no decoder. Callers drop these
// frames after logging; unknown kinds are expected as the peer evolves.
var ErrUnknownType = errors.New("unknown message type")

// ErrMissingType marks a frame without a type discriminator.
var ErrMissingType = errors.New("missing message type")

type head struct {
	Type string `json:"type"`
}

// Decode parses an inbound frame into its typed message.
//
// Postcondition: Returns a pointer to one of the inbound message structs, or
// an error wrapping ErrUnknownType, ErrMissingType, or a per-type
// required-field violation.
func Decode(raw []byte) (Message, error) {
	var h head
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("decoding frame head: %w", err)
	}
	if h.Type == "" {
		return nil, ErrMissingType
	}

	switch h.Type {
	case KindAuthSuccess:
		return decodeInto(raw, &AuthSuccess{}, nil)
	case KindAuthFailure:
		return decodeInto(raw, &AuthFailure{}, nil)
	case KindWarpPlayers:
		return decodeInto(raw, &WarpPlayers{}, func(m *WarpPlayers) error {
			if m.GameID == "" {
				return requiredField(KindWarpPlayers, "game_id")
			}
			if m.Map == "" {
				return requiredField(KindWarpPlayers, "map")
			}
			return nil
		})
	case KindCheckPlayer:
		return decodeInto(raw, &CheckPlayer{}, func(m *CheckPlayer) error {
			if m.IGN == "" {
				return requiredField(KindCheckPlayer, "ign")
			}
			return nil
		})
	case KindScoringSuccess:
		return decodeInto(raw, &ScoringSuccess{}, func(m *ScoringSuccess) error {
			if m.GameID == "" {
				return requiredField(KindScoringSuccess, "gameid")
			}
			return nil
		})
	case KindGameVoided:
		return decodeInto(raw, &GameVoided{}, func(m *GameVoided) error {
			if m.GameID == "" {
				return requiredField(KindGameVoided, "gameid")
			}
			return nil
		})
	case KindPing:
		return decodeInto(raw, &Ping{}, nil)
	case KindPong:
		return decodeInto(raw, &Pong{}, nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, h.Type)
	}
}

func decodeInto[M Message](raw []byte, m M, validate func(M) error) (Message, error) {
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", m.Type(), err)
	}
	if validate != nil {
		if err := validate(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func requiredField(kind, field string) error {
	return fmt.Errorf("%s: missing required field %q", kind, field)
}
