package types

import (
	"encoding/json"
	"errors"

	"github.com/DoyleJ11/tap-race-backend/internal/engine"
)

// Inbound event names.
const (
	InHostClaim        = "host:claim"
	InHostSetPlayers   = "host:setPlayers"
	InHostStartGame    = "host:startGame"
	InHostResetToLobby = "host:resetToLobby"
	InPlayerJoin       = "player:join"
	InPlayerTap        = "player:tap"
)

// Outbound event names.
const (
	OutGameUpdate       = "game:update"
	OutGameReset        = "game:reset"
	OutHostClaimed      = "host:claimed"
	OutHostError        = "host:error"
	OutHostLeft         = "host:left"
	OutPlayerJoinResult = "player:joinResult"
	OutGameCountdown    = "game:countdown"
	OutGameStarted      = "game:started"
	OutGameProgress     = "game:progress"
	OutGameEnded        = "game:ended"
)

type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinRequest struct {
	Name      string `json:"name"`
	PlayerKey string `json:"playerKey,omitempty"`
}

type SetPlayersRequest struct {
	RequiredPlayers int `json:"requiredPlayers"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type PlayerState struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Progress  float64 `json:"progress"`
	Connected bool    `json:"connected"`
	Key       string  `json:"key"`
}

type GameUpdate struct {
	RequiredPlayers int           `json:"requiredPlayers"`
	JoinedPlayers   int           `json:"joinedPlayers"`
	State           engine.Status `json:"state"`
	DurationMs      int64         `json:"durationMs"`
	StartedAt       *int64        `json:"startedAt"` // unix ms, null unless a round has started
	Players         []PlayerState `json:"players"`
	HasHost         bool          `json:"hasHost"`
}

type HostClaimed struct {
	OK bool `json:"ok"`
}

type HostError struct {
	Message string `json:"message"`
}

type JoinResult struct {
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
	Name      string `json:"name,omitempty"`
	PlayerKey string `json:"playerKey,omitempty"`
}

type Countdown struct {
	Seconds int `json:"seconds"`
}

type GameStarted struct {
	StartedAt  int64 `json:"startedAt"`
	DurationMs int64 `json:"durationMs"`
}

type Progress struct {
	ID       string  `json:"id"`
	Progress float64 `json:"progress"`
}

type GameEnded struct {
	Winner      *PlayerState  `json:"winner"`
	Leaderboard []PlayerState `json:"leaderboard"`
}

var ErrUnknownType = errors.New("unknown message type")
var ErrBadPayload = errors.New("bad payload")
