package types

import (
	"errors"
	"time"

	"github.com/DoyleJ11/tap-race-backend/internal/engine"
)

// Delivery is a message plus who gets it. An empty To means every
// connection.
type Delivery struct {
	To  string
	Msg ServerMessage
}

func NewGameUpdate(v engine.SessionView) ServerMessage {
	players := make([]PlayerState, 0, len(v.Players))
	for _, p := range v.Players {
		players = append(players, playerState(p))
	}
	update := GameUpdate{
		RequiredPlayers: v.RequiredPlayers,
		JoinedPlayers:   v.JoinedPlayers,
		State:           v.Status,
		DurationMs:      v.Duration.Milliseconds(),
		Players:         players,
		HasHost:         v.HasHost,
	}
	if !v.StartedAt.IsZero() {
		ms := v.StartedAt.UnixMilli()
		update.StartedAt = &ms
	}
	return ServerMessage{Type: OutGameUpdate, Data: update}
}

// FromEvent maps a domain event to its point message. ok is false for events
// that only show up through the next snapshot.
func FromEvent(e engine.Event) (Delivery, bool) {
	switch e.Type {
	case engine.EvtHostClaimed:
		return Delivery{To: e.ConnID, Msg: ServerMessage{Type: OutHostClaimed, Data: HostClaimed{OK: true}}}, true

	case engine.EvtHostLeft:
		return Delivery{Msg: ServerMessage{Type: OutHostLeft}}, true

	case engine.EvtJoined:
		res := JoinResult{OK: true}
		if e.Player != nil {
			res.Name = e.Player.Name
			res.PlayerKey = e.Player.Key
		}
		return Delivery{To: e.ConnID, Msg: ServerMessage{Type: OutPlayerJoinResult, Data: res}}, true

	case engine.EvtCountdownStarted:
		secs := int(e.Delay / time.Second)
		return Delivery{Msg: ServerMessage{Type: OutGameCountdown, Data: Countdown{Seconds: secs}}}, true

	case engine.EvtGameStarted:
		return Delivery{Msg: ServerMessage{Type: OutGameStarted, Data: GameStarted{
			StartedAt:  e.StartedAt.UnixMilli(),
			DurationMs: e.Duration.Milliseconds(),
		}}}, true

	case engine.EvtProgress:
		return Delivery{Msg: ServerMessage{Type: OutGameProgress, Data: Progress{ID: e.ConnID, Progress: e.Progress}}}, true

	case engine.EvtGameEnded:
		ended := GameEnded{Leaderboard: make([]PlayerState, 0, len(e.Leaderboard))}
		for _, p := range e.Leaderboard {
			ended.Leaderboard = append(ended.Leaderboard, playerState(p))
		}
		if e.Winner != nil {
			w := playerState(*e.Winner)
			ended.Winner = &w
		}
		return Delivery{Msg: ServerMessage{Type: OutGameEnded, Data: ended}}, true

	case engine.EvtReset:
		return Delivery{Msg: ServerMessage{Type: OutGameReset}}, true

	default:
		return Delivery{}, false
	}
}

// NeedsSnapshot reports whether events must be followed by a game:update.
// A plain progress tick is pushed on its own.
func NeedsSnapshot(events []engine.Event) bool {
	for _, e := range events {
		if e.Type != engine.EvtProgress {
			return true
		}
	}
	return false
}

// Rejection turns a command failure into the reply its sender should see.
// Authority and state errors are stale UI actions and get no reply.
func Rejection(cmd engine.Command, err error) (Delivery, bool) {
	switch {
	case cmd.Type == engine.CmdJoin:
		reason := "rejected"
		switch {
		case errors.Is(err, engine.ErrInvalidName):
			reason = "InvalidName"
		case errors.Is(err, engine.ErrSessionFull):
			reason = "SessionFull"
		case errors.Is(err, engine.ErrSessionInProgress):
			reason = "SessionInProgress"
		}
		return Delivery{To: cmd.ConnID, Msg: ServerMessage{Type: OutPlayerJoinResult, Data: JoinResult{OK: false, Reason: reason}}}, true

	case errors.Is(err, engine.ErrNotEnoughPlayers):
		return Delivery{To: cmd.ConnID, Msg: ServerMessage{Type: OutHostError, Data: HostError{Message: err.Error()}}}, true

	default:
		return Delivery{}, false
	}
}

func playerState(p engine.PlayerView) PlayerState {
	return PlayerState{
		ID:        p.ID,
		Name:      p.Name,
		Progress:  p.Progress,
		Connected: p.Connected,
		Key:       p.Key,
	}
}
