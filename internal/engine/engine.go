package engine

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidName = errors.New("invalid name")
var ErrSessionFull = errors.New("session full")
var ErrSessionInProgress = errors.New("session in progress")
var ErrNotEnoughPlayers = errors.New("not enough players")
var ErrUnauthorized = errors.New("not host")
var ErrInvalidState = errors.New("invalid state for action")
var ErrInvalidPlayerCount = errors.New("invalid player count")
var ErrStaleTimer = errors.New("stale timer")
var ErrNotJoined = errors.New("connection not bound to a player")
var ErrUnsupportedCommand = errors.New("unsupported command")

const (
	MinPlayers     = 2
	MaxPlayers     = 8
	MaxNameLength  = 16
	TapIncrement   = 0.55
	MaxProgress    = 100.0
	MinTapInterval = 50 * time.Millisecond
	CountdownDelay = 3 * time.Second
	EndTimerSlack  = 50 * time.Millisecond
	StaleAfter     = 5 * time.Minute

	DefaultRequiredPlayers = 2
	DefaultRoundDuration   = 20 * time.Second
)

type Status string

const (
	StatusLobby     Status = "lobby"
	StatusCountdown Status = "countdown"
	StatusRunning   Status = "running"
	StatusEnded     Status = "ended"
)

// NotEnoughPlayersError is returned by StartGame when the roster is short.
type NotEnoughPlayersError struct {
	Joined   int
	Required int
}

func (e *NotEnoughPlayersError) Error() string {
	return fmt.Sprintf("need %d players, have %d", e.Required, e.Joined)
}

func (e *NotEnoughPlayersError) Unwrap() error { return ErrNotEnoughPlayers }

type CommandType string

const (
	CmdClaimHost    CommandType = "ClaimHost"
	CmdSetPlayers   CommandType = "SetPlayers"
	CmdStartGame    CommandType = "StartGame"
	CmdResetToLobby CommandType = "ResetToLobby"
	CmdJoin         CommandType = "Join"
	CmdTap          CommandType = "Tap"
	CmdDisconnect   CommandType = "Disconnect"
	CmdBeginRound   CommandType = "BeginRound"
	CmdRoundTimeout CommandType = "RoundTimeout"
)

/*
	CmdClaimHost    -> EvtHostClaimed
	CmdSetPlayers   -> EvtCapacityChanged
	CmdStartGame    -> EvtCountdownStarted   (lobby arms the countdown timer)
	CmdBeginRound   -> EvtGameStarted        (lobby arms the end timer)
	CmdTap          -> EvtProgress [-> EvtGameEnded]
	CmdRoundTimeout -> EvtGameEnded
	CmdResetToLobby -> EvtReset
	CmdJoin         -> EvtJoined
	CmdDisconnect   -> EvtPlayerLeft [, EvtHostLeft]
*/

type Command struct {
	Type            CommandType
	ConnID          string
	Name            string
	PlayerKey       string
	RequiredPlayers int
	Generation      uint64
}

type EventType string

const (
	EvtHostClaimed      EventType = "HostClaimed"
	EvtHostLeft         EventType = "HostLeft"
	EvtJoined           EventType = "Joined"
	EvtPlayerLeft       EventType = "PlayerLeft"
	EvtCapacityChanged  EventType = "CapacityChanged"
	EvtCountdownStarted EventType = "CountdownStarted"
	EvtGameStarted      EventType = "GameStarted"
	EvtProgress         EventType = "Progress"
	EvtGameEnded        EventType = "GameEnded"
	EvtReset            EventType = "Reset"
)

// Event is a domain fact produced by Apply. ConnID names the party the event
// concerns; fields not relevant to Type stay zero.
type Event struct {
	Type            EventType
	ConnID          string
	Player          *PlayerView
	Progress        float64
	RequiredPlayers int
	Evicted         []string
	Delay           time.Duration
	Generation      uint64
	StartedAt       time.Time
	Duration        time.Duration
	Winner          *PlayerView
	Leaderboard     []PlayerView
}
