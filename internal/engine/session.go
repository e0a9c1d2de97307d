package engine

import "time"

// Session is the aggregate for one game: status, configuration, host slot
// and roster. Every mutation goes through Apply.
type Session struct {
	Status          Status
	RequiredPlayers int
	Duration        time.Duration
	StartedAt       time.Time
	// Generation is bumped by StartGame, endGame and ResetToLobby. Timers
	// carry the generation they were armed under.
	Generation uint64

	Host   HostAuthority
	Roster *Roster
}

// SessionView is the observable state pushed to every connection.
type SessionView struct {
	Status          Status
	RequiredPlayers int
	JoinedPlayers   int
	Duration        time.Duration
	StartedAt       time.Time
	Players         []PlayerView
	HasHost         bool
}

func NewSession(requiredPlayers int, duration time.Duration) *Session {
	if requiredPlayers < MinPlayers || requiredPlayers > MaxPlayers {
		requiredPlayers = DefaultRequiredPlayers
	}
	if duration <= 0 {
		duration = DefaultRoundDuration
	}
	return &Session{
		Status:          StatusLobby,
		RequiredPlayers: requiredPlayers,
		Duration:        duration,
		Roster:          NewRoster(),
	}
}

func (s *Session) View(now time.Time) SessionView {
	players := s.Roster.Players(now)
	return SessionView{
		Status:          s.Status,
		RequiredPlayers: s.RequiredPlayers,
		JoinedPlayers:   len(players),
		Duration:        s.Duration,
		StartedAt:       s.StartedAt,
		Players:         players,
		HasHost:         s.Host.HasHost(),
	}
}

// Apply runs one command against the session and returns the events it
// produced, in emission order. A non-nil error means nothing changed.
func (s *Session) Apply(now time.Time, cmd Command) ([]Event, error) {
	switch cmd.Type {
	case CmdClaimHost:
		s.Host.Claim(cmd.ConnID)
		return []Event{{Type: EvtHostClaimed, ConnID: cmd.ConnID}}, nil

	case CmdSetPlayers:
		if !s.Host.IsHost(cmd.ConnID) {
			return nil, ErrUnauthorized
		}
		if s.Status != StatusLobby {
			return nil, ErrInvalidState
		}
		if cmd.RequiredPlayers < MinPlayers || cmd.RequiredPlayers > MaxPlayers {
			return nil, ErrInvalidPlayerCount
		}
		s.RequiredPlayers = cmd.RequiredPlayers
		evicted := s.Roster.ClampToCapacity(s.RequiredPlayers)
		keys := make([]string, 0, len(evicted))
		for _, p := range evicted {
			keys = append(keys, p.Key)
		}
		return []Event{{
			Type:            EvtCapacityChanged,
			ConnID:          cmd.ConnID,
			RequiredPlayers: s.RequiredPlayers,
			Evicted:         keys,
		}}, nil

	case CmdStartGame:
		if !s.Host.IsHost(cmd.ConnID) {
			return nil, ErrUnauthorized
		}
		return s.startGame(now)

	case CmdResetToLobby:
		if !s.Host.IsHost(cmd.ConnID) {
			return nil, ErrUnauthorized
		}
		return s.resetToLobby(), nil

	case CmdJoin:
		p, err := s.Roster.Join(cmd.PlayerKey, cmd.Name, cmd.ConnID, now, s.Status, s.RequiredPlayers)
		if err != nil {
			return nil, err
		}
		view := p.View()
		return []Event{{Type: EvtJoined, ConnID: cmd.ConnID, Player: &view}}, nil

	case CmdTap:
		return s.recordTap(now, cmd.ConnID)

	case CmdDisconnect:
		var events []Event
		if p := s.Roster.MarkDisconnected(cmd.ConnID, now); p != nil {
			view := p.View()
			events = append(events, Event{Type: EvtPlayerLeft, ConnID: cmd.ConnID, Player: &view})
		}
		if s.Host.Release(cmd.ConnID) {
			events = append(events, Event{Type: EvtHostLeft, ConnID: cmd.ConnID})
		}
		return events, nil

	case CmdBeginRound:
		if cmd.Generation != s.Generation || s.Status != StatusCountdown {
			return nil, ErrStaleTimer
		}
		return s.beginRound(now), nil

	case CmdRoundTimeout:
		if cmd.Generation != s.Generation || s.Status != StatusRunning {
			return nil, ErrStaleTimer
		}
		return s.endGame(), nil

	default:
		return nil, ErrUnsupportedCommand
	}
}

func (s *Session) startGame(now time.Time) ([]Event, error) {
	if s.Status != StatusLobby && s.Status != StatusEnded {
		return nil, ErrInvalidState
	}
	s.Roster.SweepStale(now, StaleAfter)
	if joined := s.Roster.Len(); joined < s.RequiredPlayers {
		return nil, &NotEnoughPlayersError{Joined: joined, Required: s.RequiredPlayers}
	}

	s.Status = StatusCountdown
	s.StartedAt = time.Time{}
	s.Generation++
	return []Event{{
		Type:       EvtCountdownStarted,
		Delay:      CountdownDelay,
		Generation: s.Generation,
	}}, nil
}

func (s *Session) beginRound(now time.Time) []Event {
	s.Status = StatusRunning
	s.StartedAt = now
	s.Roster.ResetProgress()
	return []Event{{
		Type:       EvtGameStarted,
		StartedAt:  now,
		Duration:   s.Duration,
		Delay:      s.Duration + EndTimerSlack,
		Generation: s.Generation,
	}}
}

func (s *Session) recordTap(now time.Time, connID string) ([]Event, error) {
	if s.Status != StatusRunning {
		return nil, ErrInvalidState
	}
	p, applied := s.Roster.RecordTap(connID, now)
	if p == nil {
		return nil, ErrNotJoined
	}
	if !applied {
		return nil, nil
	}

	events := []Event{{Type: EvtProgress, ConnID: connID, Progress: p.Progress}}
	if p.Progress >= MaxProgress {
		events = append(events, s.endGame()...)
	}
	return events, nil
}

// endGame is reached from the end timer and from a winning tap. Whichever
// arrives second finds the session no longer running and does nothing.
func (s *Session) endGame() []Event {
	if s.Status != StatusRunning {
		return nil
	}
	s.Status = StatusEnded
	s.Generation++

	board := s.Roster.Leaderboard()
	var winner *PlayerView
	if len(board) > 0 {
		w := board[0]
		winner = &w
	}
	return []Event{{Type: EvtGameEnded, Winner: winner, Leaderboard: board}}
}

func (s *Session) resetToLobby() []Event {
	s.Status = StatusLobby
	s.StartedAt = time.Time{}
	s.Generation++
	s.Roster.ResetProgress()
	return []Event{{Type: EvtReset}}
}
