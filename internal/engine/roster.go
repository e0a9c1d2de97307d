package engine

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Player is one roster entry. Key survives reconnects; ConnID is empty while
// the player is disconnected.
type Player struct {
	Key        string
	ConnID     string
	Name       string
	Progress   float64
	Connected  bool
	LastSeenAt time.Time
	LastTapAt  time.Time

	taps *rate.Limiter
}

// PlayerView is the read-only projection of a Player that leaves the engine.
type PlayerView struct {
	ID        string
	Key       string
	Name      string
	Progress  float64
	Connected bool
}

func (p *Player) View() PlayerView {
	return PlayerView{
		ID:        p.ConnID,
		Key:       p.Key,
		Name:      p.Name,
		Progress:  p.Progress,
		Connected: p.Connected,
	}
}

// Roster owns player identity, presence and capacity. It is not safe for
// concurrent use; the lobby actor serializes every call.
type Roster struct {
	order  []*Player
	byKey  map[string]*Player
	byConn map[string]*Player
}

func NewRoster() *Roster {
	return &Roster{
		byKey:  make(map[string]*Player),
		byConn: make(map[string]*Player),
	}
}

func (r *Roster) Len() int { return len(r.order) }

func (r *Roster) ByKey(key string) *Player { return r.byKey[key] }

func (r *Roster) ByConn(connID string) *Player { return r.byConn[connID] }

// Join admits or re-admits a player. A new key is only accepted while the
// session is in lobby or ended, and only below limit.
func (r *Roster) Join(key, name, connID string, now time.Time, status Status, limit int) (*Player, error) {
	name, ok := NormalizeName(name)
	if !ok {
		return nil, ErrInvalidName
	}

	r.SweepStale(now, StaleAfter)

	if key == "" {
		key = uuid.NewString()
	}

	p := r.byKey[key]
	if p == nil {
		if !acceptsNewPlayers(status) {
			return nil, ErrSessionInProgress
		}
		if len(r.order) >= limit {
			return nil, ErrSessionFull
		}
		p = &Player{Key: key, taps: newTapLimiter()}
		r.order = append(r.order, p)
		r.byKey[key] = p
	}

	// This connection may have been speaking for someone else.
	if prev := r.byConn[connID]; prev != nil && prev != p {
		prev.ConnID = ""
		prev.Connected = false
		prev.LastSeenAt = now
	}
	// Or this key may still be bound to an older connection.
	if p.ConnID != "" && p.ConnID != connID {
		delete(r.byConn, p.ConnID)
	}

	p.Name = name
	p.ConnID = connID
	p.Connected = true
	p.LastSeenAt = now
	r.byConn[connID] = p
	return p, nil
}

// RecordTap applies one tap for the player bound to connID. Taps closer than
// MinTapInterval to the last accepted one are dropped, never queued.
func (r *Roster) RecordTap(connID string, now time.Time) (*Player, bool) {
	p := r.byConn[connID]
	if p == nil {
		return nil, false
	}
	if !p.taps.AllowN(now, 1) {
		return p, false
	}
	p.Progress = min(p.Progress+TapIncrement, MaxProgress)
	p.LastTapAt = now
	return p, true
}

func (r *Roster) MarkDisconnected(connID string, now time.Time) *Player {
	p := r.byConn[connID]
	if p == nil {
		return nil
	}
	delete(r.byConn, connID)
	p.ConnID = ""
	p.Connected = false
	p.LastSeenAt = now
	return p
}

// ClampToCapacity removes players beyond limit. Survivors are chosen by
// connected first, then most recently seen, then key.
func (r *Roster) ClampToCapacity(limit int) []*Player {
	if len(r.order) <= limit {
		return nil
	}

	ranked := slices.Clone(r.order)
	slices.SortFunc(ranked, compareRetention)

	evicted := ranked[limit:]
	for _, p := range evicted {
		r.remove(p)
	}
	return evicted
}

func compareRetention(a, b *Player) int {
	if a.Connected != b.Connected {
		if a.Connected {
			return -1
		}
		return 1
	}
	if c := b.LastSeenAt.Compare(a.LastSeenAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}

// SweepStale drops disconnected players last seen more than grace ago.
func (r *Roster) SweepStale(now time.Time, grace time.Duration) []*Player {
	var stale []*Player
	for _, p := range r.order {
		if !p.Connected && now.Sub(p.LastSeenAt) > grace {
			stale = append(stale, p)
		}
	}
	for _, p := range stale {
		r.remove(p)
	}
	return stale
}

// Players returns the roster in join order after a stale sweep.
func (r *Roster) Players(now time.Time) []PlayerView {
	r.SweepStale(now, StaleAfter)
	views := make([]PlayerView, 0, len(r.order))
	for _, p := range r.order {
		views = append(views, p.View())
	}
	return views
}

func (r *Roster) ResetProgress() {
	for _, p := range r.order {
		p.Progress = 0
		p.LastTapAt = time.Time{}
		p.taps = newTapLimiter()
	}
}

// Leaderboard ranks every player by progress, highest first; equal progress
// keeps join order.
func (r *Roster) Leaderboard() []PlayerView {
	views := make([]PlayerView, 0, len(r.order))
	for _, p := range r.order {
		views = append(views, p.View())
	}
	slices.SortStableFunc(views, func(a, b PlayerView) int {
		return cmp.Compare(b.Progress, a.Progress)
	})
	return views
}

func (r *Roster) remove(p *Player) {
	r.order = slices.DeleteFunc(r.order, func(q *Player) bool { return q == p })
	delete(r.byKey, p.Key)
	if p.ConnID != "" {
		delete(r.byConn, p.ConnID)
	}
}

func acceptsNewPlayers(s Status) bool {
	return s == StatusLobby || s == StatusEnded
}
