package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/tap-race-backend/internal/engine"
	"github.com/DoyleJ11/tap-race-backend/internal/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type Msg interface{ isLobbyMsg() }

type Connect struct {
	ConnID string
	Outbox chan types.ServerMessage // where this connection wants to receive messages
}

func (Connect) isLobbyMsg() {}

type Disconnect struct{ ConnID string }

func (Disconnect) isLobbyMsg() {}

type FromClient struct {
	Cmd engine.Command
}

func (FromClient) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// timerFired re-enters the loop when a countdown or round timer elapses.
type timerFired struct {
	Cmd engine.Command
}

func (timerFired) isLobbyMsg() {}

type View struct {
	NumClients  int
	Generation  uint64
	TimersArmed bool
	Session     engine.SessionView
}

type Option func(*Lobby)

func WithClock(c clockwork.Clock) Option { return func(l *Lobby) { l.clock = c } }

func WithLogger(log *zap.Logger) Option { return func(l *Lobby) { l.log = log } }

// Lobby serializes every connection event and timer fire against one
// session. Nothing outside loop touches session, clients or the timers.
type Lobby struct {
	inbox   chan Msg
	session *engine.Session
	clients map[string]chan types.ServerMessage

	clock     clockwork.Clock
	countdown clockwork.Timer
	roundEnd  clockwork.Timer

	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, session *engine.Session, opts ...Option) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		inbox:   make(chan Msg, 64), // Small buffer
		session: session,
		clients: make(map[string]chan types.ServerMessage),
		clock:   clockwork.NewRealClock(),
		log:     zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Connect:
				// Register client + send current snapshot immediately
				l.clients[msg.ConnID] = msg.Outbox
				l.send(msg.ConnID, l.snapshot())
				l.log.Debug("connection registered", zap.String("conn_id", msg.ConnID), zap.Int("clients", len(l.clients)))

			case Disconnect:
				delete(l.clients, msg.ConnID)
				l.apply(engine.Command{Type: engine.CmdDisconnect, ConnID: msg.ConnID})

			case FromClient:
				l.apply(msg.Cmd)

			case timerFired:
				// A stale fire must not forget the handle of a newer timer.
				if msg.Cmd.Generation == l.session.Generation {
					switch msg.Cmd.Type {
					case engine.CmdBeginRound:
						l.countdown = nil
					case engine.CmdRoundTimeout:
						l.roundEnd = nil
					}
				}
				l.apply(msg.Cmd)

			case GetState:
				msg.Reply <- View{
					NumClients:  len(l.clients),
					Generation:  l.session.Generation,
					TimersArmed: l.countdown != nil || l.roundEnd != nil,
					Session:     l.session.View(l.clock.Now()),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// apply runs one command and emits its results: point messages first, then
// the snapshot.
func (l *Lobby) apply(cmd engine.Command) {
	events, err := l.session.Apply(l.clock.Now(), cmd)
	if err != nil {
		if d, ok := types.Rejection(cmd, err); ok {
			l.deliver(d)
		}
		level := zap.DebugLevel
		if errors.Is(err, engine.ErrNotEnoughPlayers) {
			level = zap.InfoLevel
		}
		l.log.Log(level, "command rejected",
			zap.String("cmd", string(cmd.Type)),
			zap.String("conn_id", cmd.ConnID),
			zap.Error(err))
		return
	}

	// Timers are armed before anything is sent so that a client which has
	// seen the announcement can rely on the timer existing.
	l.schedule(events)

	for _, e := range events {
		if d, ok := types.FromEvent(e); ok {
			l.deliver(d)
		}
		if e.Type != engine.EvtProgress {
			l.log.Info("session event",
				zap.String("event", string(e.Type)),
				zap.String("conn_id", e.ConnID),
				zap.String("status", string(l.session.Status)),
				zap.Uint64("generation", l.session.Generation))
		}
	}
	if types.NeedsSnapshot(events) {
		l.broadcast(l.snapshot())
	}
}

func (l *Lobby) schedule(events []engine.Event) {
	for _, e := range events {
		switch e.Type {
		case engine.EvtCountdownStarted:
			l.stopTimers()
			l.countdown = l.arm(e.Delay, engine.Command{Type: engine.CmdBeginRound, Generation: e.Generation})
		case engine.EvtGameStarted:
			l.roundEnd = l.arm(e.Delay, engine.Command{Type: engine.CmdRoundTimeout, Generation: e.Generation})
		case engine.EvtGameEnded, engine.EvtReset:
			l.stopTimers()
		}
	}
}

func (l *Lobby) arm(d time.Duration, cmd engine.Command) clockwork.Timer {
	return l.clock.AfterFunc(d, func() {
		l.Post(timerFired{Cmd: cmd})
	})
}

func (l *Lobby) stopTimers() {
	if l.countdown != nil {
		l.countdown.Stop()
		l.countdown = nil
	}
	if l.roundEnd != nil {
		l.roundEnd.Stop()
		l.roundEnd = nil
	}
}

func (l *Lobby) snapshot() types.ServerMessage {
	return types.NewGameUpdate(l.session.View(l.clock.Now()))
}

func (l *Lobby) shutdown() {
	l.stopTimers()
	for id, ch := range l.clients {
		close(ch) // Tell client no more messages
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) deliver(d types.Delivery) {
	if d.To == "" {
		l.broadcast(d.Msg)
		return
	}
	l.send(d.To, d.Msg)
}

func (l *Lobby) send(connID string, msg types.ServerMessage) {
	ch, ok := l.clients[connID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
		//ok
	default:
		l.drop(connID, ch)
	}
}

func (l *Lobby) broadcast(msg types.ServerMessage) {
	for id, ch := range l.clients {
		select {
		case ch <- msg:
			//ok
		default:
			l.drop(id, ch)
		}
	}
}

// drop cuts off a connection whose outbox is full. The transport sees the
// closed outbox, closes the socket and reports a Disconnect.
func (l *Lobby) drop(connID string, ch chan types.ServerMessage) {
	close(ch)
	delete(l.clients, connID)
	l.log.Warn("dropping slow connection", zap.String("conn_id", connID))
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Post delivers m unless the lobby has shut down. It reports whether m was
// queued.
func (l *Lobby) Post(m Msg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// State asks the loop for a consistent view.
func (l *Lobby) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !l.Post(GetState{Reply: reply}) {
		return View{}, context.Canceled
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-l.ctx.Done():
		return View{}, context.Canceled
	}
}

// Done is closed once the lobby has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }
